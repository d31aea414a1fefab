// Package loadbalancer tracks in-flight requests per worker.
//
// The router turns the counters into a load factor so idle workers win ties against
// busy ones with the same capability match.
package loadbalancer

import (
	"sync"
	"sync/atomic"
)

// Balancer keeps one in-flight counter per server.
type Balancer struct {
	mu       sync.RWMutex
	counters map[string]*int64
}

// New returns an empty balancer.
func New() *Balancer {
	return &Balancer{counters: make(map[string]*int64)}
}

func (b *Balancer) counter(name string) *int64 {
	b.mu.RLock()
	c, ok := b.counters[name]
	b.mu.RUnlock()
	if ok {
		return c
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok = b.counters[name]; ok {
		return c
	}
	c = new(int64)
	b.counters[name] = c
	return c
}

// Acquire marks one request in flight on name. The returned release function
// decrements the counter exactly once no matter how often it is called.
func (b *Balancer) Acquire(name string) (release func()) {
	c := b.counter(name)
	atomic.AddInt64(c, 1)

	var once sync.Once
	return func() {
		once.Do(func() {
			for {
				cur := atomic.LoadInt64(c)
				if cur <= 0 {
					return
				}
				if atomic.CompareAndSwapInt64(c, cur, cur-1) {
					return
				}
			}
		})
	}
}

// InFlight returns the number of requests currently in flight on name.
func (b *Balancer) InFlight(name string) int64 {
	b.mu.RLock()
	c, ok := b.counters[name]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(c)
}

// LoadFactor maps the in-flight count into (0, 1]; an idle server scores 1.
func (b *Balancer) LoadFactor(name string) float64 {
	return Factor(b.InFlight(name))
}

// Factor is the load factor for a given in-flight count.
func Factor(inFlight int64) float64 {
	if inFlight < 0 {
		inFlight = 0
	}
	return 1 / (1 + float64(inFlight))
}

// Snapshot returns a copy of every counter.
func (b *Balancer) Snapshot() map[string]int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]int64, len(b.counters))
	for name, c := range b.counters {
		out[name] = atomic.LoadInt64(c)
	}
	return out
}
