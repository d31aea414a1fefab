package health

import (
	"context"
	"errors"
	"net"
	"time"

	"switchyard/internal/api"
)

// Prober performs a single bounded liveness check against a worker.
type Prober interface {
	Probe(ctx context.Context, desc api.ServerDescriptor) api.HealthCheckResult
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, desc api.ServerDescriptor) api.HealthCheckResult

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context, desc api.ServerDescriptor) api.HealthCheckResult {
	return f(ctx, desc)
}

// TCPProber checks connectivity by opening (and immediately closing) a TCP
// connection to the worker endpoint.
type TCPProber struct {
	// Timeout bounds each dial when ctx carries no earlier deadline.
	Timeout time.Duration
}

// Probe implements Prober.
func (p TCPProber) Probe(ctx context.Context, desc api.ServerDescriptor) api.HealthCheckResult {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", desc.Endpoint)
	elapsed := time.Since(start)
	if err != nil {
		return api.HealthCheckResult{
			Healthy:   false,
			Timestamp: start,
			Error:     api.NewHealthCheckFailureError(desc.Name, desc.Endpoint, err).Error(),
		}
	}
	_ = conn.Close()

	return api.HealthCheckResult{
		Healthy:      true,
		ResponseTime: &elapsed,
		Timestamp:    start,
	}
}

// Ready adapts a Prober into the error-returning readiness check used during startup.
func Ready(p Prober) func(ctx context.Context, desc api.ServerDescriptor) error {
	return func(ctx context.Context, desc api.ServerDescriptor) error {
		res := p.Probe(ctx, desc)
		if res.Healthy {
			return nil
		}
		return errors.New(res.Error)
	}
}
