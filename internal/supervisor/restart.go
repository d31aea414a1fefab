package supervisor

import (
	"context"
	"fmt"
	"math"
	"time"

	"switchyard/internal/api"
	"switchyard/pkg/logging"
)

// RestartPolicy bounds automatic restarts of failed servers.
type RestartPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRestartPolicy returns 3 attempts backing off 1s, 2s, 4s (capped at 30s).
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

func (p RestartPolicy) withDefaults() RestartPolicy {
	def := DefaultRestartPolicy()
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	if p.InitialBackoff < 0 {
		p.InitialBackoff = 0
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// Backoff returns the wait before the given 1-based attempt.
func (p RestartPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxBackoff > 0 && backoff > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(backoff)
}

// Restart stops and starts a server on request. It clears a pinned ERROR state left by
// exhausted automatic restarts.
func (s *Supervisor) Restart(ctx context.Context, name string) error {
	if err := s.store.RecordRestart(name, 0, false); err != nil {
		return err
	}
	if err := s.Stop(ctx, name); err != nil {
		return err
	}
	return s.Start(ctx, name)
}

// Recover restarts a server that went to ERROR, following the restart policy. It
// returns immediately if the server is pinned, not in ERROR, or already recovering.
// Exhausting the policy pins the server in ERROR until a manual Restart.
func (s *Supervisor) Recover(ctx context.Context, name string) error {
	s.mu.Lock()
	if s.restarting[name] {
		s.mu.Unlock()
		return nil
	}
	s.restarting[name] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.restarting, name)
		s.mu.Unlock()
	}()

	desc, err := s.store.Get(name)
	if err != nil {
		return err
	}
	if desc.RestartPinned {
		logging.Debug("Supervisor", "Not restarting %s: restart attempts exhausted", name)
		return nil
	}

	policy := s.cfg.Restart
	if policy.MaxAttempts == 0 {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		backoff := policy.Backoff(attempt)
		if err := s.store.RecordRestart(name, attempt, false); err != nil {
			return err
		}
		if s.observer != nil {
			s.observer.ObserveRestart(name)
		}
		logging.Info("Supervisor", "Restarting server %s in %s (attempt %d/%d)", name, backoff, attempt, policy.MaxAttempts)
		s.emit(api.EventServerRestarting, name, map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": policy.MaxAttempts,
			"backoff":     backoff.String(),
		})

		if err := s.sleep(ctx, backoff); err != nil {
			return err
		}

		done, err := s.restartAttempt(ctx, name, attempt)
		if done {
			return err
		}
		lastErr = err
	}

	if err := s.store.RecordRestart(name, policy.MaxAttempts, true); err != nil {
		return err
	}
	logging.Error("Supervisor", lastErr, "Giving up on server %s after %d restart attempts", name, policy.MaxAttempts)
	payload := map[string]interface{}{"attempts": policy.MaxAttempts}
	if lastErr != nil {
		payload["error"] = lastErr.Error()
	}
	s.emit(api.EventServerRestartExhausted, name, payload)
	return fmt.Errorf("server %s: %d restart attempts exhausted: %w", name, policy.MaxAttempts, lastErr)
}

// restartAttempt performs one restart under the server lock. done reports that
// recovery is over, either because the server came back or because someone else
// took it out of ERROR meanwhile.
func (s *Supervisor) restartAttempt(ctx context.Context, name string, attempt int) (done bool, err error) {
	l := s.serverLock(name)
	l.Lock()
	defer l.Unlock()

	desc, err := s.store.Get(name)
	if err != nil {
		return true, err
	}
	if desc.Status != api.StatusError {
		logging.Debug("Supervisor", "Server %s is %s, abandoning restart", name, desc.Status)
		return true, nil
	}

	err = s.startLocked(ctx, name, map[string]interface{}{"restartAttempt": attempt})
	if err == nil {
		_ = s.store.RecordRestart(name, 0, false)
		return true, nil
	}
	if ctx.Err() != nil {
		return true, ctx.Err()
	}
	return false, err
}
