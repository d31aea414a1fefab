package supervisor

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"switchyard/internal/api"
	"switchyard/pkg/logging"
)

// StartFleet starts the named servers concurrently. One server failing does not
// affect the others; every server gets an entry in the result.
func (s *Supervisor) StartFleet(ctx context.Context, names []string) api.FleetResult {
	return s.fanOut(ctx, names, "start", func(ctx context.Context, name string) (bool, error) {
		return false, s.Start(ctx, name)
	})
}

// StopFleet stops the named servers concurrently. A server whose process could not be
// killed still counts as stopped; its result carries the lingering error.
func (s *Supervisor) StopFleet(ctx context.Context, names []string) api.FleetResult {
	return s.fanOut(ctx, names, "stop", func(ctx context.Context, name string) (bool, error) {
		report, err := s.StopWithReport(ctx, name)
		if err != nil {
			return false, err
		}
		if report.Lingering != nil {
			return true, report.Lingering
		}
		return false, nil
	})
}

// fanOut runs op for every name. op returns soft=true for errors that should be
// reported without marking the server failed.
func (s *Supervisor) fanOut(ctx context.Context, names []string, verb string, op func(context.Context, string) (soft bool, err error)) api.FleetResult {
	started := time.Now()

	var (
		mu      sync.Mutex
		results = make([]api.ServerOperationResult, 0, len(names))
		g       errgroup.Group
	)
	if s.cfg.MaxParallel > 0 {
		g.SetLimit(s.cfg.MaxParallel)
	}

	for _, name := range names {
		name := name
		g.Go(func() error {
			opStarted := time.Now()
			soft, err := op(ctx, name)

			res := api.ServerOperationResult{
				Name:     name,
				Success:  err == nil || soft,
				Err:      err,
				Duration: time.Since(opStarted),
			}
			if err != nil {
				res.Error = err.Error()
			}
			if desc, getErr := s.store.Get(name); getErr == nil {
				res.Status = desc.Status
			}

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	fleet := api.FleetResult{Results: results, Duration: time.Since(started)}
	for _, r := range results {
		if r.Success {
			fleet.Succeeded = append(fleet.Succeeded, r.Name)
		} else {
			fleet.Failed = append(fleet.Failed, r.Name)
		}
	}
	logging.Info("Supervisor", "Fleet %s finished in %s: %d succeeded, %d failed", verb, fleet.Duration.Round(time.Millisecond), len(fleet.Succeeded), len(fleet.Failed))
	return fleet
}
