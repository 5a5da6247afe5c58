package story

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// taskTimeout bounds one background task. Adaptation followed by a precompute
// wave is a handful of model calls, each tens of seconds.
const taskTimeout = 5 * time.Minute

// Scheduler runs fire-and-forget background work. Tasks get a context
// detached from the request that spawned them, so precompute and plan
// adaptation survive client disconnects, while shutdown can still wait for
// everything in flight.
type Scheduler struct {
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Go runs fn on its own goroutine with a fresh bounded context. After Stop,
// new tasks are dropped; shutdown must not grow the set it is waiting on.
func (s *Scheduler) Go(name string, fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		slog.Debug("Scheduler stopped, dropping background task", "task", name)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Background task panicked", "task", name, "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until every task in flight has finished. Callers must ensure
// no new tasks are being scheduled concurrently.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Stop rejects new tasks and waits for in-flight ones until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Background scheduler stopped")
		return nil
	case <-ctx.Done():
		slog.Warn("Background scheduler stop timed out with tasks still running")
		return ctx.Err()
	}
}
