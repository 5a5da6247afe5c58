// Package cleanup enforces retention on story coordination state.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/Sopamo/taletwo/pkg/config"
	"github.com/Sopamo/taletwo/pkg/models"
	"github.com/Sopamo/taletwo/pkg/store"
)

// sweepBatchSize bounds how many idle books a single sweep inspects.
const sweepBatchSize = 200

// Service periodically sweeps books with no recent reader activity:
//   - Evicts branch cache entries older than BranchCacheMaxAge. Commits
//     prune only forward of the head, so long stories accumulate historical
//     candidates that nothing else removes.
//   - Releases pending claims older than PendingMaxAge. On-demand takeover
//     recovers claims readers still poll for; this catches the rest.
//   - Lowers a planUpdating flag that outlived its adaptation task.
//
// Every mutation is conditional on the state the sweep observed, so sweeps
// are idempotent and safe to run from multiple instances.
type Service struct {
	config *config.RetentionConfig
	store  store.BookStore

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a retention sweeper.
func NewService(cfg *config.RetentionConfig, st store.BookStore) *Service {
	if cfg == nil {
		panic("cleanup.NewService: config must not be nil")
	}
	if st == nil {
		panic("cleanup.NewService: store must not be nil")
	}
	return &Service{config: cfg, store: st}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Retention sweeper started",
		"branch_cache_max_age", s.config.BranchCacheMaxAge,
		"pending_max_age", s.config.PendingMaxAge,
		"interval", s.config.CleanupInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Retention sweeper stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one retention pass over books idle for at least PendingMaxAge.
// The idle threshold keeps the sweeper away from books whose background
// tasks may still be publishing.
func (s *Service) sweep(ctx context.Context) {
	now := time.Now().UTC()

	books, err := s.store.ListIdleBooks(ctx, now.Add(-s.config.PendingMaxAge), sweepBatchSize)
	if err != nil {
		slog.Error("Retention: listing idle books failed", "error", err)
		return
	}

	for _, book := range books {
		s.sweepBook(ctx, book, now)
	}
}

func (s *Service) sweepBook(ctx context.Context, book *models.Book, now time.Time) {
	evicted := 0
	released := 0

	if st := book.Story; st != nil {
		cacheCutoff := now.Add(-s.config.BranchCacheMaxAge)
		for key, at := range st.BranchCacheAt {
			if !at.Before(cacheCutoff) {
				continue
			}
			cleared, err := s.store.ClearStaleBranch(ctx, book.ID, key, at)
			if err != nil {
				slog.Error("Retention: branch eviction failed",
					"book_id", book.ID, "key", key, "error", err)
				continue
			}
			if cleared {
				evicted++
			}
		}

		pendingCutoff := now.Add(-s.config.PendingMaxAge)
		for key, ts := range st.BranchPending {
			if !ts.Before(pendingCutoff) {
				continue
			}
			// Take the claim over on its observed timestamp before
			// releasing, so a claim a live worker reclaimed in the
			// meantime is left alone.
			won, err := s.store.TakeoverPending(ctx, book.ID, key, ts, now)
			if err != nil {
				slog.Error("Retention: pending takeover failed",
					"book_id", book.ID, "key", key, "error", err)
				continue
			}
			if !won {
				continue
			}
			if err := s.store.ReleasePending(ctx, book.ID, key); err != nil {
				slog.Error("Retention: pending release failed",
					"book_id", book.ID, "key", key, "error", err)
				continue
			}
			released++
		}
	}

	if book.PlanUpdating {
		// Adaptation tasks are bounded to minutes. On a book idle beyond
		// PendingMaxAge the flag can only be a leftover from a crash.
		if err := s.store.SetPlanUpdating(ctx, book.ID, false); err != nil {
			slog.Error("Retention: clearing planUpdating failed",
				"book_id", book.ID, "error", err)
		} else {
			slog.Warn("Retention: cleared leftover planUpdating flag", "book_id", book.ID)
		}
	}

	if evicted > 0 || released > 0 {
		slog.Info("Retention: swept book",
			"book_id", book.ID, "evicted", evicted, "released", released)
	}
}
