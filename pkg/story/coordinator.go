package story

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sopamo/taletwo/pkg/models"
	"github.com/Sopamo/taletwo/pkg/plan"
	"github.com/Sopamo/taletwo/pkg/store"
)

const (
	// defaultStaleAfter bounds both cache freshness and how long a pending
	// claim may go unfinished before another worker takes it over.
	defaultStaleAfter = 120 * time.Second
	// defaultWaitTimeout is the longest EnsureReady waits on another
	// worker's generation before giving up.
	defaultWaitTimeout = 240 * time.Second
	// defaultPollInterval is the cadence waiting callers re-read
	// coordination state at.
	defaultPollInterval = 300 * time.Millisecond
)

// ErrTimeout is returned when waiting on another worker's page generation
// exceeded the wait budget.
var ErrTimeout = errors.New("story: timed out waiting for page generation")

// BranchOption names one choice whose continuation should be precomputed.
type BranchOption struct {
	OptionID string
	Text     string
}

// Coordinator keeps branch continuations precomputed. All coordination state
// lives in the book document and every transition is a conditional store
// update, so claims are honored across processes and survive restarts.
type Coordinator struct {
	store store.BookStore
	gen   *Generator
	plans *plan.Engine
	tasks *Scheduler

	staleAfter   time.Duration
	waitTimeout  time.Duration
	pollInterval time.Duration
}

// NewCoordinator creates a branch cache coordinator.
func NewCoordinator(st store.BookStore, gen *Generator, plans *plan.Engine, tasks *Scheduler) *Coordinator {
	if st == nil {
		panic("NewCoordinator: store must not be nil")
	}
	if gen == nil {
		panic("NewCoordinator: generator must not be nil")
	}
	if plans == nil {
		panic("NewCoordinator: plan engine must not be nil")
	}
	if tasks == nil {
		panic("NewCoordinator: scheduler must not be nil")
	}
	return &Coordinator{
		store:        st,
		gen:          gen,
		plans:        plans,
		tasks:        tasks,
		staleAfter:   defaultStaleAfter,
		waitTimeout:  defaultWaitTimeout,
		pollInterval: defaultPollInterval,
	}
}

// EnsureReady blocks until the linear continuation from index is cached,
// generating it when this worker wins the claim and waiting on the owner
// otherwise. It returns false without error while the plan is being adapted;
// clients retry after a short delay.
func (c *Coordinator) EnsureReady(ctx context.Context, bookID string, index int) (bool, error) {
	book, err := c.store.Get(ctx, bookID)
	if err != nil {
		return false, err
	}
	if book.PlanUpdating {
		return false, nil
	}

	key := models.NextKey(index)
	now := time.Now().UTC()

	if cached, at := branchCached(book, key); cached {
		if c.fresh(at, now) {
			return true, nil
		}
		if _, err := c.store.ClearStaleBranch(ctx, bookID, key, at); err != nil {
			return false, fmt.Errorf("failed to clear stale branch %s: %w", key, err)
		}
	}

	won, err := c.store.ClaimPending(ctx, bookID, key, now)
	if err != nil {
		return false, err
	}
	if won {
		if err := c.generateBranch(ctx, bookID, key, index, ""); err != nil {
			return false, err
		}
		return true, nil
	}
	return c.waitForBranch(ctx, bookID, key, index)
}

// waitForBranch polls until the owner of the claim publishes the branch. A
// claim older than staleAfter is treated as abandoned and taken over with a
// conditional update on the timestamp this caller observed.
func (c *Coordinator) waitForBranch(ctx context.Context, bookID, key string, index int) (bool, error) {
	deadline := time.Now().Add(c.waitTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			return false, ErrTimeout
		}

		book, err := c.store.Get(ctx, bookID)
		if err != nil {
			return false, err
		}
		if cached, _ := branchCached(book, key); cached {
			return true, nil
		}

		now := time.Now().UTC()
		pendingAt, pending := pendingSince(book, key)
		var won bool
		switch {
		case pending && now.Sub(pendingAt) > c.staleAfter:
			won, err = c.store.TakeoverPending(ctx, bookID, key, pendingAt, now)
			if won {
				slog.Warn("Took over an abandoned page generation claim",
					"book_id", bookID, "key", key, "claimed_at", pendingAt)
			}
		case !pending:
			// The owner released its claim after a failure. Pick the work up.
			won, err = c.store.ClaimPending(ctx, bookID, key, now)
		}
		if err != nil {
			return false, err
		}
		if won {
			if err := c.generateBranch(ctx, bookID, key, index, ""); err != nil {
				return false, err
			}
			return true, nil
		}
	}
}

// generateBranch runs the owner side of a claim: verify the pending
// sub-step, generate the continuation, publish it. The claim is released on
// any failure so another caller can retry. Generation runs detached from the
// caller's cancellation; a reader who walks away leaves the owner to finish
// and cache the result.
func (c *Coordinator) generateBranch(ctx context.Context, bookID, key string, index int, choice string) error {
	genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), taskTimeout)
	defer cancel()

	book, err := c.store.Get(genCtx, bookID)
	if err != nil {
		c.releaseClaim(bookID, key)
		return err
	}
	book = c.plans.VerifyPendingBeforeNext(genCtx, book)

	cand, err := c.gen.Generate(genCtx, book, GenerateParams{
		UpToIndex:       index,
		OptionBaseIndex: index + 1,
		NextChoice:      choice,
		AllowOptions:    true,
	})
	if err != nil {
		c.releaseClaim(bookID, key)
		return fmt.Errorf("failed to generate branch %s: %w", key, err)
	}

	if err := c.store.SetBranch(genCtx, bookID, key, cand, time.Now().UTC()); err != nil {
		c.releaseClaim(bookID, key)
		return fmt.Errorf("failed to publish branch %s: %w", key, err)
	}
	slog.Debug("Branch generated", "book_id", bookID, "key", key)
	return nil
}

// releaseClaim drops a pending claim on a background context so a cancelled
// caller cannot leave the claim dangling until the takeover window.
func (c *Coordinator) releaseClaim(bookID, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.store.ReleasePending(ctx, bookID, key); err != nil {
		slog.Error("Failed to release branch claim", "book_id", bookID, "key", key, "error", err)
	}
}

// PrecomputeNext schedules speculative generation of the linear continuation
// from index. Safe to call repeatedly; the claim predicate dedupes workers.
func (c *Coordinator) PrecomputeNext(bookID string, index int) {
	c.tasks.Go("precompute-next", func(ctx context.Context) {
		c.precompute(ctx, bookID, models.NextKey(index), index, "")
	})
}

// PrecomputeBranches schedules speculative generation of each option's
// continuation from index.
func (c *Coordinator) PrecomputeBranches(bookID string, index int, options []BranchOption) {
	for _, opt := range options {
		c.tasks.Go("precompute-option", func(ctx context.Context) {
			c.precompute(ctx, bookID, models.BranchKey(index, opt.OptionID), index, opt.Text)
		})
	}
}

// EnsureOptionsPrecompute schedules branch precompute for every option of
// pages[index] whose cache entry is absent or stale. It never blocks the
// caller.
func (c *Coordinator) EnsureOptionsPrecompute(bookID string, index int) {
	c.tasks.Go("options-precompute", func(ctx context.Context) {
		book, err := c.store.Get(ctx, bookID)
		if err != nil {
			slog.Debug("Options precompute skipped, book load failed", "book_id", bookID, "error", err)
			return
		}
		missing := c.missingOptions(book, index, time.Now().UTC())
		if len(missing) > 0 {
			c.PrecomputeBranches(bookID, index, missing)
		}
	})
}

// precompute claims and generates one branch. Unlike EnsureReady it also
// claims over a stale cache entry, refreshing it in place. Failures are
// logged and swallowed; speculative work never surfaces errors.
func (c *Coordinator) precompute(ctx context.Context, bookID, key string, index int, choice string) {
	book, err := c.store.Get(ctx, bookID)
	if err != nil {
		slog.Debug("Precompute skipped, book load failed", "book_id", bookID, "key", key, "error", err)
		return
	}
	if book.PlanUpdating {
		return
	}

	now := time.Now().UTC()
	won, err := c.store.ClaimPendingAllowStale(ctx, bookID, key, now, now.Add(-c.staleAfter))
	if err != nil {
		slog.Debug("Precompute claim failed", "book_id", bookID, "key", key, "error", err)
		return
	}
	if !won {
		return
	}
	if err := c.generateBranch(ctx, bookID, key, index, choice); err != nil {
		slog.Warn("Precompute generation failed", "book_id", bookID, "key", key, "error", err)
	}
}

// PruneForward unsets every cache entry at an index beyond the committed
// head. Historical entries stay so earlier pages can be revisited without
// regenerating, and pending claims stay so in-flight generations can finish;
// the next commit prunes whatever they publish.
func (c *Coordinator) PruneForward(ctx context.Context, bookID string) error {
	book, err := c.store.Get(ctx, bookID)
	if err != nil {
		return err
	}
	s := book.Story
	if s == nil {
		return nil
	}
	var keys []string
	for key := range s.BranchCache {
		idx, _, ok := models.ParseBranchKey(key)
		if ok && idx > s.Index {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return c.store.UnsetBranches(ctx, bookID, keys)
}

// missingOptions lists the options of pages[index] without a fresh cached
// continuation.
func (c *Coordinator) missingOptions(book *models.Book, index int, now time.Time) []BranchOption {
	s := book.Story
	if s == nil || index < 0 || index >= len(s.Pages) {
		return nil
	}
	page := s.Pages[index]
	var out []BranchOption
	for i, id := range page.OptionIDs {
		if i >= len(page.Options) {
			break
		}
		if cached, at := branchCached(book, models.BranchKey(index, id)); cached && c.fresh(at, now) {
			continue
		}
		out = append(out, BranchOption{OptionID: id, Text: page.Options[i]})
	}
	return out
}

// fresh reports whether a cache timestamp is within the staleness budget. A
// zero timestamp means the entry predates timestamp tracking and counts as
// fresh; it can still be consumed by a commit.
func (c *Coordinator) fresh(at time.Time, now time.Time) bool {
	return at.IsZero() || now.Sub(at) <= c.staleAfter
}

func branchCached(book *models.Book, key string) (bool, time.Time) {
	s := book.Story
	if s == nil {
		return false, time.Time{}
	}
	if _, ok := s.BranchCache[key]; !ok {
		return false, time.Time{}
	}
	return true, s.BranchCacheAt[key]
}

func pendingSince(book *models.Book, key string) (time.Time, bool) {
	s := book.Story
	if s == nil {
		return time.Time{}, false
	}
	at, ok := s.BranchPending[key]
	return at, ok
}
