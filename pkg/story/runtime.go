package story

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Sopamo/taletwo/pkg/models"
	"github.com/Sopamo/taletwo/pkg/plan"
	"github.com/Sopamo/taletwo/pkg/services"
	"github.com/Sopamo/taletwo/pkg/store"
)

// ErrNotReady is returned when a commit was requested while the plan is
// being adapted. Clients poll readiness and retry.
var ErrNotReady = errors.New("story: not ready, retry shortly")

// ChooseParams carries a reader choice. OptionID wins when it matches one of
// the page's listed options; otherwise Text is the choice.
type ChooseParams struct {
	Index    int
	OptionID string
	Text     string
}

// ReadyStatus reports which continuations from a page are prepared.
type ReadyStatus struct {
	Next    bool            `json:"next"`
	Options map[string]bool `json:"options"`
}

// Runtime drives a book's reading session: starting the story, advancing
// linearly, and committing reader choices. Commits write through the store
// and keep the in-memory book aligned, so callers can snapshot the returned
// book directly.
type Runtime struct {
	store store.BookStore
	plans *plan.Engine
	gen   *Generator
	coord *Coordinator
	tasks *Scheduler
}

// NewRuntime creates a story runtime.
func NewRuntime(st store.BookStore, plans *plan.Engine, gen *Generator, coord *Coordinator, tasks *Scheduler) *Runtime {
	if st == nil {
		panic("NewRuntime: store must not be nil")
	}
	if plans == nil {
		panic("NewRuntime: plan engine must not be nil")
	}
	if gen == nil {
		panic("NewRuntime: generator must not be nil")
	}
	if coord == nil {
		panic("NewRuntime: coordinator must not be nil")
	}
	if tasks == nil {
		panic("NewRuntime: scheduler must not be nil")
	}
	return &Runtime{store: st, plans: plans, gen: gen, coord: coord, tasks: tasks}
}

// Start makes sure the book has an opening page, generating the plan and the
// first passage on the first call. A book whose story already has pages is
// returned as-is.
func (r *Runtime) Start(ctx context.Context, book *models.Book) (*models.Book, error) {
	if book.Story != nil && len(book.Story.Pages) > 0 {
		return book, nil
	}

	book, err := r.plans.EnsurePlanReady(ctx, book)
	if err != nil {
		return nil, err
	}

	blank := &models.StoryState{Pages: []models.Page{}, Index: -1, Notes: []string{}}
	created, err := r.store.InitStory(ctx, book.ID, blank)
	if err != nil {
		return nil, fmt.Errorf("failed to init story: %w", err)
	}
	if created {
		book.Story = blank
	} else {
		// Another call initialized the story. A crashed earlier start may
		// have left it without pages; in that case generate the opening
		// page against the existing state.
		book, err = r.store.Get(ctx, book.ID)
		if err != nil {
			return nil, err
		}
		if book.Story != nil && len(book.Story.Pages) > 0 {
			return book, nil
		}
	}

	book = r.plans.VerifyPendingBeforeNext(ctx, book)
	cand, err := r.gen.Generate(ctx, book, GenerateParams{
		UpToIndex:       -1,
		OptionBaseIndex: 0,
		AllowOptions:    true,
	})
	if err != nil {
		return nil, err
	}
	book, err = r.commit(ctx, book, cand, -1)
	if err != nil {
		return nil, err
	}

	slog.Info("Story started", "book_id", book.ID)
	r.schedulePrecompute(book.ID, book.Story.Index)
	return book, nil
}

// Next advances the story linearly from index, committing the precomputed
// continuation when present and generating it otherwise.
func (r *Runtime) Next(ctx context.Context, book *models.Book, index int) (*models.Book, error) {
	if err := validateIndex(book, index, -1); err != nil {
		return nil, err
	}

	key := models.NextKey(index)
	cand, ok := cachedCandidate(book, key)
	if !ok {
		ready, err := r.coord.EnsureReady(ctx, book.ID, index)
		if err != nil {
			return nil, err
		}
		if !ready {
			return nil, ErrNotReady
		}
		book, err = r.store.Get(ctx, book.ID)
		if err != nil {
			return nil, err
		}
		cand, ok = cachedCandidate(book, key)
		if !ok {
			return nil, ErrNotReady
		}
	}

	committed, err := r.commit(ctx, book, cand, index)
	if err != nil {
		return nil, err
	}

	slog.Info("Story advanced", "book_id", committed.ID, "index", committed.Story.Index)
	r.schedulePrecompute(committed.ID, committed.Story.Index)
	return committed, nil
}

// Choose commits the continuation for a reader choice at index, consuming
// the precomputed branch when present and generating synchronously
// otherwise. Plan adaptation runs afterwards in the background; precompute
// for the new head waits until the adapted plan is in place.
func (r *Runtime) Choose(ctx context.Context, book *models.Book, params ChooseParams) (*models.Book, error) {
	if err := validateIndex(book, params.Index, 0); err != nil {
		return nil, err
	}

	page := book.Story.Pages[params.Index]
	choice, optionID := resolveChoice(page, params.OptionID, params.Text)
	if choice == "" {
		return nil, fmt.Errorf("%w: neither optionId nor text resolves to a choice", services.ErrBadRequest)
	}

	var cand models.Candidate
	ok := false
	if optionID != "" {
		cand, ok = cachedCandidate(book, models.BranchKey(params.Index, optionID))
	}
	if !ok {
		book = r.plans.VerifyPendingBeforeNext(ctx, book)
		var err error
		cand, err = r.gen.Generate(ctx, book, GenerateParams{
			UpToIndex:       params.Index,
			OptionBaseIndex: params.Index + 1,
			NextChoice:      choice,
			AllowOptions:    true,
		})
		if err != nil {
			return nil, err
		}
	}

	committed, err := r.commit(ctx, book, cand, params.Index)
	if err != nil {
		return nil, err
	}
	slog.Info("Choice committed", "book_id", committed.ID, "index", committed.Story.Index)

	// The flag goes up before the response leaves so a readiness poll right
	// after the choice already reports not ready.
	if err := r.store.SetPlanUpdating(ctx, committed.ID, true); err != nil {
		slog.Error("Failed to set planUpdating after choice", "book_id", committed.ID, "error", err)
	} else {
		committed.PlanUpdating = true
	}

	headIndex := committed.Story.Index
	headPage := committed.Story.Pages[headIndex]
	r.tasks.Go("adapt-after-choice", func(taskCtx context.Context) {
		r.adaptThenPrecompute(taskCtx, committed.ID, choice, headPage, headIndex)
	})
	return committed, nil
}

// Ready blocks until the linear continuation from index is prepared (or the
// plan is mid-adaptation, reported as not ready) and kicks off option branch
// precompute without waiting for it.
func (r *Runtime) Ready(ctx context.Context, book *models.Book, index int) (*ReadyStatus, error) {
	if err := validateIndex(book, index, -1); err != nil {
		return nil, err
	}

	r.coord.EnsureOptionsPrecompute(book.ID, index)

	next, err := r.coord.EnsureReady(ctx, book.ID, index)
	if err != nil {
		return nil, err
	}

	status := &ReadyStatus{Next: next, Options: map[string]bool{}}
	fresh, err := r.store.Get(ctx, book.ID)
	if err != nil {
		return nil, err
	}
	if s := fresh.Story; s != nil && index >= 0 && index < len(s.Pages) {
		for _, id := range s.Pages[index].OptionIDs {
			cached, _ := branchCached(fresh, models.BranchKey(index, id))
			status.Options[id] = cached
		}
	}
	return status, nil
}

// Snapshot projects the book's reading state for clients.
func (r *Runtime) Snapshot(book *models.Book) *models.StorySnapshot {
	return models.NewSnapshot(book)
}

// adaptThenPrecompute runs plan adaptation for a committed choice and only
// then precomputes continuations for the new head, so speculative pages are
// generated against the adapted plan.
func (r *Runtime) adaptThenPrecompute(ctx context.Context, bookID, choice string, headPage models.Page, headIndex int) {
	book, err := r.store.Get(ctx, bookID)
	if err != nil || book.Plan == nil {
		// Adaptation cannot run, but the flag was already set and must not
		// stay up.
		if err != nil {
			slog.Error("Adaptation skipped, book load failed", "book_id", bookID, "error", err)
		}
		if clearErr := r.store.SetPlanUpdating(ctx, bookID, false); clearErr != nil {
			slog.Error("Failed to clear planUpdating", "book_id", bookID, "error", clearErr)
		}
		return
	}

	r.plans.AdaptAfterChoice(ctx, book, choice, headPage)
	r.schedulePrecompute(bookID, headIndex)
}

// schedulePrecompute queues speculative generation of the linear
// continuation and all option branches for the given head page.
func (r *Runtime) schedulePrecompute(bookID string, index int) {
	r.coord.PrecomputeNext(bookID, index)
	r.coord.EnsureOptionsPrecompute(bookID, index)
}

// commit appends the candidate as the new head page at fromIndex+1,
// discarding forward pages, then prunes speculative entries beyond the new
// head. The verifier record is written here and consumed before the next
// generation.
func (r *Runtime) commit(ctx context.Context, book *models.Book, cand models.Candidate, fromIndex int) (*models.Book, error) {
	s := book.Story
	if s == nil {
		return nil, errors.New("commit: story not initialized")
	}

	pages := make([]models.Page, 0, fromIndex+2)
	pages = append(pages, s.Pages[:fromIndex+1]...)
	pages = append(pages, cand.Page)

	var pv *models.PendingVerify
	if cand.SubToCheck != nil {
		pv = &models.PendingVerify{
			Passage:    cand.Page.Passage,
			SubText:    cand.SubToCheck.Text,
			PointIndex: cand.SubToCheck.PointIndex,
			SubIndex:   cand.SubToCheck.SubIndex,
		}
	}

	commit := store.StoryCommit{
		Pages:         pages,
		Index:         fromIndex + 1,
		Summary:       cand.Page.Summary,
		Notes:         models.MergeNotes(s.Notes, cand.NotesDelta),
		Turn:          s.Turn + 1,
		PendingVerify: pv,
	}
	if err := r.store.ApplyCommit(ctx, book.ID, commit); err != nil {
		return nil, fmt.Errorf("failed to commit page %d: %w", commit.Index, err)
	}

	s.Pages = commit.Pages
	s.Index = commit.Index
	s.Summary = commit.Summary
	s.Notes = commit.Notes
	s.Turn = commit.Turn
	s.PendingVerify = pv

	if err := r.coord.PruneForward(ctx, book.ID); err != nil {
		slog.Warn("Failed to prune forward branch cache", "book_id", book.ID, "error", err)
	}
	return book, nil
}

// resolveChoice maps an option id to its listed text, falling back to free
// text. The returned id is empty when the choice did not come from a listed
// option, so no branch cache key applies.
func resolveChoice(page models.Page, optionID, text string) (string, string) {
	if optionID != "" {
		if i := page.OptionIndex(optionID); i >= 0 && i < len(page.Options) {
			return page.Options[i], optionID
		}
	}
	return strings.TrimSpace(text), ""
}

// validateIndex checks that the story exists and index addresses one of its
// pages. min is -1 for linear operations, which may regenerate the opening
// page, and 0 for choices, which need an existing page to choose from.
func validateIndex(book *models.Book, index, min int) error {
	s := book.Story
	if s == nil || len(s.Pages) == 0 {
		return services.NewValidationError("index", "story has not started")
	}
	if index < min || index > len(s.Pages)-1 {
		return services.NewValidationError("index",
			fmt.Sprintf("must be between %d and %d", min, len(s.Pages)-1))
	}
	return nil
}

func cachedCandidate(book *models.Book, key string) (models.Candidate, bool) {
	s := book.Story
	if s == nil {
		return models.Candidate{}, false
	}
	cand, ok := s.BranchCache[key]
	return cand, ok
}
