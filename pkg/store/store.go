// Package store persists books and provides the compare-and-set primitives
// the branch coordinator is built on. Every operation is scoped to a single
// book document, so coordination survives process restarts and works across
// multiple workers without an external lock service.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Sopamo/taletwo/pkg/models"
)

// ErrNotFound is returned when the requested book does not exist.
var ErrNotFound = errors.New("store: book not found")

// StoryCommit captures exactly the fields a page commit writes. The branch
// cache and pending maps are deliberately absent: they belong to the CAS
// operations and must survive a concurrent commit.
type StoryCommit struct {
	Pages         []models.Page
	Index         int
	Summary       string
	Notes         []string
	Turn          int
	PendingVerify *models.PendingVerify
}

// BookStore persists books. The Claim/Takeover/Clear operations are atomic
// compare-and-set updates; their boolean result reports whether the caller
// won the update.
type BookStore interface {
	// Insert stores a new book.
	Insert(ctx context.Context, book *models.Book) error
	// Get loads a book by id, returning ErrNotFound when absent.
	Get(ctx context.Context, id string) (*models.Book, error)

	// InitStory sets the story state only when the book has none yet.
	// Returns false when a story already existed.
	InitStory(ctx context.Context, bookID string, story *models.StoryState) (bool, error)
	// ApplyCommit writes the commit fields of the story state.
	ApplyCommit(ctx context.Context, bookID string, commit StoryCommit) error
	// SetPendingVerify overwrites the pending verification record (nil clears).
	SetPendingVerify(ctx context.Context, bookID string, pv *models.PendingVerify) error

	// SetPlan replaces the plan wholesale.
	SetPlan(ctx context.Context, bookID string, plan *models.Plan) error
	// SetPlanCursor moves the plan cursor.
	SetPlanCursor(ctx context.Context, bookID string, curPoint, curSub int) error
	// SetPlanUpdating flips the adaptation-in-progress flag.
	SetPlanUpdating(ctx context.Context, bookID string, updating bool) error

	// ClaimPending claims a branch key iff neither a cache entry nor a
	// pending claim exists for it.
	ClaimPending(ctx context.Context, bookID, key string, now time.Time) (bool, error)
	// ClaimPendingAllowStale additionally admits the claim when a cache
	// entry exists but its timestamp is older than staleBefore. Used by
	// precompute to refresh stale entries.
	ClaimPendingAllowStale(ctx context.Context, bookID, key string, now, staleBefore time.Time) (bool, error)
	// TakeoverPending replaces a pending claim iff its timestamp still
	// equals observed.
	TakeoverPending(ctx context.Context, bookID, key string, observed, now time.Time) (bool, error)
	// ReleasePending drops a pending claim unconditionally. Idempotent.
	ReleasePending(ctx context.Context, bookID, key string) error
	// SetBranch stores a generated candidate and releases the pending claim.
	SetBranch(ctx context.Context, bookID, key string, cand models.Candidate, at time.Time) error
	// ClearStaleBranch unsets a cache entry iff its timestamp still equals
	// observedAt.
	ClearStaleBranch(ctx context.Context, bookID, key string, observedAt time.Time) (bool, error)
	// UnsetBranches drops the cache entries (not pending claims) for keys.
	UnsetBranches(ctx context.Context, bookID string, keys []string) error

	// ListIdleBooks returns up to limit books whose updatedAt is older than
	// updatedBefore, oldest first. Used by the retention janitor.
	ListIdleBooks(ctx context.Context, updatedBefore time.Time, limit int) ([]*models.Book, error)
}
