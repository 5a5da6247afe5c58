package store

import (
	"context"
	"testing"
	"time"

	"github.com/Sopamo/taletwo/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreConformance exercises a BookStore against the semantics the branch
// coordinator depends on. Both backends run the same suite, which keeps the
// in-memory store a faithful stand-in for MongoDB.
func runStoreConformance(t *testing.T, newStore func(t *testing.T) BookStore) {
	ctx := context.Background()

	t.Run("insert and get", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Insert(ctx, conformanceBook("b-insert")))

		got, err := st.Get(ctx, "b-insert")
		require.NoError(t, err)
		assert.Equal(t, "user-1", got.UserID)
		assert.Equal(t, "The Count of Monte Cristo", got.BookOne)
		assert.Nil(t, got.Story, "a freshly created book has no story")

		_, err = st.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		err = st.Insert(ctx, conformanceBook("b-insert"))
		assert.Error(t, err, "duplicate ids must be rejected")
	})

	t.Run("init story only once", func(t *testing.T) {
		st := newStore(t)
		book := conformanceBook("b-init")
		require.NoError(t, st.Insert(ctx, book))

		created, err := st.InitStory(ctx, book.ID, conformanceStory())
		require.NoError(t, err)
		assert.True(t, created)

		again, err := st.InitStory(ctx, book.ID, &models.StoryState{Index: 99})
		require.NoError(t, err)
		assert.False(t, again, "second init must lose the race")

		got, err := st.Get(ctx, book.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Story)
		assert.Equal(t, -1, got.Story.Index, "losing init must not overwrite the story")

		missing, err := st.InitStory(ctx, "missing", conformanceStory())
		require.NoError(t, err)
		assert.False(t, missing)
	})

	t.Run("apply commit preserves coordination state", func(t *testing.T) {
		st := newStore(t)
		book := conformanceBook("b-commit")
		now := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, st.Insert(ctx, book))
		_, err := st.InitStory(ctx, book.ID, conformanceStory())
		require.NoError(t, err)

		claimed, err := st.ClaimPending(ctx, book.ID, "1:__next__", now)
		require.NoError(t, err)
		require.True(t, claimed)
		require.NoError(t, st.SetBranch(ctx, book.ID, "0:__next__", conformanceCandidate("P1"), now))

		commit := StoryCommit{
			Pages:         []models.Page{{Passage: "P0", Summary: "s0"}},
			Index:         0,
			Summary:       "s0",
			Notes:         []string{"n0"},
			Turn:          1,
			PendingVerify: &models.PendingVerify{Passage: "P0", SubText: "meet the courier", PointIndex: 0, SubIndex: 0},
		}
		require.NoError(t, st.ApplyCommit(ctx, book.ID, commit))

		got, err := st.Get(ctx, book.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Story)
		assert.Equal(t, 0, got.Story.Index)
		require.Len(t, got.Story.Pages, 1)
		assert.Equal(t, "P0", got.Story.Pages[0].Passage)
		assert.Equal(t, []string{"n0"}, got.Story.Notes)
		assert.Equal(t, 1, got.Story.Turn)
		require.NotNil(t, got.Story.PendingVerify)
		assert.Equal(t, "meet the courier", got.Story.PendingVerify.SubText)

		assert.Contains(t, got.Story.BranchCache, "0:__next__", "commit must not clobber the branch cache")
		assert.Contains(t, got.Story.BranchPending, "1:__next__", "commit must not clobber pending claims")

		assert.ErrorIs(t, st.ApplyCommit(ctx, "missing", commit), ErrNotFound)
	})

	t.Run("set and clear pending verify", func(t *testing.T) {
		st := newStore(t)
		book := conformanceBook("b-verify")
		require.NoError(t, st.Insert(ctx, book))
		_, err := st.InitStory(ctx, book.ID, conformanceStory())
		require.NoError(t, err)

		pv := &models.PendingVerify{Passage: "P0", SubText: "first strange letter", PointIndex: 0, SubIndex: 1}
		require.NoError(t, st.SetPendingVerify(ctx, book.ID, pv))

		got, err := st.Get(ctx, book.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Story.PendingVerify)
		assert.Equal(t, 1, got.Story.PendingVerify.SubIndex)

		require.NoError(t, st.SetPendingVerify(ctx, book.ID, nil))
		got, err = st.Get(ctx, book.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Story.PendingVerify)

		assert.ErrorIs(t, st.SetPendingVerify(ctx, "missing", pv), ErrNotFound)
	})

	t.Run("plan writes", func(t *testing.T) {
		st := newStore(t)
		book := conformanceBook("b-plan")
		require.NoError(t, st.Insert(ctx, book))

		require.NoError(t, st.SetPlan(ctx, book.ID, conformancePlan()))
		got, err := st.Get(ctx, book.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Plan)
		require.Len(t, got.Plan.Points, 3)
		assert.Equal(t, "Setup", got.Plan.Points[0].Title)
		assert.Equal(t, []string{"test a correction", "notice the erasure"}, got.Plan.Points[1].Substeps)

		require.NoError(t, st.SetPlanCursor(ctx, book.ID, 1, 1))
		got, err = st.Get(ctx, book.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Plan.CurPoint)
		assert.Equal(t, 1, got.Plan.CurSub)
		assert.Len(t, got.Plan.Points, 3, "cursor write must leave the outline intact")

		require.NoError(t, st.SetPlanUpdating(ctx, book.ID, true))
		got, err = st.Get(ctx, book.ID)
		require.NoError(t, err)
		assert.True(t, got.PlanUpdating)

		require.NoError(t, st.SetPlanUpdating(ctx, book.ID, false))
		got, err = st.Get(ctx, book.ID)
		require.NoError(t, err)
		assert.False(t, got.PlanUpdating)

		assert.ErrorIs(t, st.SetPlan(ctx, "missing", conformancePlan()), ErrNotFound)
	})

	t.Run("claim pending", func(t *testing.T) {
		st := newStore(t)
		book := conformanceBook("b-claim")
		now := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, st.Insert(ctx, book))
		_, err := st.InitStory(ctx, book.ID, conformanceStory())
		require.NoError(t, err)

		claimed, err := st.ClaimPending(ctx, book.ID, "0:__next__", now)
		require.NoError(t, err)
		assert.True(t, claimed)

		claimed, err = st.ClaimPending(ctx, book.ID, "0:__next__", now)
		require.NoError(t, err)
		assert.False(t, claimed, "a held claim must block a second claimer")

		claimed, err = st.ClaimPending(ctx, book.ID, "0:0-aaaa1111", now)
		require.NoError(t, err)
		assert.True(t, claimed, "claims are independent per key")

		require.NoError(t, st.SetBranch(ctx, book.ID, "2:__next__", conformanceCandidate("P3"), now))
		claimed, err = st.ClaimPending(ctx, book.ID, "2:__next__", now)
		require.NoError(t, err)
		assert.False(t, claimed, "a cached branch must block a claim")

		claimed, err = st.ClaimPending(ctx, "missing", "0:__next__", now)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("claim allowing stale cache", func(t *testing.T) {
		st := newStore(t)
		book := conformanceBook("b-stale-claim")
		base := time.Now().UTC().Truncate(time.Millisecond)
		staleBefore := base.Add(-2 * time.Minute)
		require.NoError(t, st.Insert(ctx, book))
		_, err := st.InitStory(ctx, book.ID, conformanceStory())
		require.NoError(t, err)

		claimed, err := st.ClaimPendingAllowStale(ctx, book.ID, "0:__next__", base, staleBefore)
		require.NoError(t, err)
		assert.True(t, claimed, "no cache at all admits the claim")

		require.NoError(t, st.SetBranch(ctx, book.ID, "1:__next__", conformanceCandidate("fresh"), base))
		claimed, err = st.ClaimPendingAllowStale(ctx, book.ID, "1:__next__", base, staleBefore)
		require.NoError(t, err)
		assert.False(t, claimed, "a fresh cache entry must block the claim")

		require.NoError(t, st.SetBranch(ctx, book.ID, "2:__next__", conformanceCandidate("stale"), base.Add(-3*time.Minute)))
		claimed, err = st.ClaimPendingAllowStale(ctx, book.ID, "2:__next__", base, staleBefore)
		require.NoError(t, err)
		assert.True(t, claimed, "a stale cache entry admits a refresh claim")

		claimed, err = st.ClaimPendingAllowStale(ctx, book.ID, "2:__next__", base, staleBefore)
		require.NoError(t, err)
		assert.False(t, claimed, "the refresh claim itself must block further claimers")
	})

	t.Run("takeover pending", func(t *testing.T) {
		st := newStore(t)
		book := conformanceBook("b-takeover")
		now := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, st.Insert(ctx, book))
		_, err := st.InitStory(ctx, book.ID, conformanceStory())
		require.NoError(t, err)

		claimed, err := st.ClaimPending(ctx, book.ID, "0:__next__", now)
		require.NoError(t, err)
		require.True(t, claimed)

		got, err := st.Get(ctx, book.ID)
		require.NoError(t, err)
		observed, ok := got.Story.BranchPending["0:__next__"]
		require.True(t, ok)

		later := observed.Add(90 * time.Second)
		taken, err := st.TakeoverPending(ctx, book.ID, "0:__next__", observed.Add(-time.Second), later)
		require.NoError(t, err)
		assert.False(t, taken, "takeover must lose when the claim timestamp moved")

		taken, err = st.TakeoverPending(ctx, book.ID, "0:__next__", observed, later)
		require.NoError(t, err)
		assert.True(t, taken)

		got, err = st.Get(ctx, book.ID)
		require.NoError(t, err)
		refreshed, ok := got.Story.BranchPending["0:__next__"]
		require.True(t, ok)
		assert.True(t, refreshed.Equal(later), "takeover must refresh the claim timestamp")

		taken, err = st.TakeoverPending(ctx, book.ID, "9:__next__", observed, later)
		require.NoError(t, err)
		assert.False(t, taken, "absent claims cannot be taken over")
	})

	t.Run("release pending", func(t *testing.T) {
		st := newStore(t)
		book := conformanceBook("b-release")
		now := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, st.Insert(ctx, book))
		_, err := st.InitStory(ctx, book.ID, conformanceStory())
		require.NoError(t, err)

		claimed, err := st.ClaimPending(ctx, book.ID, "0:__next__", now)
		require.NoError(t, err)
		require.True(t, claimed)

		require.NoError(t, st.ReleasePending(ctx, book.ID, "0:__next__"))
		got, err := st.Get(ctx, book.ID)
		require.NoError(t, err)
		assert.NotContains(t, got.Story.BranchPending, "0:__next__")

		claimed, err = st.ClaimPending(ctx, book.ID, "0:__next__", now)
		require.NoError(t, err)
		assert.True(t, claimed, "a released key is claimable again")

		require.NoError(t, st.ReleasePending(ctx, book.ID, "never-claimed"))
		require.NoError(t, st.ReleasePending(ctx, "missing", "0:__next__"))
	})

	t.Run("set branch stores candidate and releases claim", func(t *testing.T) {
		st := newStore(t)
		book := conformanceBook("b-branch")
		now := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, st.Insert(ctx, book))
		_, err := st.InitStory(ctx, book.ID, conformanceStory())
		require.NoError(t, err)

		claimed, err := st.ClaimPending(ctx, book.ID, "0:__next__", now)
		require.NoError(t, err)
		require.True(t, claimed)

		cand := models.Candidate{
			Page: models.Page{
				Passage:   "The bells rang twice before dawn.",
				Summary:   "bells at dawn",
				Options:   []string{"run", "hide", "listen"},
				OptionIDs: []string{"1-aaaa1111", "1-bbbb2222", "1-cccc3333"},
			},
			NotesDelta: []string{"the bells mark a summons"},
			SubToCheck: &models.SubRef{PointIndex: 0, SubIndex: 1, Text: "first strange letter"},
		}
		require.NoError(t, st.SetBranch(ctx, book.ID, "0:__next__", cand, now))

		got, err := st.Get(ctx, book.ID)
		require.NoError(t, err)
		stored, ok := got.Story.BranchCache["0:__next__"]
		require.True(t, ok)
		assert.Equal(t, cand.Page.Passage, stored.Page.Passage)
		assert.Equal(t, cand.Page.Options, stored.Page.Options)
		assert.Equal(t, cand.Page.OptionIDs, stored.Page.OptionIDs)
		assert.Equal(t, cand.NotesDelta, stored.NotesDelta)
		require.NotNil(t, stored.SubToCheck)
		assert.Equal(t, "first strange letter", stored.SubToCheck.Text)

		at, ok := got.Story.BranchCacheAt["0:__next__"]
		require.True(t, ok)
		assert.True(t, at.Equal(now))
		assert.NotContains(t, got.Story.BranchPending, "0:__next__", "storing a branch releases its claim")

		assert.ErrorIs(t, st.SetBranch(ctx, "missing", "0:__next__", cand, now), ErrNotFound)
	})

	t.Run("clear stale branch", func(t *testing.T) {
		st := newStore(t)
		book := conformanceBook("b-clear")
		now := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, st.Insert(ctx, book))
		_, err := st.InitStory(ctx, book.ID, conformanceStory())
		require.NoError(t, err)

		require.NoError(t, st.SetBranch(ctx, book.ID, "0:__next__", conformanceCandidate("P1"), now))
		got, err := st.Get(ctx, book.ID)
		require.NoError(t, err)
		observedAt := got.Story.BranchCacheAt["0:__next__"]

		cleared, err := st.ClearStaleBranch(ctx, book.ID, "0:__next__", observedAt.Add(time.Millisecond))
		require.NoError(t, err)
		assert.False(t, cleared, "clear must lose when the entry was refreshed")

		got, err = st.Get(ctx, book.ID)
		require.NoError(t, err)
		assert.Contains(t, got.Story.BranchCache, "0:__next__", "losing clear must leave the entry")

		cleared, err = st.ClearStaleBranch(ctx, book.ID, "0:__next__", observedAt)
		require.NoError(t, err)
		assert.True(t, cleared)

		got, err = st.Get(ctx, book.ID)
		require.NoError(t, err)
		assert.NotContains(t, got.Story.BranchCache, "0:__next__")
		assert.NotContains(t, got.Story.BranchCacheAt, "0:__next__")

		cleared, err = st.ClearStaleBranch(ctx, book.ID, "0:__next__", observedAt)
		require.NoError(t, err)
		assert.False(t, cleared, "an already cleared entry cannot be cleared again")
	})

	t.Run("unset branches leaves claims", func(t *testing.T) {
		st := newStore(t)
		book := conformanceBook("b-prune")
		now := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, st.Insert(ctx, book))
		_, err := st.InitStory(ctx, book.ID, conformanceStory())
		require.NoError(t, err)

		require.NoError(t, st.SetBranch(ctx, book.ID, "3:__next__", conformanceCandidate("P4"), now))
		require.NoError(t, st.SetBranch(ctx, book.ID, "1:__next__", conformanceCandidate("P2"), now))
		claimed, err := st.ClaimPending(ctx, book.ID, "3:3-aaaa1111", now)
		require.NoError(t, err)
		require.True(t, claimed)

		require.NoError(t, st.UnsetBranches(ctx, book.ID, []string{"3:__next__", "7:__next__"}))

		got, err := st.Get(ctx, book.ID)
		require.NoError(t, err)
		assert.NotContains(t, got.Story.BranchCache, "3:__next__")
		assert.NotContains(t, got.Story.BranchCacheAt, "3:__next__")
		assert.Contains(t, got.Story.BranchCache, "1:__next__", "unlisted entries survive")
		assert.Contains(t, got.Story.BranchPending, "3:3-aaaa1111", "pruning never touches claims")

		require.NoError(t, st.UnsetBranches(ctx, book.ID, nil))
		require.NoError(t, st.UnsetBranches(ctx, "missing", []string{"1:__next__"}))
	})

	t.Run("list idle books", func(t *testing.T) {
		st := newStore(t)
		base := time.Now().UTC().Truncate(time.Millisecond)

		for _, b := range []struct {
			id  string
			age time.Duration
		}{
			{id: "b-new", age: 0},
			{id: "b-old", age: 10 * time.Minute},
			{id: "b-mid", age: 5 * time.Minute},
		} {
			book := conformanceBook(b.id)
			book.UpdatedAt = base.Add(-b.age)
			require.NoError(t, st.Insert(ctx, book))
		}

		idle, err := st.ListIdleBooks(ctx, base.Add(-time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, idle, 2)
		assert.Equal(t, "b-old", idle[0].ID, "oldest first")
		assert.Equal(t, "b-mid", idle[1].ID)

		limited, err := st.ListIdleBooks(ctx, base.Add(-time.Minute), 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, "b-old", limited[0].ID)

		none, err := st.ListIdleBooks(ctx, base.Add(-time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func conformanceBook(id string) *models.Book {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Book{
		ID:        id,
		UserID:    "user-1",
		BookOne:   "The Count of Monte Cristo",
		BookTwo:   "Neuromancer",
		Genre:     "dark fantasy",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func conformanceStory() *models.StoryState {
	return &models.StoryState{Pages: []models.Page{}, Index: -1, Notes: []string{}}
}

func conformancePlan() *models.Plan {
	return &models.Plan{
		OverallIdea: "a courier discovers the letters she carries rewrite the past",
		Conflict:    "every correction erases someone she loves",
		Points: []models.Point{
			{Title: "Setup", Brief: "daily route", Substeps: []string{"introduce the courier", "first strange letter"}},
			{Title: "Turn", Brief: "rules emerge", Substeps: []string{"test a correction", "notice the erasure"}},
			{Title: "End", Brief: "the last letter", Substeps: []string{"final delivery"}},
		},
	}
}

func conformanceCandidate(passage string) models.Candidate {
	return models.Candidate{
		Page:       models.Page{Passage: passage, Summary: "summary of " + passage},
		NotesDelta: []string{"note for " + passage},
	}
}
