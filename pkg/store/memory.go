package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sopamo/taletwo/pkg/models"
)

// MemoryStore is an in-memory BookStore with the same CAS semantics as
// MongoStore. Used by tests and local development without a database.
type MemoryStore struct {
	mu    sync.Mutex
	books map[string]*models.Book
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{books: make(map[string]*models.Book)}
}

func (s *MemoryStore) Insert(_ context.Context, book *models.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.books[book.ID]; exists {
		return fmt.Errorf("insert book: duplicate id %s", book.ID)
	}
	s.books[book.ID] = cloneBook(book)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBook(book), nil
}

func (s *MemoryStore) InitStory(_ context.Context, bookID string, story *models.StoryState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[bookID]
	if !ok || book.Story != nil {
		return false, nil
	}
	book.Story = cloneStory(story)
	book.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *MemoryStore) ApplyCommit(_ context.Context, bookID string, commit StoryCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[bookID]
	if !ok {
		return ErrNotFound
	}
	st := ensureStory(book)
	st.Pages = clonePages(commit.Pages)
	st.Index = commit.Index
	st.Summary = commit.Summary
	st.Notes = cloneStrings(commit.Notes)
	st.Turn = commit.Turn
	st.PendingVerify = clonePendingVerify(commit.PendingVerify)
	book.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetPendingVerify(_ context.Context, bookID string, pv *models.PendingVerify) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[bookID]
	if !ok {
		return ErrNotFound
	}
	ensureStory(book).PendingVerify = clonePendingVerify(pv)
	return nil
}

func (s *MemoryStore) SetPlan(_ context.Context, bookID string, plan *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[bookID]
	if !ok {
		return ErrNotFound
	}
	book.Plan = clonePlan(plan)
	book.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetPlanCursor(_ context.Context, bookID string, curPoint, curSub int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[bookID]
	if !ok {
		return ErrNotFound
	}
	if book.Plan == nil {
		book.Plan = &models.Plan{}
	}
	book.Plan.CurPoint = curPoint
	book.Plan.CurSub = curSub
	return nil
}

func (s *MemoryStore) SetPlanUpdating(_ context.Context, bookID string, updating bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[bookID]
	if !ok {
		return ErrNotFound
	}
	book.PlanUpdating = updating
	return nil
}

func (s *MemoryStore) ClaimPending(_ context.Context, bookID, key string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[bookID]
	if !ok {
		return false, nil
	}
	st := ensureStory(book)
	if _, cached := st.BranchCache[key]; cached {
		return false, nil
	}
	if _, pending := st.BranchPending[key]; pending {
		return false, nil
	}
	if st.BranchPending == nil {
		st.BranchPending = make(map[string]time.Time)
	}
	st.BranchPending[key] = now
	return true, nil
}

func (s *MemoryStore) ClaimPendingAllowStale(_ context.Context, bookID, key string, now, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[bookID]
	if !ok {
		return false, nil
	}
	st := ensureStory(book)
	if _, pending := st.BranchPending[key]; pending {
		return false, nil
	}
	if _, cached := st.BranchCache[key]; cached {
		at, hasAt := st.BranchCacheAt[key]
		if !hasAt || !at.Before(staleBefore) {
			return false, nil
		}
	}
	if st.BranchPending == nil {
		st.BranchPending = make(map[string]time.Time)
	}
	st.BranchPending[key] = now
	return true, nil
}

func (s *MemoryStore) TakeoverPending(_ context.Context, bookID, key string, observed, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[bookID]
	if !ok {
		return false, nil
	}
	st := ensureStory(book)
	ts, pending := st.BranchPending[key]
	if !pending || !ts.Equal(observed) {
		return false, nil
	}
	st.BranchPending[key] = now
	return true, nil
}

func (s *MemoryStore) ReleasePending(_ context.Context, bookID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[bookID]
	if !ok {
		return nil
	}
	if book.Story != nil {
		delete(book.Story.BranchPending, key)
	}
	return nil
}

func (s *MemoryStore) SetBranch(_ context.Context, bookID, key string, cand models.Candidate, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[bookID]
	if !ok {
		return ErrNotFound
	}
	st := ensureStory(book)
	if st.BranchCache == nil {
		st.BranchCache = make(map[string]models.Candidate)
	}
	if st.BranchCacheAt == nil {
		st.BranchCacheAt = make(map[string]time.Time)
	}
	st.BranchCache[key] = cloneCandidate(cand)
	st.BranchCacheAt[key] = at
	delete(st.BranchPending, key)
	return nil
}

func (s *MemoryStore) ClearStaleBranch(_ context.Context, bookID, key string, observedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[bookID]
	if !ok || book.Story == nil {
		return false, nil
	}
	st := book.Story
	at, hasAt := st.BranchCacheAt[key]
	if !hasAt || !at.Equal(observedAt) {
		return false, nil
	}
	delete(st.BranchCache, key)
	delete(st.BranchCacheAt, key)
	return true, nil
}

func (s *MemoryStore) UnsetBranches(_ context.Context, bookID string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[bookID]
	if !ok || book.Story == nil {
		return nil
	}
	for _, key := range keys {
		delete(book.Story.BranchCache, key)
		delete(book.Story.BranchCacheAt, key)
	}
	return nil
}

func (s *MemoryStore) ListIdleBooks(_ context.Context, updatedBefore time.Time, limit int) ([]*models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Book
	for _, book := range s.books {
		if book.UpdatedAt.Before(updatedBefore) {
			out = append(out, cloneBook(book))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ensureStory mirrors Mongo's implicit creation of the story subdocument
// when a dotted path is set on a book without one.
func ensureStory(book *models.Book) *models.StoryState {
	if book.Story == nil {
		book.Story = &models.StoryState{}
	}
	return book.Story
}

func cloneBook(b *models.Book) *models.Book {
	out := *b
	out.Plan = clonePlan(b.Plan)
	out.Story = cloneStory(b.Story)
	return &out
}

func clonePlan(p *models.Plan) *models.Plan {
	if p == nil {
		return nil
	}
	out := *p
	out.Points = make([]models.Point, len(p.Points))
	for i, pt := range p.Points {
		out.Points[i] = pt
		out.Points[i].Substeps = cloneStrings(pt.Substeps)
	}
	return &out
}

func cloneStory(st *models.StoryState) *models.StoryState {
	if st == nil {
		return nil
	}
	out := *st
	out.Pages = clonePages(st.Pages)
	out.Notes = cloneStrings(st.Notes)
	out.BranchCache = cloneCandidates(st.BranchCache)
	out.BranchCacheAt = cloneTimes(st.BranchCacheAt)
	out.BranchPending = cloneTimes(st.BranchPending)
	out.PendingVerify = clonePendingVerify(st.PendingVerify)
	return &out
}

func clonePages(pages []models.Page) []models.Page {
	if pages == nil {
		return nil
	}
	out := make([]models.Page, len(pages))
	for i, p := range pages {
		out[i] = p
		out[i].Options = cloneStrings(p.Options)
		out[i].OptionIDs = cloneStrings(p.OptionIDs)
	}
	return out
}

func cloneCandidate(c models.Candidate) models.Candidate {
	out := c
	out.Page.Options = cloneStrings(c.Page.Options)
	out.Page.OptionIDs = cloneStrings(c.Page.OptionIDs)
	out.NotesDelta = cloneStrings(c.NotesDelta)
	if c.SubToCheck != nil {
		sub := *c.SubToCheck
		out.SubToCheck = &sub
	}
	return out
}

func cloneCandidates(src map[string]models.Candidate) map[string]models.Candidate {
	if src == nil {
		return nil
	}
	out := make(map[string]models.Candidate, len(src))
	for k, v := range src {
		out[k] = cloneCandidate(v)
	}
	return out
}

func cloneTimes(src map[string]time.Time) map[string]time.Time {
	if src == nil {
		return nil
	}
	out := make(map[string]time.Time, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

func clonePendingVerify(pv *models.PendingVerify) *models.PendingVerify {
	if pv == nil {
		return nil
	}
	out := *pv
	return &out
}
