package models

// StorySnapshot is the read-only story projection served to clients. It must
// never carry branchCache, branchCacheAt, branchPending, or pendingVerify.
type StorySnapshot struct {
	Pages     []Page     `json:"pages"`
	Index     int        `json:"index"`
	Notes     []string   `json:"notes"`
	Summary   string     `json:"summary"`
	Turn      int        `json:"turn"`
	DebugPlan *DebugPlan `json:"debugPlan,omitempty"`
}

// DebugPlan mirrors the plan cursor and outline for client-side inspection.
type DebugPlan struct {
	CurPoint int          `json:"curPoint"`
	CurSub   int          `json:"curSub"`
	Points   []DebugPoint `json:"points"`
}

// DebugPoint is one plan point as exposed in a snapshot.
type DebugPoint struct {
	Title    string   `json:"title"`
	Brief    string   `json:"brief"`
	Substeps []string `json:"substeps,omitempty"`
}

// NewSnapshot projects a book's story state for clients. Pages and notes are
// never nil so clients always receive arrays.
func NewSnapshot(book *Book) *StorySnapshot {
	snap := &StorySnapshot{
		Pages: []Page{},
		Index: -1,
		Notes: []string{},
	}
	if s := book.Story; s != nil {
		if len(s.Pages) > 0 {
			snap.Pages = s.Pages
		}
		if len(s.Notes) > 0 {
			snap.Notes = s.Notes
		}
		snap.Index = s.Index
		snap.Summary = s.Summary
		snap.Turn = s.Turn
	}
	if p := book.Plan; p != nil {
		dp := &DebugPlan{
			CurPoint: p.CurPoint,
			CurSub:   p.CurSub,
			Points:   make([]DebugPoint, 0, len(p.Points)),
		}
		for _, pt := range p.Points {
			dp.Points = append(dp.Points, DebugPoint{Title: pt.Title, Brief: pt.Brief, Substeps: pt.Substeps})
		}
		snap.DebugPlan = dp
	}
	return snap
}
