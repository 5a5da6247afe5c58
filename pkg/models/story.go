package models

import (
	"strings"
	"time"
)

// StoryState is the mutable reading state of a book: committed pages, memory
// notes, and the speculative branch cache with its coordination bookkeeping.
type StoryState struct {
	Pages   []Page   `json:"pages" bson:"pages"`
	Index   int      `json:"index" bson:"index"`
	Notes   []string `json:"notes" bson:"notes"`
	Summary string   `json:"summary" bson:"summary"`
	Turn    int      `json:"turn" bson:"turn"`

	// Coordination state. Never exposed through snapshots.
	BranchCache   map[string]Candidate `json:"-" bson:"branchCache,omitempty"`
	BranchCacheAt map[string]time.Time `json:"-" bson:"branchCacheAt,omitempty"`
	BranchPending map[string]time.Time `json:"-" bson:"branchPending,omitempty"`
	PendingVerify *PendingVerify       `json:"-" bson:"pendingVerify,omitempty"`
}

// Page is one committed chapter of prose, optionally offering exactly three
// reader choices. OptionIDs parallels Options and is assigned once at commit.
type Page struct {
	Passage   string   `json:"passage" bson:"passage"`
	Summary   string   `json:"summary" bson:"summary"`
	Options   []string `json:"options,omitempty" bson:"options,omitempty"`
	OptionIDs []string `json:"optionIds,omitempty" bson:"optionIds,omitempty"`
}

// Candidate is a speculatively generated page held in the branch cache until
// a commit consumes it or pruning discards it.
type Candidate struct {
	Page       Page     `json:"page" bson:"page"`
	NotesDelta []string `json:"notesDelta,omitempty" bson:"notesDelta,omitempty"`
	SubToCheck *SubRef  `json:"subToCheck,omitempty" bson:"subToCheck,omitempty"`
}

// SubRef identifies a plan sub-step a generated passage was asked to
// dramatize.
type SubRef struct {
	PointIndex int    `json:"pointIndex" bson:"pointIndex"`
	SubIndex   int    `json:"subIndex" bson:"subIndex"`
	Text       string `json:"text" bson:"text"`
}

// PendingVerify records a committed passage awaiting sub-step verification.
// It is processed once, immediately before the next generation for the book.
type PendingVerify struct {
	Passage    string `json:"passage" bson:"passage"`
	SubText    string `json:"subText" bson:"subText"`
	PointIndex int    `json:"pointIndex" bson:"pointIndex"`
	SubIndex   int    `json:"subIndex" bson:"subIndex"`
}

// OptionIndex returns the position of the given option id on the page, or -1.
func (pg Page) OptionIndex(optionID string) int {
	for i, id := range pg.OptionIDs {
		if id == optionID {
			return i
		}
	}
	return -1
}

// MergeNotes appends delta entries onto notes, preserving insertion order and
// dropping duplicates and blank strings.
func MergeNotes(notes, delta []string) []string {
	seen := make(map[string]struct{}, len(notes)+len(delta))
	merged := make([]string, 0, len(notes)+len(delta))
	for _, lists := range [][]string{notes, delta} {
		for _, n := range lists {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			merged = append(merged, n)
		}
	}
	return merged
}
