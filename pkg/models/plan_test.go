package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlan() *Plan {
	return &Plan{
		OverallIdea: "a courier discovers the letters she carries rewrite the past",
		Conflict:    "every correction erases someone she loves",
		Points: []Point{
			{Title: "Setup", Brief: "daily route", Substeps: []string{"introduce the courier", "first strange letter"}},
			{Title: "Turn", Brief: "rules emerge", Substeps: []string{"test a correction", "notice the erasure", "confront the sender"}},
			{Title: "End", Brief: "the last letter", Substeps: []string{"final delivery"}},
		},
	}
}

func TestPlanAdvance(t *testing.T) {
	tests := []struct {
		name      string
		curPoint  int
		curSub    int
		wantPoint int
		wantSub   int
	}{
		{name: "within point", curPoint: 0, curSub: 0, wantPoint: 0, wantSub: 1},
		{name: "rolls over to next point", curPoint: 0, curSub: 1, wantPoint: 1, wantSub: 0},
		{name: "mid second point", curPoint: 1, curSub: 1, wantPoint: 1, wantSub: 2},
		{name: "past final point parks at end", curPoint: 2, curSub: 0, wantPoint: 3, wantSub: 0},
		{name: "exhausted plan is a no-op", curPoint: 3, curSub: 0, wantPoint: 3, wantSub: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPlan()
			p.CurPoint = tt.curPoint
			p.CurSub = tt.curSub
			p.Advance()
			assert.Equal(t, tt.wantPoint, p.CurPoint)
			assert.Equal(t, tt.wantSub, p.CurSub)
		})
	}
}

func TestPlanAdvanceNeverMovesBackward(t *testing.T) {
	p := testPlan()
	prevPoint, prevSub := p.CurPoint, p.CurSub
	for i := 0; i < 20; i++ {
		p.Advance()
		moved := p.CurPoint > prevPoint || (p.CurPoint == prevPoint && p.CurSub >= prevSub)
		require.True(t, moved, "cursor moved backward at step %d: (%d,%d) -> (%d,%d)",
			i, prevPoint, prevSub, p.CurPoint, p.CurSub)
		prevPoint, prevSub = p.CurPoint, p.CurSub
	}
	assert.True(t, p.Exhausted())
}

func TestPlanCurrentSubstep(t *testing.T) {
	p := testPlan()
	assert.Equal(t, "introduce the courier", p.CurrentSubstep())

	p.CurPoint, p.CurSub = 1, 2
	assert.Equal(t, "confront the sender", p.CurrentSubstep())

	p.CurPoint, p.CurSub = 3, 0
	assert.Empty(t, p.CurrentSubstep(), "exhausted plan has no current substep")

	p.CurPoint, p.CurSub = 0, 9
	assert.Empty(t, p.CurrentSubstep(), "cursor outside substep range")
}

func TestPlanSubstepAt(t *testing.T) {
	p := testPlan()
	assert.Equal(t, "test a correction", p.SubstepAt(1, 0))
	assert.Empty(t, p.SubstepAt(5, 0))
	assert.Empty(t, p.SubstepAt(-1, 0))
	assert.Empty(t, p.SubstepAt(0, 7))
}

func TestPlanInPointTail(t *testing.T) {
	p := testPlan()

	// Point 1 has three substeps; the last two are the tail window.
	p.CurPoint, p.CurSub = 1, 0
	assert.False(t, p.InPointTail(2))
	p.CurSub = 1
	assert.True(t, p.InPointTail(2))
	p.CurSub = 2
	assert.True(t, p.InPointTail(2))

	// Final point has no successor, so no buildup window.
	p.CurPoint, p.CurSub = 2, 0
	assert.False(t, p.InPointTail(2))
}

func TestPlanNextPoint(t *testing.T) {
	p := testPlan()
	require.NotNil(t, p.NextPoint())
	assert.Equal(t, "Turn", p.NextPoint().Title)

	p.CurPoint = 2
	assert.Nil(t, p.NextPoint())
}
