package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/Sopamo/taletwo/pkg/models"
	"github.com/Sopamo/taletwo/pkg/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adaptedPoints() []prompt.AdaptPoint {
	return []prompt.AdaptPoint{
		{Title: "Fallout", Brief: "after the gate", Substeps: []string{"consequences", "a new ally"}},
		{Title: "Countermove", Brief: "guild pressure", Substeps: []string{"the blockade", "smuggling run"}},
		{Title: "Endgame", Brief: "the vault truth", Substeps: []string{"descend again", "the reveal"}},
	}
}

func adaptJSON(t *testing.T, curPoint, curSub int) string {
	t.Helper()
	return jsonBody(t, prompt.AdaptResponse{
		OverallIdea: "the dive goes political",
		Conflict:    "the guilds want the vault sealed",
		Points:      adaptedPoints(),
		CurPoint:    curPoint,
		CurSub:      curSub,
	})
}

func adaptTestBook(t *testing.T) *models.Book {
	t.Helper()
	book := testEngineBook()
	book.Plan = readyPlan()
	book.Plan.CurPoint, book.Plan.CurSub = 1, 1
	book.Story = &models.StoryState{
		Pages: []models.Page{{Passage: "P0", Summary: "s0"}},
		Index: 0,
		Notes: []string{"the rig is failing"},
		Turn:  1,
	}
	return book
}

func TestAdaptAfterChoice_ReplacesPlan(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()
	book := adaptTestBook(t)
	require.NoError(t, st.Insert(ctx, book))

	fake.queue("adapter", adaptJSON(t, 1, 0))

	committed := models.Page{Passage: "She opened the gate.", Summary: "gate opened"}
	engine.AdaptAfterChoice(ctx, book, "open the gate", committed)

	stored, err := st.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.False(t, stored.PlanUpdating, "the flag must be cleared when adaptation finishes")
	require.NotNil(t, stored.Plan)
	require.Len(t, stored.Plan.Points, 3)
	assert.Equal(t, "Fallout", stored.Plan.Points[0].Title)
	assert.Equal(t, 1, stored.Plan.CurPoint)
	assert.Equal(t, 0, stored.Plan.CurSub)
	assert.Equal(t, "Fallout", book.Plan.Points[0].Title, "the caller's book reflects the adapted plan")

	call, ok := fake.lastCall("adapter")
	require.True(t, ok)
	require.Len(t, call.messages, 2)
	assert.Contains(t, call.messages[1].Content, "open the gate")
	assert.Contains(t, call.messages[1].Content, "She opened the gate.")
	assert.Contains(t, call.messages[1].Content, "the rig is failing")
}

func TestAdaptAfterChoice_RunsIntroInsertion(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()
	book := adaptTestBook(t)
	require.NoError(t, st.Insert(ctx, book))

	fake.queue("adapter", adaptJSON(t, 0, 0))
	fake.queue("intro-insert", substepBatchJSON(t, map[int][]string{
		0: {"introduce the harbormaster", "consequences", "a new ally"},
	}))

	engine.AdaptAfterChoice(ctx, book, "open the gate", models.Page{Passage: "P1"})

	stored, err := st.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"introduce the harbormaster", "consequences", "a new ally"},
		stored.Plan.Points[0].Substeps)
	assert.False(t, stored.PlanUpdating)
}

func TestAdaptAfterChoice_KeepsPriorPlanOnFailure(t *testing.T) {
	tests := []struct {
		name   string
		script func(t *testing.T, f *fakeLLM)
	}{
		{
			name:   "model error",
			script: func(t *testing.T, f *fakeLLM) { f.fail("adapter", errors.New("upstream blew up")) },
		},
		{
			name:   "non-json response",
			script: func(t *testing.T, f *fakeLLM) { f.queue("adapter", "I would rather not") },
		},
		{
			name: "missing cursor fields",
			script: func(t *testing.T, f *fakeLLM) {
				f.queue("adapter", `{"overallIdea":"x","conflict":"y","points":[`+
					`{"title":"A","brief":"a","substeps":["s"]},`+
					`{"title":"B","brief":"b","substeps":["s"]},`+
					`{"title":"C","brief":"c","substeps":["s"]}]}`)
			},
		},
		{
			name: "too few points",
			script: func(t *testing.T, f *fakeLLM) {
				f.queue("adapter", jsonBody(t, prompt.AdaptResponse{
					OverallIdea: "x", Conflict: "y",
					Points: adaptedPoints()[:2],
				}))
			},
		},
		{
			name: "empty point title",
			script: func(t *testing.T, f *fakeLLM) {
				points := adaptedPoints()
				points[1].Title = "  "
				f.queue("adapter", jsonBody(t, prompt.AdaptResponse{
					OverallIdea: "x", Conflict: "y", Points: points,
				}))
			},
		},
		{
			name: "point without substeps",
			script: func(t *testing.T, f *fakeLLM) {
				points := adaptedPoints()
				points[2].Substeps = nil
				f.queue("adapter", jsonBody(t, prompt.AdaptResponse{
					OverallIdea: "x", Conflict: "y", Points: points,
				}))
			},
		},
		{
			name:   "cursor point out of range",
			script: func(t *testing.T, f *fakeLLM) { f.queue("adapter", adaptJSON(t, 4, 0)) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, fake, st := newTestEngine(t)
			ctx := context.Background()
			book := adaptTestBook(t)
			require.NoError(t, st.Insert(ctx, book))
			tt.script(t, fake)

			engine.AdaptAfterChoice(ctx, book, "open the gate", models.Page{Passage: "P1"})

			stored, err := st.Get(ctx, book.ID)
			require.NoError(t, err)
			assert.False(t, stored.PlanUpdating, "the flag must be cleared even on failure")
			require.NotNil(t, stored.Plan)
			assert.Equal(t, readyPlan().Points, stored.Plan.Points, "the prior plan must stay in place")
			assert.Equal(t, 1, stored.Plan.CurPoint)
			assert.Equal(t, 1, stored.Plan.CurSub)
		})
	}
}

func TestAdaptAfterChoice_NoPlanIsNoOp(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()
	book := testEngineBook()
	require.NoError(t, st.Insert(ctx, book))

	engine.AdaptAfterChoice(ctx, book, "open the gate", models.Page{Passage: "P1"})

	stored, err := st.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.False(t, stored.PlanUpdating)
	assert.Empty(t, fake.calls)
}

func TestAdaptedPlanFromResponse_ClampsCursorSub(t *testing.T) {
	resp := prompt.AdaptResponse{
		OverallIdea: "x", Conflict: "y",
		Points:   adaptedPoints(),
		CurPoint: 0,
		CurSub:   99,
	}
	plan, err := adaptedPlanFromResponse(&resp)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.CurSub, "cursor clamps to the final sub-step")

	resp.CurPoint, resp.CurSub = 3, 0
	plan, err = adaptedPlanFromResponse(&resp)
	require.NoError(t, err)
	assert.Equal(t, 3, plan.CurPoint, "an exhausted cursor is accepted as-is")
	assert.Equal(t, 0, plan.CurSub)
	assert.True(t, plan.Exhausted())
}
