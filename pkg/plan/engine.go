// Package plan owns the narrative plan lifecycle: initial point generation,
// sub-step expansion, introduction insertion, deferred sub-step verification,
// and adaptation after reader choices.
package plan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Sopamo/taletwo/pkg/config"
	"github.com/Sopamo/taletwo/pkg/llm"
	"github.com/Sopamo/taletwo/pkg/models"
	"github.com/Sopamo/taletwo/pkg/prompt"
	"github.com/Sopamo/taletwo/pkg/store"
)

// minPoints is the smallest plan the engine accepts, from the planner as
// well as from adaptation.
const minPoints = 3

// Engine generates and maintains plans. All LLM failures during maintenance
// passes (intro insertion, verification, adaptation) leave the prior plan in
// place; only the initial generation surfaces errors to its caller.
type Engine struct {
	store   store.BookStore
	llm     llm.Client
	prompts *prompt.Builder
	models  *config.ModelsConfig
}

// NewEngine creates a plan engine.
func NewEngine(st store.BookStore, client llm.Client, models *config.ModelsConfig) *Engine {
	if st == nil {
		panic("NewEngine: store must not be nil")
	}
	if client == nil {
		panic("NewEngine: llm client must not be nil")
	}
	if models == nil {
		panic("NewEngine: models must not be nil")
	}
	return &Engine{
		store:   st,
		llm:     client,
		prompts: prompt.NewBuilder(),
		models:  models,
	}
}

func (e *Engine) chat(ctx context.Context, task config.Task, tag string, messages []llm.Message) (string, error) {
	return e.llm.Chat(ctx, messages, llm.OptionsForTask(e.models.ForTask(task), tag))
}

// EnsurePlanReady makes the book's plan usable by generators: a plan exists
// and every point carries at least one sub-step, with introduction sub-steps
// inserted where the model saw the need. Idempotent; a ready plan returns
// immediately. Each stage persists on success, so a failed call resumes
// where it left off.
func (e *Engine) EnsurePlanReady(ctx context.Context, book *models.Book) (*models.Book, error) {
	if book.Plan != nil && planReady(book.Plan) {
		return book, nil
	}

	if book.Plan == nil {
		generated, err := e.generatePoints(ctx, book)
		if err != nil {
			return nil, err
		}
		if err := e.store.SetPlan(ctx, book.ID, generated); err != nil {
			return nil, fmt.Errorf("failed to persist plan points: %w", err)
		}
		book.Plan = generated
		slog.Info("Plan points generated", "book_id", book.ID, "points", len(generated.Points))
	}

	plan := book.Plan
	if err := e.expandSubsteps(ctx, book, plan); err != nil {
		return nil, err
	}
	if err := e.store.SetPlan(ctx, book.ID, plan); err != nil {
		return nil, fmt.Errorf("failed to persist substeps: %w", err)
	}

	// Best-effort pass; a failure leaves the expanded sub-steps as they are.
	if e.insertIntroSubsteps(ctx, book, plan) {
		if err := e.store.SetPlan(ctx, book.ID, plan); err != nil {
			return nil, fmt.Errorf("failed to persist intro substeps: %w", err)
		}
	}

	return book, nil
}

func (e *Engine) generatePoints(ctx context.Context, book *models.Book) (*models.Plan, error) {
	raw, err := e.chat(ctx, config.TaskPlanner, "planner", e.prompts.BuildPlannerMessages(book))
	if err != nil {
		return nil, fmt.Errorf("plan generation: %w", err)
	}

	var resp prompt.PlannerResponse
	if err := prompt.PlannerSchema.DecodeInto(raw, &resp); err != nil {
		return nil, fmt.Errorf("plan generation: %w", err)
	}

	points := make([]models.Point, 0, len(resp.Points))
	for _, p := range resp.Points {
		title := strings.TrimSpace(p.Title)
		if title == "" {
			continue
		}
		points = append(points, models.Point{Title: title, Brief: strings.TrimSpace(p.Brief)})
	}
	if len(points) < minPoints {
		return nil, fmt.Errorf("plan generation: got %d usable points, need at least %d", len(points), minPoints)
	}

	return &models.Plan{
		OverallIdea: strings.TrimSpace(resp.OverallIdea),
		Conflict:    strings.TrimSpace(resp.Conflict),
		Points:      points,
	}, nil
}

// expandSubsteps fills in sub-steps for every point in a single call.
func (e *Engine) expandSubsteps(ctx context.Context, book *models.Book, plan *models.Plan) error {
	raw, err := e.chat(ctx, config.TaskPlanner, "substeps", e.prompts.BuildSubstepsMessages(book, plan))
	if err != nil {
		return fmt.Errorf("substep expansion: %w", err)
	}

	var resp prompt.SubstepBatchResponse
	if err := prompt.SubstepBatchSchema.DecodeInto(raw, &resp); err != nil {
		return fmt.Errorf("substep expansion: %w", err)
	}

	applySubsteps(plan, resp.Items)
	for i := range plan.Points {
		if len(plan.Points[i].Substeps) == 0 {
			return fmt.Errorf("substep expansion: point %d (%q) received no substeps", i, plan.Points[i].Title)
		}
	}
	return nil
}

// insertIntroSubsteps asks the model to weave introduction sub-steps into
// points that rely on characters or concepts before establishing them. It
// reports whether any point changed. Failures are logged and ignored.
func (e *Engine) insertIntroSubsteps(ctx context.Context, book *models.Book, plan *models.Plan) bool {
	raw, err := e.chat(ctx, config.TaskPlanner, "intro-insert", e.prompts.BuildIntroMessages(book, plan))
	if err != nil {
		slog.Warn("Intro insertion skipped", "book_id", book.ID, "error", err)
		return false
	}

	var resp prompt.SubstepBatchResponse
	if err := prompt.SubstepBatchSchema.DecodeInto(raw, &resp); err != nil {
		slog.Warn("Intro insertion returned an unusable response", "book_id", book.ID, "error", err)
		return false
	}

	return applySubsteps(plan, resp.Items)
}

// applySubsteps copies non-empty sub-step lists onto their points. Items
// with out-of-range indexes or empty lists are ignored; a point's sub-steps
// are never emptied by a response.
func applySubsteps(plan *models.Plan, items []prompt.SubstepBatchItem) bool {
	changed := false
	for _, item := range items {
		if item.Index < 0 || item.Index >= len(plan.Points) {
			continue
		}
		subs := cleanStrings(item.Substeps)
		if len(subs) == 0 {
			continue
		}
		plan.Points[item.Index].Substeps = subs
		changed = true
	}
	return changed
}

// planReady reports whether every point carries at least one sub-step.
func planReady(plan *models.Plan) bool {
	if len(plan.Points) == 0 {
		return false
	}
	for i := range plan.Points {
		if len(plan.Points[i].Substeps) == 0 {
			return false
		}
	}
	return true
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
