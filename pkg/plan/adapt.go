package plan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Sopamo/taletwo/pkg/config"
	"github.com/Sopamo/taletwo/pkg/models"
	"github.com/Sopamo/taletwo/pkg/prompt"
)

// AdaptAfterChoice revises the plan in the background after a choice commit.
// planUpdating is set for the duration so the coordinator defers new
// generations, and is always cleared, including when the caller's context is
// already gone. On any failure the prior plan stays in place.
func (e *Engine) AdaptAfterChoice(ctx context.Context, book *models.Book, choice string, committedPage models.Page) {
	if book.Plan == nil {
		return
	}

	if err := e.store.SetPlanUpdating(ctx, book.ID, true); err != nil {
		slog.Error("Plan adaptation: failed to set planUpdating", "book_id", book.ID, "error", err)
		return
	}
	defer func() {
		// Clear on a fresh context so a cancelled caller cannot leave the
		// flag stuck and freeze generation for the book.
		clearCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.store.SetPlanUpdating(clearCtx, book.ID, false); err != nil {
			slog.Error("Plan adaptation: failed to clear planUpdating", "book_id", book.ID, "error", err)
		}
	}()

	adapted := e.requestAdaptedPlan(ctx, book, choice, committedPage)
	if adapted == nil {
		return
	}

	if err := e.store.SetPlan(ctx, book.ID, adapted); err != nil {
		slog.Error("Plan adaptation: failed to persist plan", "book_id", book.ID, "error", err)
		return
	}
	book.Plan = adapted

	if e.insertIntroSubsteps(ctx, book, adapted) {
		if err := e.store.SetPlan(ctx, book.ID, adapted); err != nil {
			slog.Error("Plan adaptation: failed to persist intro substeps", "book_id", book.ID, "error", err)
		}
	}

	slog.Info("Plan adapted after choice",
		"book_id", book.ID,
		"points", len(adapted.Points),
		"cur_point", adapted.CurPoint,
		"cur_sub", adapted.CurSub)
}

func (e *Engine) requestAdaptedPlan(ctx context.Context, book *models.Book, choice string, committedPage models.Page) *models.Plan {
	actx := prompt.AdaptContext{
		Plan:          book.Plan,
		CommittedPage: committedPage,
		Choice:        choice,
	}
	if book.Story != nil {
		actx.Notes = book.Story.Notes
	}

	raw, err := e.chat(ctx, config.TaskAdapter, "adapter", e.prompts.BuildAdaptMessages(book, actx))
	if err != nil {
		slog.Warn("Plan adaptation failed, keeping prior plan", "book_id", book.ID, "error", err)
		return nil
	}

	var resp prompt.AdaptResponse
	if err := prompt.AdaptSchema.DecodeInto(raw, &resp); err != nil {
		slog.Warn("Plan adaptation returned an unusable response, keeping prior plan", "book_id", book.ID, "error", err)
		return nil
	}

	adapted, err := adaptedPlanFromResponse(&resp)
	if err != nil {
		slog.Warn("Plan adaptation rejected, keeping prior plan", "book_id", book.ID, "error", err)
		return nil
	}
	return adapted
}

// adaptedPlanFromResponse validates an adapted plan. Points and cursor come
// from the same response, so a malformed point rejects the whole plan rather
// than shifting indexes underneath the cursor.
func adaptedPlanFromResponse(resp *prompt.AdaptResponse) (*models.Plan, error) {
	if len(resp.Points) < minPoints {
		return nil, fmt.Errorf("%d points, need at least %d", len(resp.Points), minPoints)
	}

	points := make([]models.Point, 0, len(resp.Points))
	for i, p := range resp.Points {
		title := strings.TrimSpace(p.Title)
		if title == "" {
			return nil, fmt.Errorf("point %d has no title", i)
		}
		subs := cleanStrings(p.Substeps)
		if len(subs) == 0 {
			return nil, fmt.Errorf("point %d (%q) has no substeps", i, title)
		}
		points = append(points, models.Point{Title: title, Brief: strings.TrimSpace(p.Brief), Substeps: subs})
	}

	if resp.CurPoint > len(points) {
		return nil, fmt.Errorf("cursor point %d outside plan of %d points", resp.CurPoint, len(points))
	}
	curSub := resp.CurSub
	if resp.CurPoint < len(points) && curSub >= len(points[resp.CurPoint].Substeps) {
		// Keep the cursor well-formed; the final sub-step is the closest
		// position to what the model meant.
		curSub = len(points[resp.CurPoint].Substeps) - 1
	}

	return &models.Plan{
		OverallIdea: strings.TrimSpace(resp.OverallIdea),
		Conflict:    strings.TrimSpace(resp.Conflict),
		Points:      points,
		CurPoint:    resp.CurPoint,
		CurSub:      curSub,
	}, nil
}
