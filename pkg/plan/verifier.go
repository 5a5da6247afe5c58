package plan

import (
	"context"
	"log/slog"

	"github.com/Sopamo/taletwo/pkg/config"
	"github.com/Sopamo/taletwo/pkg/models"
	"github.com/Sopamo/taletwo/pkg/prompt"
)

// verifierContextPages is how many committed passages accompany the judged
// one as context.
const verifierContextPages = 3

// VerifyPendingBeforeNext runs the deferred sub-step check recorded by the
// previous commit. On a positive verdict the plan cursor advances one
// sub-step. The pending record is cleared unconditionally so the check runs
// at most once; a failed check only means the cursor stays put this turn.
func (e *Engine) VerifyPendingBeforeNext(ctx context.Context, book *models.Book) *models.Book {
	if book.Plan == nil || book.Story == nil || book.Story.PendingVerify == nil {
		return book
	}

	if e.substepDone(ctx, book, book.Story.PendingVerify) {
		book.Plan.Advance()
		if err := e.store.SetPlanCursor(ctx, book.ID, book.Plan.CurPoint, book.Plan.CurSub); err != nil {
			slog.Error("Verifier: failed to advance cursor", "book_id", book.ID, "error", err)
		} else {
			slog.Debug("Verifier advanced cursor",
				"book_id", book.ID,
				"cur_point", book.Plan.CurPoint,
				"cur_sub", book.Plan.CurSub)
		}
	}

	if err := e.store.SetPendingVerify(ctx, book.ID, nil); err != nil {
		slog.Error("Verifier: failed to clear pending record", "book_id", book.ID, "error", err)
	}
	book.Story.PendingVerify = nil
	return book
}

// substepDone asks the verifier model whether the recorded passage
// accomplished its sub-step. Any failure counts as not done.
func (e *Engine) substepDone(ctx context.Context, book *models.Book, pv *models.PendingVerify) bool {
	vctx := prompt.VerifyContext{
		SubText:        pv.SubText,
		Passage:        pv.Passage,
		Notes:          book.Story.Notes,
		RecentPassages: recentPassages(book.Story.Pages, verifierContextPages),
	}

	raw, err := e.chat(ctx, config.TaskVerifier, "verifier", e.prompts.BuildVerifierMessages(vctx))
	if err != nil {
		slog.Debug("Verifier call failed, treating sub-step as not done", "book_id", book.ID, "error", err)
		return false
	}

	var resp prompt.VerifierResponse
	if err := prompt.VerifierSchema.DecodeInto(raw, &resp); err != nil {
		slog.Debug("Verifier returned an unusable response, treating sub-step as not done", "book_id", book.ID, "error", err)
		return false
	}
	return resp.Done
}

// recentPassages returns up to n passages preceding the newest page. The
// judged passage is the newest page itself and is presented separately.
func recentPassages(pages []models.Page, n int) []string {
	if len(pages) <= 1 {
		return nil
	}
	prior := pages[:len(pages)-1]
	if len(prior) > n {
		prior = prior[len(prior)-n:]
	}
	out := make([]string, 0, len(prior))
	for _, p := range prior {
		out = append(out, p.Passage)
	}
	return out
}
