// Package story turns plans into committed pages: the page generator, the
// branch cache coordinator that keeps continuations precomputed across
// workers, and the runtime exposing start/next/choose to the API.
package story

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/Sopamo/taletwo/pkg/config"
	"github.com/Sopamo/taletwo/pkg/llm"
	"github.com/Sopamo/taletwo/pkg/models"
	"github.com/Sopamo/taletwo/pkg/prompt"
)

// maxNotesDelta caps how many memory notes one page may add.
const maxNotesDelta = 2

// recentPageWindow is how many committed passages accompany a generation.
const recentPageWindow = 3

// pointTailWindow is how many trailing sub-steps of a point count as its
// transition window.
const pointTailWindow = 2

// GenerateParams selects what a single page generation continues from.
type GenerateParams struct {
	// UpToIndex is the last committed page the new passage continues; -1
	// generates the opening page.
	UpToIndex int
	// OptionBaseIndex is the page index option ids are derived against,
	// the index the generated page will be committed at.
	OptionBaseIndex int
	// NextChoice is the reader's choice driving this page, empty on linear
	// continuations.
	NextChoice string
	// AllowOptions permits the model to offer choices on the new page.
	AllowOptions bool
}

// Generator produces page candidates. It never advances the plan cursor and
// never writes to the store; committing and coordination belong to the
// runtime and the coordinator.
type Generator struct {
	llm     llm.Client
	prompts *prompt.Builder
	models  *config.ModelsConfig
	pick    func(n int) int
}

// NewGenerator creates a page generator.
func NewGenerator(client llm.Client, models *config.ModelsConfig) *Generator {
	if client == nil {
		panic("NewGenerator: llm client must not be nil")
	}
	if models == nil {
		panic("NewGenerator: models must not be nil")
	}
	return &Generator{
		llm:     client,
		prompts: prompt.NewBuilder(),
		models:  models,
		pick:    rand.IntN,
	}
}

// Generate produces one page candidate continuing from params.UpToIndex.
// Non-JSON output surfaces as llm.ErrNonJSON and shape violations as
// llm.ErrSchema so callers can treat both as retriable.
func (g *Generator) Generate(ctx context.Context, book *models.Book, params GenerateParams) (models.Candidate, error) {
	pctx, subRef := g.pageContext(book, params)

	opts := llm.OptionsForTask(g.models.ForTask(config.TaskGenerator), "page")
	raw, err := g.llm.Chat(ctx, g.prompts.BuildPageMessages(book, pctx), opts)
	if err != nil {
		return models.Candidate{}, fmt.Errorf("failed to generate page: %w", err)
	}

	var resp prompt.PageResponse
	if err := prompt.PageSchema.DecodeInto(raw, &resp); err != nil {
		return models.Candidate{}, err
	}
	passage := strings.TrimSpace(resp.Passage)
	if passage == "" {
		return models.Candidate{}, fmt.Errorf("%w: passage is empty", llm.ErrSchema)
	}

	page := models.Page{
		Passage: passage,
		Summary: strings.TrimSpace(resp.Summary),
	}
	if options, ok := usableOptions(resp.Options, params.AllowOptions); ok {
		page.Options = options
		page.OptionIDs = make([]string, len(options))
		for i, text := range options {
			page.OptionIDs[i] = models.MakeOptionID(params.OptionBaseIndex, text)
		}
	}

	return models.Candidate{
		Page:       page,
		NotesDelta: trimNotes(resp.Notes, maxNotesDelta),
		SubToCheck: subRef,
	}, nil
}

// pageContext decides focus and assembles everything the page prompt needs.
// The returned SubRef is non-nil only when a sub-step directive drove the
// prompt; the cursor itself stays where it is until the verifier confirms
// the sub-step happened.
func (g *Generator) pageContext(book *models.Book, params GenerateParams) (prompt.PageContext, *models.SubRef) {
	pctx := prompt.PageContext{
		AllowOptions: params.AllowOptions,
		NextChoice:   strings.TrimSpace(params.NextChoice),
	}
	if s := book.Story; s != nil {
		pctx.Notes = s.Notes
		upTo := params.UpToIndex
		if upTo >= len(s.Pages) {
			upTo = len(s.Pages) - 1
		}
		if upTo >= 0 {
			pctx.PrevSummary = s.Pages[upTo].Summary
			pctx.RecentPassages = lastPassages(s.Pages[:upTo+1], recentPageWindow)
		}
	}

	plan := book.Plan
	var sub string
	if plan != nil {
		sub = plan.CurrentSubstep()
	}

	focus := g.pickFocus(sub)
	if plan != nil && sub != "" && inTransitionWindow(plan, pctx.PrevSummary, pctx.NextChoice) {
		focus = prompt.FocusSubstep
		pctx.Buildup = plan.NextPoint()
	}

	pctx.Focus = focus
	if focus == prompt.FocusSubstep {
		pctx.SubstepText = sub
		return pctx, &models.SubRef{PointIndex: plan.CurPoint, SubIndex: plan.CurSub, Text: sub}
	}
	return pctx, nil
}

// pickFocus draws one of the three focus kinds with equal probability. When
// the cursor has no sub-step to offer, the draw is between world and
// character only.
func (g *Generator) pickFocus(sub string) prompt.Focus {
	switch g.pick(3) {
	case 0:
		if sub == "" {
			if g.pick(2) == 0 {
				return prompt.FocusWorld
			}
			return prompt.FocusCharacter
		}
		return prompt.FocusSubstep
	case 1:
		return prompt.FocusWorld
	default:
		return prompt.FocusCharacter
	}
}

// inTransitionWindow reports whether this turn must stay on the plan: the
// opening page of the story, or the tail of a point with another point
// following, where the prose has to build up to the coming beat.
func inTransitionWindow(plan *models.Plan, prevSummary, nextChoice string) bool {
	if prevSummary == "" && nextChoice == "" && plan.CurPoint == 0 && plan.CurSub == 0 {
		return true
	}
	return plan.InPointTail(pointTailWindow)
}

// usableOptions keeps the model's options only when they were requested and
// form exactly three non-blank strings. Anything else is discarded whole so
// a page never carries a partial choice set.
func usableOptions(options []string, allowed bool) ([]string, bool) {
	if !allowed || len(options) != 3 {
		return nil, false
	}
	cleaned := make([]string, len(options))
	for i, o := range options {
		o = strings.TrimSpace(o)
		if o == "" {
			return nil, false
		}
		cleaned[i] = o
	}
	return cleaned, true
}

func trimNotes(notes []string, max int) []string {
	var kept []string
	for _, n := range notes {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		kept = append(kept, n)
		if len(kept) == max {
			break
		}
	}
	return kept
}

func lastPassages(pages []models.Page, n int) []string {
	if len(pages) == 0 {
		return nil
	}
	if len(pages) > n {
		pages = pages[len(pages)-n:]
	}
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.Passage)
	}
	return out
}
