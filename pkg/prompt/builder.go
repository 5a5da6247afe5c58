package prompt

import (
	"fmt"
	"strings"

	"github.com/Sopamo/taletwo/pkg/llm"
	"github.com/Sopamo/taletwo/pkg/models"
)

// Focus identifies what a page generation prompt emphasizes.
type Focus string

const (
	FocusSubstep   Focus = "substep"
	FocusWorld     Focus = "world"
	FocusCharacter Focus = "character"
)

// PageContext carries everything a page generation prompt needs. The caller
// (the page generator) decides focus, buildup, and which history to include.
type PageContext struct {
	Focus Focus
	// SubstepText is the step the passage must accomplish when Focus is
	// FocusSubstep.
	SubstepText string
	// Buildup is the next major point during a transition window, nil
	// otherwise.
	Buildup *models.Point
	// AllowOptions switches between the two options directives.
	AllowOptions bool
	// PrevSummary is the latest committed summary, empty on the first page.
	PrevSummary string
	// Notes are the memory notes, included verbatim.
	Notes []string
	// RecentPassages holds the last up-to-three passages, oldest first.
	RecentPassages []string
	// NextChoice is the reader's choice driving this page, if any.
	NextChoice string
}

// VerifyContext carries the inputs of a verification prompt.
type VerifyContext struct {
	SubText        string
	Passage        string
	RecentPassages []string
	Notes          []string
}

// AdaptContext carries the inputs of a plan adaptation prompt.
type AdaptContext struct {
	Plan          *models.Plan
	CommittedPage models.Page
	Choice        string
	Notes         []string
}

// Builder assembles conversations for every model call of the engine.
// Stateless and safe for concurrent use.
type Builder struct{}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// BuildPlannerMessages builds the conversation that generates the story
// skeleton.
func (b *Builder) BuildPlannerMessages(book *models.Book) []llm.Message {
	system := plannerSystem + "\n\n" + plannerSchemaReminder

	var sb strings.Builder
	sb.WriteString(FormatBookSection(book))
	sb.WriteString("\n")
	sb.WriteString(plannerTask)
	sb.WriteString("\n\n")
	sb.WriteString(strictJSONReminder)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// BuildSubstepsMessages builds the conversation that expands all plan points
// into substeps in a single call.
func (b *Builder) BuildSubstepsMessages(book *models.Book, plan *models.Plan) []llm.Message {
	system := substepsSystem + "\n\n" + substepBatchSchemaReminder

	var sb strings.Builder
	sb.WriteString(FormatBookSection(book))
	sb.WriteString("\n")
	sb.WriteString(FormatPlanOutline(plan, false))
	sb.WriteString(substepsTask)
	sb.WriteString("\n\n")
	sb.WriteString(strictJSONReminder)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// BuildIntroMessages builds the conversation that inserts introduction
// substeps. The response lists only changed points.
func (b *Builder) BuildIntroMessages(book *models.Book, plan *models.Plan) []llm.Message {
	system := introSystem + "\n\n" + substepBatchSchemaReminder

	var sb strings.Builder
	sb.WriteString(FormatBookSection(book))
	sb.WriteString("\n")
	sb.WriteString(FormatPlanOutline(plan, true))
	sb.WriteString(introTask)
	sb.WriteString("\n\n")
	sb.WriteString(strictJSONReminder)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// BuildPageMessages builds the conversation that generates one page.
//
// System message order: style directives, focus directive, buildup guidance,
// options directive, schema reminder. User message order: configuration,
// previous summary, memory notes, recent passages, reader choice, strict
// JSON reminder.
func (b *Builder) BuildPageMessages(book *models.Book, pctx PageContext) []llm.Message {
	var sys strings.Builder
	sys.WriteString(generatorStyle)
	sys.WriteString("\n\n")
	sys.WriteString(focusDirective(pctx))
	if pctx.Buildup != nil {
		sys.WriteString("\n\n")
		fmt.Fprintf(&sys, buildupTemplate, pctx.Buildup.Title, pctx.Buildup.Brief)
	}
	sys.WriteString("\n\n")
	if pctx.AllowOptions {
		sys.WriteString(optionsAllowed)
	} else {
		sys.WriteString(optionsForbidden)
	}
	sys.WriteString("\n\n")
	sys.WriteString(pageSchemaReminder)

	var usr strings.Builder
	usr.WriteString(FormatBookSection(book))
	usr.WriteString("\n")
	if s := FormatSummarySection(pctx.PrevSummary); s != "" {
		usr.WriteString(s)
		usr.WriteString("\n")
	}
	if s := FormatNotesSection(pctx.Notes); s != "" {
		usr.WriteString(s)
		usr.WriteString("\n")
	}
	if s := FormatRecentPassages(pctx.RecentPassages); s != "" {
		usr.WriteString(s)
		usr.WriteString("\n")
	}
	if s := FormatChoiceSection(pctx.NextChoice); s != "" {
		usr.WriteString(s)
		usr.WriteString("\n")
	}
	usr.WriteString(strictJSONReminder)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: sys.String()},
		{Role: llm.RoleUser, Content: usr.String()},
	}
}

// BuildVerifierMessages builds the conversation that checks whether a
// committed passage accomplished its pending sub-step.
func (b *Builder) BuildVerifierMessages(vctx VerifyContext) []llm.Message {
	system := verifierSystem + "\n\n" + verifierSchemaReminder

	var sb strings.Builder
	sb.WriteString("## Story Step\n")
	sb.WriteString(vctx.SubText)
	sb.WriteString("\n\n")
	if s := FormatRecentPassages(vctx.RecentPassages); s != "" {
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	if s := FormatNotesSection(vctx.Notes); s != "" {
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	sb.WriteString("## Passage To Judge\n")
	sb.WriteString("=== PASSAGE START ===\n")
	sb.WriteString(vctx.Passage)
	sb.WriteString("\n=== PASSAGE END ===\n\n")
	sb.WriteString("Did the passage accomplish the story step?\n\n")
	sb.WriteString(strictJSONReminder)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// BuildAdaptMessages builds the conversation that revises the plan after a
// reader choice.
func (b *Builder) BuildAdaptMessages(book *models.Book, actx AdaptContext) []llm.Message {
	system := adaptSystem + "\n\n" + adaptSchemaReminder

	var sb strings.Builder
	sb.WriteString(FormatBookSection(book))
	sb.WriteString("\n")
	sb.WriteString(FormatPlanOutline(actx.Plan, true))
	sb.WriteString(FormatCursorSection(actx.Plan))
	sb.WriteString("\n")
	if s := FormatNotesSection(actx.Notes); s != "" {
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	sb.WriteString("## Committed Page\n")
	sb.WriteString("=== PASSAGE START ===\n")
	sb.WriteString(actx.CommittedPage.Passage)
	sb.WriteString("\n=== PASSAGE END ===\n\n")
	sb.WriteString(FormatChoiceSection(actx.Choice))
	sb.WriteString("\n")
	sb.WriteString(adaptTask)
	sb.WriteString("\n\n")
	sb.WriteString(strictJSONReminder)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

func focusDirective(pctx PageContext) string {
	switch pctx.Focus {
	case FocusSubstep:
		return fmt.Sprintf(substepFocusTemplate, pctx.SubstepText)
	case FocusWorld:
		return worldFocus
	case FocusCharacter:
		return characterFocus
	default:
		return worldFocus
	}
}
