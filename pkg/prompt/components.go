package prompt

import (
	"fmt"
	"strings"

	"github.com/Sopamo/taletwo/pkg/models"
)

// FormatBookSection builds the story configuration section. Empty fields are
// omitted.
func FormatBookSection(book *models.Book) string {
	var sb strings.Builder
	sb.WriteString("## Story Configuration\n")
	if book.BookOne != "" || book.BookTwo != "" {
		sb.WriteString("**Blend of:** ")
		sb.WriteString(book.BookOne)
		if book.BookTwo != "" {
			sb.WriteString(" and ")
			sb.WriteString(book.BookTwo)
		}
		sb.WriteString("\n")
	}
	if book.World != "" {
		sb.WriteString("**World:** ")
		sb.WriteString(book.World)
		sb.WriteString("\n")
	}
	if book.MainCharacter != "" {
		sb.WriteString("**Main Character:** ")
		sb.WriteString(book.MainCharacter)
		sb.WriteString("\n")
	}
	if book.Genre != "" {
		sb.WriteString("**Genre:** ")
		sb.WriteString(book.Genre)
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatSummarySection wraps the latest story summary. Empty summary returns
// an empty string so callers can skip the section.
func FormatSummarySection(summary string) string {
	if summary == "" {
		return ""
	}
	return "## Story So Far\n" + summary + "\n"
}

// FormatNotesSection lists memory notes verbatim. The notes act as
// persistence tokens for the model; rewording them breaks recall.
func FormatNotesSection(notes []string) string {
	if len(notes) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Memory Notes\n")
	for _, n := range notes {
		sb.WriteString("- ")
		sb.WriteString(n)
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatRecentPassages wraps the last pages of passage text, oldest first.
func FormatRecentPassages(passages []string) string {
	if len(passages) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Previous Pages\n")
	sb.WriteString("=== PAGES START ===\n")
	sb.WriteString(strings.Join(passages, "\n\n---\n\n"))
	sb.WriteString("\n=== PAGES END ===\n")
	return sb.String()
}

// FormatChoiceSection wraps the reader's choice. Empty choice returns an
// empty string.
func FormatChoiceSection(choice string) string {
	if choice == "" {
		return ""
	}
	return "## Reader Choice\nThe reader chose: " + choice + "\n"
}

// FormatPlanOutline renders the plan as a zero-indexed outline. The index
// numbering is the reference frame for substep batch responses.
func FormatPlanOutline(plan *models.Plan, withSubsteps bool) string {
	var sb strings.Builder
	sb.WriteString("## Plan Outline\n")
	if plan.OverallIdea != "" {
		sb.WriteString("**Overall Idea:** ")
		sb.WriteString(plan.OverallIdea)
		sb.WriteString("\n")
	}
	if plan.Conflict != "" {
		sb.WriteString("**Conflict:** ")
		sb.WriteString(plan.Conflict)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	for i, p := range plan.Points {
		fmt.Fprintf(&sb, "Point %d: %s\n%s\n", i, p.Title, p.Brief)
		if withSubsteps {
			for _, s := range p.Substeps {
				sb.WriteString("  - ")
				sb.WriteString(s)
				sb.WriteString("\n")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatCursorSection states the current plan cursor for adapt prompts.
func FormatCursorSection(plan *models.Plan) string {
	return fmt.Sprintf("## Cursor\nNext unperformed substep: point %d, substep %d.\n", plan.CurPoint, plan.CurSub)
}
