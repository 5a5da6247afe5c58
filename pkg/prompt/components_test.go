package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sopamo/taletwo/pkg/models"
)

func TestFormatBookSection(t *testing.T) {
	t.Run("all fields", func(t *testing.T) {
		got := FormatBookSection(testBook())
		assert.Contains(t, got, "**Blend of:** The Count of Monte Cristo and Neuromancer")
		assert.Contains(t, got, "**World:** A drowned harbor city run by guilds")
		assert.Contains(t, got, "**Main Character:** Mara, a debt-bound diver")
		assert.Contains(t, got, "**Genre:** dark fantasy")
	})

	t.Run("empty fields omitted", func(t *testing.T) {
		got := FormatBookSection(&models.Book{BookOne: "Solo Book"})
		assert.Contains(t, got, "**Blend of:** Solo Book\n")
		assert.NotContains(t, got, "World:")
		assert.NotContains(t, got, "Genre:")
	})
}

func TestFormatSummarySection(t *testing.T) {
	assert.Empty(t, FormatSummarySection(""))
	assert.Equal(t, "## Story So Far\nMara fled.\n", FormatSummarySection("Mara fled."))
}

func TestFormatNotesSection(t *testing.T) {
	assert.Empty(t, FormatNotesSection(nil))

	got := FormatNotesSection([]string{"note one", "note two"})
	assert.Contains(t, got, "- note one\n")
	assert.Contains(t, got, "- note two\n")
}

func TestFormatRecentPassages(t *testing.T) {
	assert.Empty(t, FormatRecentPassages(nil))

	got := FormatRecentPassages([]string{"first", "second"})
	assert.Contains(t, got, "=== PAGES START ===")
	assert.Contains(t, got, "first\n\n---\n\nsecond")
	assert.Contains(t, got, "=== PAGES END ===")
}

func TestFormatChoiceSection(t *testing.T) {
	assert.Empty(t, FormatChoiceSection(""))
	assert.Contains(t, FormatChoiceSection("run"), "The reader chose: run")
}

func TestFormatPlanOutline(t *testing.T) {
	plan := testPromptPlan()

	t.Run("without substeps", func(t *testing.T) {
		got := FormatPlanOutline(plan, false)
		assert.Contains(t, got, "**Overall Idea:** A diver uncovers the ledger")
		assert.Contains(t, got, "Point 0: The Ledger")
		assert.Contains(t, got, "Point 1: The Hunt")
		assert.NotContains(t, got, "Mara dives the archive")
	})

	t.Run("with substeps", func(t *testing.T) {
		got := FormatPlanOutline(plan, true)
		assert.Contains(t, got, "  - Mara dives the archive\n")
		assert.Contains(t, got, "  - The gate turns\n")
	})
}

func TestFormatCursorSection(t *testing.T) {
	plan := testPromptPlan()
	plan.CurPoint = 2
	plan.CurSub = 1
	assert.Contains(t, FormatCursorSection(plan), "point 2, substep 1")
}
