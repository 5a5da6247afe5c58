package prompt

import "github.com/Sopamo/taletwo/pkg/llm"

// Response shapes for each prompt kind. Counting rules (point minimums,
// option arity, note caps) are enforced by the engines, not the schemas.

// PlannerResponse is the planner output.
type PlannerResponse struct {
	OverallIdea string         `json:"overallIdea"`
	Conflict    string         `json:"conflict"`
	Points      []PlannerPoint `json:"points"`
}

// PlannerPoint is one major plot point from the planner.
type PlannerPoint struct {
	Title string `json:"title"`
	Brief string `json:"brief"`
}

// SubstepBatchResponse is shared by substep expansion and intro insertion.
type SubstepBatchResponse struct {
	Items []SubstepBatchItem `json:"items"`
}

// SubstepBatchItem addresses one point by its outline index.
type SubstepBatchItem struct {
	Index    int      `json:"index"`
	Substeps []string `json:"substeps"`
}

// PageResponse is the page generator output.
type PageResponse struct {
	Passage string   `json:"passage"`
	Summary string   `json:"summary"`
	Notes   []string `json:"notes"`
	Options []string `json:"options,omitempty"`
}

// VerifierResponse is the verifier output.
type VerifierResponse struct {
	Done bool `json:"done"`
}

// AdaptResponse is the plan adaptation output.
type AdaptResponse struct {
	OverallIdea string       `json:"overallIdea"`
	Conflict    string       `json:"conflict"`
	Points      []AdaptPoint `json:"points"`
	CurPoint    int          `json:"curPoint"`
	CurSub      int          `json:"curSub"`
}

// AdaptPoint is one revised plot point with its substeps.
type AdaptPoint struct {
	Title    string   `json:"title"`
	Brief    string   `json:"brief"`
	Substeps []string `json:"substeps"`
}

// Compiled response schemas, one per prompt kind.
var (
	PlannerSchema = llm.MustSchema(`{
		"type": "object",
		"required": ["overallIdea", "conflict", "points"],
		"properties": {
			"overallIdea": {"type": "string"},
			"conflict": {"type": "string"},
			"points": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["title", "brief"],
					"properties": {
						"title": {"type": "string"},
						"brief": {"type": "string"}
					}
				}
			}
		}
	}`)

	SubstepBatchSchema = llm.MustSchema(`{
		"type": "object",
		"required": ["items"],
		"properties": {
			"items": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["index", "substeps"],
					"properties": {
						"index": {"type": "integer"},
						"substeps": {"type": "array", "items": {"type": "string"}}
					}
				}
			}
		}
	}`)

	PageSchema = llm.MustSchema(`{
		"type": "object",
		"required": ["passage", "summary"],
		"properties": {
			"passage": {"type": "string", "minLength": 1},
			"summary": {"type": "string"},
			"notes": {"type": "array", "items": {"type": "string"}},
			"options": {"type": "array", "items": {"type": "string"}}
		}
	}`)

	VerifierSchema = llm.MustSchema(`{
		"type": "object",
		"required": ["done"],
		"properties": {
			"done": {"type": "boolean"}
		}
	}`)

	AdaptSchema = llm.MustSchema(`{
		"type": "object",
		"required": ["overallIdea", "conflict", "points", "curPoint", "curSub"],
		"properties": {
			"overallIdea": {"type": "string"},
			"conflict": {"type": "string"},
			"points": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["title", "brief"],
					"properties": {
						"title": {"type": "string"},
						"brief": {"type": "string"},
						"substeps": {"type": "array", "items": {"type": "string"}}
					}
				}
			},
			"curPoint": {"type": "integer", "minimum": 0},
			"curSub": {"type": "integer", "minimum": 0}
		}
	}`)
)
