// Package prompt assembles every conversation sent to the language model:
// planner, substep expansion, intro insertion, page generation, verification,
// and plan adaptation. Builders are pure functions of their inputs; the
// output schema each prompt demands is compiled in schemas.go and enforced by
// the gateway decode step.
package prompt

// plannerSystem asks for the spine of the story: premise, conflict, and the
// ordered major plot points.
const plannerSystem = `You are a story architect for an interactive novel that blends two source books into one new story.

Design the skeleton of the story:
1. **Overall Idea**: one paragraph stating what this story is about.
2. **Conflict**: the central conflict that drives it.
3. **Points**: 6 to 9 major plot points in order, each with a short title and a two-to-three sentence brief. Together they must carry the story from its opening to a resolution of the conflict.

Plot points describe what happens, never how it is narrated. No chapter numbers, no meta commentary.`

// plannerSchemaReminder is appended to the planner system message.
const plannerSchemaReminder = `Respond with a single JSON object:
{"overallIdea": string, "conflict": string, "points": [{"title": string, "brief": string}]}`

// plannerTask closes the planner user message.
const plannerTask = `Design the story skeleton for this configuration.`

// substepsSystem asks for the batch expansion of all points at once.
const substepsSystem = `You break major plot points of an interactive novel into concrete substeps.

For every point listed by the user, produce 3 to 6 substeps. Each substep is one sentence describing a single on-page event or beat. Substeps must follow each other causally and stay inside their point's brief.`

// substepBatchSchemaReminder is shared by the substep and intro prompts.
const substepBatchSchemaReminder = `Respond with a single JSON object:
{"items": [{"index": integer, "substeps": [string]}]}
"index" refers to the point numbering shown in the outline.`

// substepsTask closes the substep expansion user message.
const substepsTask = `Expand every point in the outline above. Return one item per point.`

// introSystem asks for minimal introduction substeps. Only points that need
// changes come back; everything else keeps its current substeps.
const introSystem = `You review the substep outline of an interactive novel for missing introductions.

A reader meets characters, places, items, and concepts strictly in substep order. Wherever a substep relies on something the reader has not been introduced to yet, insert a minimal introduction substep before the first reliance. Keep every existing substep and its order; only add.

Return ONLY the points you changed, each with its complete new substep list. Aim for at most 7 substeps per point. If nothing needs an introduction, return an empty items array.`

// introTask closes the intro insertion user message.
const introTask = `Insert the missing introduction substeps. Return only changed points.`

// generatorStyle opens every page generation system message.
const generatorStyle = `You are the narrator of an ongoing interactive novel.

Writing guidelines:
1. **Lean Prose**: Short, concrete sentences. Cut filler words and empty intensifiers.
2. **POV Integrity**: Keep one point of view for the whole passage. Never head-hop.
3. **Dialogue Dynamics**: Characters interrupt, deflect, and talk past each other. No speeches.
4. **Figurative Discipline**: At most one metaphor or simile per passage. No stacked imagery.
5. **Forward Motion**: 6 to 8 short paragraphs that end mid-stride, not on a recap.

Never mention plans, outlines, chapters, or that this text is generated.`

// substepFocusTemplate carries the sub-step the passage must accomplish.
// %s = substep text.
const substepFocusTemplate = `This passage must accomplish the following story step, woven naturally into the scene:
%s`

// worldFocus directs the passage toward the setting.
const worldFocus = `Use this passage to deepen the world: a place, a custom, or a tension of the setting the reader has not seen yet. Keep the main thread moving while you do it.`

// characterFocus directs the passage toward a character.
const characterFocus = `Use this passage to deepen a character: a want, a flaw, or a relationship, revealed through action and dialogue rather than narration.`

// buildupTemplate attaches the next major point during a transition window.
// %s = point title, %s = point brief.
const buildupTemplate = `The story is approaching its next major movement: %s. %s
Seed anticipation for it in this passage without naming it. The reader must feel the shift coming, never see the scaffolding.`

// optionsAllowed and optionsForbidden are the two options directives.
const optionsAllowed = `You MAY include an "options" field: exactly three short strings, each a distinct concrete action the reader could take next. Options must be mutually exclusive and none of them a safe do-nothing choice.`

const optionsForbidden = `Do NOT include an "options" field.`

// pageSchemaReminder closes the page generation system message.
const pageSchemaReminder = `Respond with a single JSON object:
{"passage": string, "summary": string, "notes": [string], "options": [string, string, string]}
- "passage": the page text, 6 to 8 short paragraphs separated by blank lines.
- "summary": one sentence recapping this page.
- "notes": at most two short factual bullets worth remembering later (names, facts, promises). Empty array when nothing new.
- "options": only when permitted above.`

// strictJSONReminder closes every structured user message.
const strictJSONReminder = `Return strictly the JSON object. No text before or after it.`

// verifierSystem judges whether a pending sub-step was accomplished.
const verifierSystem = `You judge whether a passage of an interactive novel accomplished a given story step.

The step counts as done when the passage plausibly covers it, even partially or obliquely. Err on the side of done.`

// verifierSchemaReminder is appended to the verifier system message.
const verifierSchemaReminder = `Respond with a single JSON object:
{"done": boolean}`

// adaptSystem asks for a revised plan after a player choice.
const adaptSystem = `You revise the remaining plan of an interactive novel after the reader made a choice.

Rules:
1. Everything already narrated is immutable. The revised plan must follow from the committed page and the choice.
2. Keep the overall idea and conflict unless the choice contradicts them.
3. Return the COMPLETE plan: at least 3 points, each with title, brief, and substeps.
4. Set "curPoint" and "curSub" to the next unperformed substep of the revised plan.
5. Prefer the smallest revision that honors the choice; do not discard future points that still work.`

// adaptSchemaReminder is appended to the adapt system message.
const adaptSchemaReminder = `Respond with a single JSON object:
{"overallIdea": string, "conflict": string, "points": [{"title": string, "brief": string, "substeps": [string]}], "curPoint": integer, "curSub": integer}`

// adaptTask closes the adapt user message.
const adaptTask = `Revise the plan so it follows from the committed page and the reader's choice.`
