package models

// Plan is the high-level narrative outline steering page generation. The
// cursor (CurPoint, CurSub) identifies the next unperformed sub-step; when
// CurPoint equals len(Points) the plan is exhausted.
type Plan struct {
	OverallIdea string  `json:"overallIdea" bson:"overallIdea"`
	Conflict    string  `json:"conflict" bson:"conflict"`
	Points      []Point `json:"points" bson:"points"`
	CurPoint    int     `json:"curPoint" bson:"curPoint"`
	CurSub      int     `json:"curSub" bson:"curSub"`
}

// Point is one major beat of the plan, expanded into ordered sub-steps.
type Point struct {
	Title    string   `json:"title" bson:"title"`
	Brief    string   `json:"brief" bson:"brief"`
	Substeps []string `json:"substeps,omitempty" bson:"substeps,omitempty"`
}

// Exhausted reports whether the cursor has moved past the final point.
func (p *Plan) Exhausted() bool {
	return p.CurPoint >= len(p.Points)
}

// CurrentSubstep returns the sub-step under the cursor, or "" when the plan
// is exhausted or the cursor points outside the current point's sub-steps.
func (p *Plan) CurrentSubstep() string {
	if p.Exhausted() {
		return ""
	}
	subs := p.Points[p.CurPoint].Substeps
	if p.CurSub < 0 || p.CurSub >= len(subs) {
		return ""
	}
	return subs[p.CurSub]
}

// SubstepAt returns the sub-step at the given position, or "" when out of
// range. Used by the verifier, which checks a recorded position rather than
// the live cursor.
func (p *Plan) SubstepAt(pointIndex, subIndex int) string {
	if pointIndex < 0 || pointIndex >= len(p.Points) {
		return ""
	}
	subs := p.Points[pointIndex].Substeps
	if subIndex < 0 || subIndex >= len(subs) {
		return ""
	}
	return subs[subIndex]
}

// Advance moves the cursor one sub-step forward. Past the end of the current
// point it steps to the next point's first sub-step; past the final point the
// cursor parks at (len(Points), 0). The cursor never moves backward.
func (p *Plan) Advance() {
	if p.Exhausted() {
		return
	}
	p.CurSub++
	if p.CurSub >= len(p.Points[p.CurPoint].Substeps) {
		p.CurPoint++
		if p.CurPoint > len(p.Points) {
			p.CurPoint = len(p.Points)
		}
		p.CurSub = 0
	}
}

// NextPoint returns the point after the cursor's current one, or nil when the
// current point is the last.
func (p *Plan) NextPoint() *Point {
	next := p.CurPoint + 1
	if next >= len(p.Points) {
		return nil
	}
	return &p.Points[next]
}

// InPointTail reports whether the cursor sits in the last n sub-steps of the
// current point and another point follows. Page generation forces sub-step
// focus inside this window so the prose builds up to the coming point.
func (p *Plan) InPointTail(n int) bool {
	if p.Exhausted() || p.NextPoint() == nil {
		return false
	}
	subs := p.Points[p.CurPoint].Substeps
	if len(subs) == 0 {
		return false
	}
	return p.CurSub >= len(subs)-n
}
