package server

import "math"

// InterestFilter implements the per-(recipient, candidate) predicate from
// spec §4.6 step 2: mutual ignore and radius ignore. PAL identity
// visibility is decided separately by PALVisible.
type InterestFilter struct{}

// Admit reports whether candidate C's avatar data should be considered
// for recipient R this tick. PAL only affects identity visibility (spec
// §4.7's RequestsDomainListData handling), not this data-admission gate.
func (InterestFilter) Admit(r, c *Node) bool {
	if r == nil || c == nil || r == c {
		return false
	}

	r.Data.Mu.Lock()
	rIgnoresC := r.Data.isIgnoring(c.ID)
	radiusEnabled := r.Data.RadiusIgnoreEnabled
	radius := r.Data.Avatar.BoundingRadius
	rPos := r.Data.Avatar.WorldPosition
	r.Data.Mu.Unlock()

	c.Data.Mu.Lock()
	cIgnoresR := c.Data.isIgnoring(r.ID)
	cPos := c.Data.Avatar.WorldPosition
	c.Data.Mu.Unlock()

	if rIgnoresC || cIgnoresR {
		return false
	}
	// radius(R) is the recipient's own bounding radius (spec §3, §4.6
	// step 2): RadiusIgnoreRequest carries no distance of its own, it
	// just toggles whether R's presence radius gates candidates.
	if radiusEnabled && distance(rPos, cPos) <= radius {
		return false
	}
	return true
}

func distance(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// PALVisible reports whether C's identity must remain visible to R even
// though R ignores C for data, per spec §4.7's RequestsDomainListData
// semantics: "forces identity visibility for peers R ignores".
func PALVisible(r, c *Node) bool {
	if r == nil || c == nil || r == c {
		return false
	}
	r.Data.Mu.Lock()
	requestsPAL := r.Data.RequestsPAL
	ignoresC := r.Data.isIgnoring(c.ID)
	r.Data.Mu.Unlock()
	return requestsPAL && ignoresC
}
