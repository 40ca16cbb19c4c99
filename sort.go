package server

import (
	"math"
	"sort"
	"sync/atomic"
	"time"
)

// SortWeights are the run-time-configurable priority coefficients from
// spec §4.6 step 3, adjustable only via the admin-gated AdjustAvatarSorting
// packet (spec §4.7).
type SortWeights struct {
	Size     float64
	Center   float64
	Age      float64
}

// DefaultSortWeights favors size and centeredness slightly over raw
// staleness, matching the qualitative ordering spec §4.6 describes
// ("angular size, centeredness, and staleness").
func DefaultSortWeights() SortWeights {
	return SortWeights{Size: 0.5, Center: 0.35, Age: 0.15}
}

// sortWeightsBox packs a SortWeights into an atomic-friendly form so the
// admin handler (writer) and every slave (readers) can share it without a
// mutex, per spec §5's "Throttle state & sort weights: atomic scalars".
type sortWeightsBox struct {
	size   atomic.Uint64
	center atomic.Uint64
	age    atomic.Uint64
}

func newSortWeightsBox(w SortWeights) *sortWeightsBox {
	b := &sortWeightsBox{}
	b.Store(w)
	return b
}

func (b *sortWeightsBox) Store(w SortWeights) {
	b.size.Store(float64bits(w.Size))
	b.center.Store(float64bits(w.Center))
	b.age.Store(float64bits(w.Age))
}

func (b *sortWeightsBox) Load() SortWeights {
	return SortWeights{
		Size:   float64frombits(b.size.Load()),
		Center: float64frombits(b.center.Load()),
		Age:    float64frombits(b.age.Load()),
	}
}

// PrioritySorter ranks candidate avatars for one recipient (spec §4.6
// step 3).
type PrioritySorter struct {
	weights *sortWeightsBox
	now     func() time.Time
}

// NewPrioritySorter constructs a sorter sharing the given weights box.
func NewPrioritySorter(weights *sortWeightsBox) *PrioritySorter {
	return &PrioritySorter{weights: weights, now: time.Now}
}

// scoredCandidate pairs a candidate node with its computed priority.
type scoredCandidate struct {
	node  *Node
	score float64
}

// Sort scores and orders candidates descending by priority, then applies
// the throttling cutoff: "keep prefix ~(1 - throttlingRatio) * |candidates|"
// (spec §4.6 step 3).
func (s *PrioritySorter) Sort(recipient *Node, candidates []*Node, throttlingRatio float64) []*Node {
	if len(candidates) == 0 {
		return nil
	}
	w := s.weights.Load()
	now := s.now()
	rSnap := snapshotAvatar(recipient)

	scored := make([]scoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, scoredCandidate{
			node:  c,
			score: priorityScore(rSnap, snapshotAvatar(c), w, now),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	keep := int(math.Ceil((1 - throttlingRatio) * float64(len(scored))))
	if keep < 0 {
		keep = 0
	}
	if keep > len(scored) {
		keep = len(scored)
	}

	out := make([]*Node, keep)
	for i := 0; i < keep; i++ {
		out[i] = scored[i].node
	}
	return out
}

// avatarSnapshot is a Data.Mu-guarded copy of the avatar fields the sorter
// and interest filter need, taken once per node per tick so scoring never
// touches ClientData concurrently with the receive thread's writes.
type avatarSnapshot struct {
	WorldPosition  [3]float64
	Facing         [3]float64
	BoundingRadius float64
	LastUpdated    time.Time
}

func snapshotAvatar(n *Node) avatarSnapshot {
	n.Data.Mu.Lock()
	defer n.Data.Mu.Unlock()
	return avatarSnapshot{
		WorldPosition:  n.Data.Avatar.WorldPosition,
		Facing:         n.Data.Avatar.Facing,
		BoundingRadius: n.Data.Avatar.BoundingRadius,
		LastUpdated:    n.Data.Avatar.LastUpdated,
	}
}

func priorityScore(r, c avatarSnapshot, w SortWeights, now time.Time) float64 {
	size := angularSize(r, c)
	center := centeredness(r, c)
	age := now.Sub(c.LastUpdated).Seconds()
	if age < 0 {
		age = 0
	}
	return w.Size*size + w.Center*center + w.Age*age
}

// angularSize approximates the candidate's apparent size from the
// recipient's viewpoint: boundingRadius / distance, larger when closer
// or bigger.
func angularSize(r, c avatarSnapshot) float64 {
	d := distance(r.WorldPosition, c.WorldPosition)
	if d < 0.01 {
		d = 0.01
	}
	return c.BoundingRadius / d
}

// centeredness scores how close the candidate sits to the recipient's
// facing direction: 1.0 dead-ahead, 0.0 directly behind.
func centeredness(r, c avatarSnapshot) float64 {
	toward := sub(c.WorldPosition, r.WorldPosition)
	towardLen := vecLen(toward)
	facingLen := vecLen(r.Facing)
	if towardLen < 1e-6 || facingLen < 1e-6 {
		return 0.5
	}
	cos := dot(toward, r.Facing) / (towardLen * facingLen)
	return (cos + 1) / 2
}

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func vecLen(a [3]float64) float64 {
	return math.Sqrt(dot(a, a))
}
