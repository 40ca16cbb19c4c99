package server

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry is the process-wide node table. Spec §1 lists the node
// registry as an external collaborator ("the core consumes a *NodeList*
// abstraction"); this is this repo's reference implementation of that
// abstraction, used by both the standalone binary and the tests.
type Registry struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*Node
	nextLocal uint16
}

// NewRegistry constructs an empty node registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[uuid.UUID]*Node)}
}

// Add admits a new node, assigning it a dense local id. Spec §3: "local id
// unique over concurrent membership; id unique globally".
func (r *Registry) Add(id uuid.UUID, kind NodeKind, sender PacketSender, inboxDepth int) *Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byID[id]; ok {
		return existing
	}
	r.nextLocal++
	local := r.nextLocal
	n := &Node{
		ID:      id,
		LocalID: local,
		Kind:    kind,
		State:   NodeStateActive,
		Active:  true,
		Sender:  sender,
		Data:    NewClientData(id, local, inboxDepth),
	}
	n.HasSocket = sender != nil
	r.byID[id] = n
	return n
}

// Remove marks a node killed and drops it from the registry. Returns the
// removed node, or nil if it was not present.
func (r *Registry) Remove(id uuid.UUID) *Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byID[id]
	if !ok {
		return nil
	}
	n.State = NodeStateKilled
	n.Active = false
	delete(r.byID, id)
	return n
}

// Lookup returns the node for id, or nil. Spec §4.11: "Registry lookup
// miss during fan-out: silently skip that recipient for this tick" — the
// nil return is the mechanism callers use to implement that.
func (r *Registry) Lookup(id uuid.UUID) *Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// LookupLocal is a linear scan by local id, used only for the
// occasional peer-state cross-reference where only a LocalID is at hand.
func (r *Registry) LookupLocal(localID uint16) *Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.byID {
		if n.LocalID == localID {
			return n
		}
	}
	return nil
}

// Len reports the current node count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// stableSnapshot returns every node sorted by ID ascending. Spec §4.5:
// "the registry must provide a stable iteration order within a tick" —
// sorting by UUID gives a total, deterministic order and resolves the
// Open Question about display-name-sweep tie-breaking (see DESIGN.md).
func (r *Registry) stableSnapshot() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Node, 0, len(r.byID))
	for _, n := range r.byID {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		return lessUUID(out[i].ID, out[j].ID)
	})
	return out
}

func lessUUID(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// NestedEach is the registry's read-lock-scoped, parallel-partitioned
// iteration primitive (spec §4.3). It acquires the registry read lock
// once, obtains a stable node snapshot, partitions it contiguously into
// n chunks, and invokes fn once per chunk (possibly concurrently — fn is
// responsible for its own concurrency; NestedEach itself does not spawn
// goroutines, see pool.go for the worker fan-out that does).
func (r *Registry) NestedEach(n int, fn func(chunk []*Node)) {
	r.mu.RLock()
	snapshot := make([]*Node, 0, len(r.byID))
	for _, node := range r.byID {
		snapshot = append(snapshot, node)
	}
	r.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		return lessUUID(snapshot[i].ID, snapshot[j].ID)
	})

	if n <= 0 {
		n = 1
	}
	chunks := partition(snapshot, n)
	for _, chunk := range chunks {
		fn(chunk)
	}
}

// partition splits nodes into up to n contiguous, roughly-equal chunks.
func partition(nodes []*Node, n int) [][]*Node {
	if len(nodes) == 0 {
		return nil
	}
	if n > len(nodes) {
		n = len(nodes)
	}
	chunks := make([][]*Node, 0, n)
	base := len(nodes) / n
	rem := len(nodes) % n
	start := 0
	for i := 0; i < n; i++ {
		size := base
		if i < rem {
			size++
		}
		if size == 0 {
			continue
		}
		chunks = append(chunks, nodes[start:start+size])
		start += size
	}
	return chunks
}
