package server

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func newInterestTestNode(id uuid.UUID) *Node {
	return &Node{
		ID:     id,
		Kind:   NodeKindAgent,
		Active: true,
		Data:   NewClientData(id, 1, DefaultInboxDepth),
	}
}

func TestInterestFilterAdmitsByDefault(t *testing.T) {
	r := newInterestTestNode(uuid.New())
	c := newInterestTestNode(uuid.New())
	if !(InterestFilter{}).Admit(r, c) {
		t.Fatalf("expected two unrelated agents to admit each other")
	}
}

func TestInterestFilterRejectsMutualIgnore(t *testing.T) {
	r := newInterestTestNode(uuid.New())
	c := newInterestTestNode(uuid.New())

	r.Data.Mu.Lock()
	r.Data.Ignored[c.ID] = struct{}{}
	r.Data.Mu.Unlock()

	if (InterestFilter{}).Admit(r, c) {
		t.Fatalf("expected an ignored candidate to be rejected")
	}
}

func TestInterestFilterRejectsWithinIgnoreRadius(t *testing.T) {
	r := newInterestTestNode(uuid.New())
	c := newInterestTestNode(uuid.New())

	r.Data.Mu.Lock()
	r.Data.RadiusIgnoreEnabled = true
	r.Data.Avatar.BoundingRadius = 10
	r.Data.Mu.Unlock()

	c.Data.Mu.Lock()
	c.Data.Avatar.WorldPosition = [3]float64{1, 0, 0}
	c.Data.Mu.Unlock()

	if (InterestFilter{}).Admit(r, c) {
		t.Fatalf("expected a candidate inside the ignore radius to be rejected")
	}
}

// TestInterestFilterAdmitIsRaceFree exercises Admit concurrently with the
// kind of mutation the receive thread performs on Ignored via
// handleIgnoreRequest, matching spec §5's mutex-holding requirement.
func TestInterestFilterAdmitIsRaceFree(t *testing.T) {
	r := newInterestTestNode(uuid.New())
	c := newInterestTestNode(uuid.New())

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			r.Data.Mu.Lock()
			r.Data.Ignored[c.ID] = struct{}{}
			delete(r.Data.Ignored, c.ID)
			r.Data.Mu.Unlock()
		}
	}()

	for i := 0; i < 1000; i++ {
		(InterestFilter{}).Admit(r, c)
	}
	close(stop)
	wg.Wait()
}

func TestPALVisibleRequiresRequestsPALAndIgnore(t *testing.T) {
	r := newInterestTestNode(uuid.New())
	c := newInterestTestNode(uuid.New())

	if PALVisible(r, c) {
		t.Fatalf("expected PALVisible false without RequestsPAL or ignore")
	}

	r.Data.Mu.Lock()
	r.Data.RequestsPAL = true
	r.Data.Ignored[c.ID] = struct{}{}
	r.Data.Mu.Unlock()

	if !PALVisible(r, c) {
		t.Fatalf("expected PALVisible true when R requests PAL and ignores C")
	}
}
