package server

import (
	"context"
	"time"

	"avatarmixer/server/logging/interest"
)

// broadcastChunk implements pass 2 (spec §4.6) for one slave's chunk of
// recipients.
func (m *Mixer) broadcastChunk(chunk []*Node, throttleRatio float64, now time.Time, s *SlaveStats) {
	all := m.registry.stableSnapshot()
	budgetSeed := NewBandwidthBudget(m.bandwidthMBps, m.frameInterval)

	for _, r := range chunk {
		if r.Data == nil || !r.Active || r.Kind != NodeKindAgent || r.Upstream {
			continue
		}

		candidates := make([]*Node, 0, len(all))
		for _, c := range all {
			if c == r || c.Data == nil || !c.Active || c.Kind != NodeKindAgent {
				continue
			}
			if !m.interest.Admit(r, c) {
				continue
			}
			candidates = append(candidates, c)
		}

		ordered := m.sorter.Sort(r, candidates, throttleRatio)

		budget := budgetSeed
		result := m.encoder.Encode(r, ordered, &budget, now)

		if len(candidates) > 0 {
			s.NodesBroadcastTo++
		}
		s.CandidatesIncluded += len(result.Included)
		s.OverBudget += result.OverBudget
		s.IdentityBytes += result.IdentityBytes
		s.TraitBytes += result.TraitBytes
		s.DataBytes += result.DataBytes

		if result.OverBudget > 0 {
			interest.BudgetExhausted(context.Background(), m.publisher, 0, entityRef(r.ID), interest.BudgetExhaustedPayload{
				Dropped: result.OverBudget,
			}, nil)
		}

		if err := m.emitPALIdentities(r, all); err != nil {
			_ = err
		}
	}
}

// emitPALIdentities handles spec §4.6's PAL carve-out: candidates R
// ignores for data must still receive identity resends if R has opted
// into PAL and their identity is stale, even though they never enter the
// sorted/budgeted candidate set above.
func (m *Mixer) emitPALIdentities(r *Node, all []*Node) error {
	r.Data.Mu.Lock()
	requestsPAL := r.Data.RequestsPAL
	r.Data.Mu.Unlock()
	if !requestsPAL {
		return nil
	}
	for _, c := range all {
		if c == r || c.Data == nil {
			continue
		}
		if !PALVisible(r, c) {
			continue
		}
		r.Data.Mu.Lock()
		peer := r.Data.peer(c.LocalID)
		sentVersion := peer.SentIdentityVersion
		r.Data.Mu.Unlock()

		c.Data.Mu.Lock()
		currentSeq := c.Data.IdentitySequenceNumber
		sessionName := c.Data.SessionDisplayName
		modelURL := c.Data.Avatar.ModelURL
		c.Data.Mu.Unlock()

		if currentSeq <= sentVersion {
			continue
		}
		if r.Sender == nil {
			continue
		}
		body := encodeIdentityBody(c.ID, sessionName, modelURL, currentSeq)
		framed := EncodeFrame(PacketAvatarIdentity, c.ID, body)
		if err := r.Sender.SendReliable(framed); err != nil {
			return err
		}
		r.Data.Mu.Lock()
		peer.SentIdentityVersion = currentSeq
		r.Data.Mu.Unlock()
	}
	return nil
}
