package server

import (
	"context"
	"sync"

	"avatarmixer/server/logging"
)

// fakeSender is a PacketSender test double recording every frame handed to
// it, split by delivery channel.
type fakeSender struct {
	mu         sync.Mutex
	reliable   [][]byte
	unreliable [][]byte
}

func (s *fakeSender) SendReliable(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reliable = append(s.reliable, append([]byte(nil), payload...))
	return nil
}

func (s *fakeSender) SendUnreliable(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreliable = append(s.unreliable, append([]byte(nil), payload...))
	return nil
}

func (s *fakeSender) reliableCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reliable)
}

// recordingPublisher captures every published event for assertions,
// mirroring logging/sinks.MemorySink but scoped to this package's tests.
type recordingPublisher struct {
	mu     sync.Mutex
	events []logging.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event logging.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) byType(t logging.EventType) []logging.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []logging.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestMixer() (*Mixer, *recordingPublisher) {
	pub := &recordingPublisher{}
	m := NewMixer(MixerConfig{
		Rate:      DefaultBroadcastRateHz,
		Threads:   2,
		Publisher: pub,
	})
	return m, pub
}
