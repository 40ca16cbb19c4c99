package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// outboxDepth bounds the per-connection unreliable send queue. Once full,
// SendUnreliable drops the newest frame rather than blocking the caller,
// mirroring the "no best-effort delivery stronger than the underlying
// transport provides for unreliable channels" non-goal from SPEC_FULL.md.
const outboxDepth = 64

// session adapts one gorilla/websocket connection into the core's
// PacketSender contract. Reliable sends go straight to the connection
// under a write mutex (the teacher's subscriber pattern, hub.go); unreliable
// sends are queued to a single writer goroutine so a slow client can't
// stall a slave worker mid-tick.
type session struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	unreliable chan []byte
	closed     chan struct{}
	closeOnce  sync.Once
}

func newSession(conn *websocket.Conn) *session {
	s := &session{
		conn:       conn,
		unreliable: make(chan []byte, outboxDepth),
		closed:     make(chan struct{}),
	}
	go s.runUnreliableWriter()
	return s
}

// SendReliable implements server.PacketSender.
func (s *session) SendReliable(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(websocket.BinaryMessage, payload)
}

// SendUnreliable implements server.PacketSender. It never blocks: a full
// queue means the connection can't keep up, so the frame is dropped, the
// same fate an unreliable datagram would meet under congestion.
func (s *session) SendUnreliable(payload []byte) error {
	select {
	case s.unreliable <- payload:
		return nil
	case <-s.closed:
		return errSessionClosed
	default:
		return nil
	}
}

func (s *session) runUnreliableWriter() {
	for {
		select {
		case payload := <-s.unreliable:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
			_ = s.conn.WriteMessage(websocket.BinaryMessage, payload)
			s.writeMu.Unlock()
		case <-s.closed:
			return
		}
	}
}

func (s *session) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return s.conn.Close()
}

type sessionClosedError struct{}

func (sessionClosedError) Error() string { return "avatarmixer: session closed" }

var errSessionClosed = sessionClosedError{}
