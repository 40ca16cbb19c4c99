// Package ws adapts the core Mixer onto a gorilla/websocket transport,
// filling the "underlying reliable/unreliable datagram transport" boundary
// SPEC_FULL.md leaves external to the core (see its §1 non-goals and §4.14
// Wire Transport Adapter section). Grounded on the teacher's
// internal/net/ws package (handler.go, session.go), generalized from a
// text/JSON player protocol to this repo's binary node/packet framing.
package ws

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	server "avatarmixer/server"
)

// Handler upgrades incoming HTTP requests to websocket connections and
// bridges frames to and from the Mixer.
type Handler struct {
	mixer    *server.Mixer
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Logger *log.Logger
}

// NewHandler constructs a Handler bound to mixer.
func NewHandler(mixer *server.Mixer, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		mixer:  mixer,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements http.Handler, admitting one node per connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := nodeIDFromRequest(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", id, err)
		return
	}

	sess := newSession(conn)
	node := h.mixer.AdmitAgent(id, sess)

	var lastMalformedLog time.Time
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		pkt, err := server.Decode(raw)
		if err != nil {
			// Malformed framing: spec §4.11 says drop, not disconnect, and
			// log at most once per sender per RateLimitLogInterval.
			if now := time.Now(); now.Sub(lastMalformedLog) >= server.RateLimitLogInterval {
				h.logger.Printf("dropping malformed packet from %s: %v", id, err)
				lastMalformedLog = now
			}
			continue
		}
		h.mixer.Enqueue(node.ID, pkt)
	}

	sess.Close()
	h.mixer.HandleKill(node.ID)
}

// nodeIDFromRequest resolves the connecting node's identity from the "id"
// query parameter, generating a fresh UUID when absent. The domain
// handshake layer that would normally assign this is explicitly out of
// scope (SPEC_FULL.md §1).
func nodeIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := r.URL.Query().Get("id")
	if raw == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(raw)
}
