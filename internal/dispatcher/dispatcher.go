// Package dispatcher is the only component that speaks to transports:
// it upgrades websocket connections, decodes and validates inbound
// frames, resolves sender identity through the session layer, routes
// commands to room actors, and fans room events back out to the
// transports bound to each recipient.
package dispatcher

import (
	"log"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"hokm-server/internal/authn"
	"hokm-server/internal/engine"
	"hokm-server/internal/registry"
	"hokm-server/internal/session"
	"hokm-server/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: Restrict in production
	},
}

// Dispatcher owns the transport surface. verifier may be nil, in which
// case authenticate is refused and clients identify via reconnect with
// a previously issued player_id.
type Dispatcher struct {
	store    store.Store
	sessions *session.Manager
	verifier authn.Verifier
	rooms    *registry.Registry
	limits   *endpointLimiter
}

// New constructs a Dispatcher. The room registry is attached separately
// (AttachRegistry) because the registry itself needs this dispatcher as
// its event sink.
func New(st store.Store, sessions *session.Manager, verifier authn.Verifier) *Dispatcher {
	return &Dispatcher{
		store:    st,
		sessions: sessions,
		verifier: verifier,
		limits:   newEndpointLimiter(maxMessagesPerMinute, maxTransportsPerEndpoint),
	}
}

// AttachRegistry installs the room registry. Call once during wiring,
// before serving.
func (d *Dispatcher) AttachRegistry(r *registry.Registry) {
	d.rooms = r
}

// HandleWebSocket upgrades an HTTP request into a managed connection
// with its own read and write pumps.
func (d *Dispatcher) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	endpoint := endpointOf(r.RemoteAddr)
	if !d.limits.allowConnect(endpoint) {
		log.Printf("[dispatcher] %s: transport limit exceeded", endpoint)
		http.Error(w, "rate_limited", http.StatusTooManyRequests)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.limits.onDisconnect(endpoint)
		log.Printf("[dispatcher] upgrade error from %s: %v", endpoint, err)
		return
	}

	c := newConn(session.NewTransportID(), endpoint, d, ws)
	log.Printf("[dispatcher] client connected: %s (%s)", c.id, endpoint)

	go c.readPump()
	go c.writePump()
}

// endpointOf reduces a RemoteAddr to its host part, so every transport
// from one machine shares one rate-limit bucket regardless of source
// port.
func endpointOf(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// Publish implements registry.EventSink: it renders each event to a
// wire frame and writes it to the transport of every addressed player.
// A failed or missing transport never aborts delivery to the others;
// disconnected players simply miss broadcasts and catch up from the
// game_state snapshot on reconnect.
func (d *Dispatcher) Publish(roomCode string, players [engine.NumSlots]string, events []engine.Event) {
	for _, ev := range events {
		frame, err := encodeEvent(ev)
		if err != nil {
			log.Printf("[dispatcher] room %s: encode %s: %v", roomCode, ev.Kind, err)
			continue
		}

		if !ev.Target.Broadcast {
			d.sendToPlayer(roomCode, players[ev.Target.Slot], frame)
			continue
		}
		for _, playerID := range players {
			d.sendToPlayer(roomCode, playerID, frame)
		}
	}
}

func (d *Dispatcher) sendToPlayer(roomCode, playerID string, frame []byte) {
	if playerID == "" {
		return
	}
	t, ok := d.sessions.TransportFor(playerID)
	if !ok {
		return
	}
	if err := t.Send(frame); err != nil {
		log.Printf("[dispatcher] room %s: send to %s failed: %v", roomCode, playerID, err)
	}
}
