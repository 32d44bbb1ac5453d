// Package session binds open transports to player identities, keeps
// Session records fresh in the state store, and emits
// disconnect/reconnect notifications to the owning room. Identity
// itself is established upstream, in internal/authn; this package only
// tracks which transport currently speaks for which player.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"hokm-server/internal/store"
)

// DefaultSessionTTL is how long a Session row survives in the store
// without a refresh before it is treated as gone.
const DefaultSessionTTL = 24 * time.Hour

// Transport is the minimal capability the SessionManager needs from a
// live connection: a stable id for binding-table bookkeeping, and the
// ability to be force-closed when superseded or evicted.
type Transport interface {
	ID() string
	Close(reason string) error
	// Send enqueues data for the transport's write loop. It must not
	// block: a full outbound queue is the transport's problem, never
	// the session layer's.
	Send(data []byte) error
}

// RoomNotifier is the narrow slice of the room registry this package
// depends on, satisfied by *registry.Registry at wiring time. Kept as
// an interface (rather than importing the registry package) and
// invoked only after the mutex is released, so a disconnect/reconnect
// notification never reaches a room mailbox while the binding table is
// locked.
type RoomNotifier interface {
	NotifyConnectionChange(roomCode string, slot int, connected bool)
}

// Manager tracks transport bindings. It is constructed with its
// collaborators; there are no package-level singletons.
type Manager struct {
	mu sync.Mutex

	// byPlayer maps player_id to the transport currently bound to it.
	byPlayer map[string]Transport
	// transportPlayer maps a transport id back to the player_id bound
	// to it, so an unbind-on-close only needs the transport's own id.
	transportPlayer map[string]string

	store    store.Store
	notifier RoomNotifier
}

// NewManager constructs a SessionManager backed by st, notifying
// disconnect/reconnect events through notifier. notifier may be nil at
// construction and installed later with SetNotifier: the registry that
// satisfies it is itself constructed with the dispatcher, which needs
// this manager, so someone in the cycle has to be wired late.
func NewManager(st store.Store, notifier RoomNotifier) *Manager {
	return &Manager{
		byPlayer:        make(map[string]Transport),
		transportPlayer: make(map[string]string),
		store:           st,
		notifier:        notifier,
	}
}

// SetNotifier installs the room notifier after construction. Call once
// during wiring, before any transport binds.
func (m *Manager) SetNotifier(n RoomNotifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// NewTransportID mints a correlation id for a freshly accepted
// connection, used in logs and as the binding-table key before a
// player_id is known.
func NewTransportID() string {
	return uuid.NewString()
}

// Bind associates transport with playerID. If playerID already has a
// live transport bound, that transport is closed with reason
// "superseded" before the new binding takes effect.
// If the player has a Session pointing at a live room, a
// player_reconnected notification is emitted to that room after the
// lock is released.
func (m *Manager) Bind(ctx context.Context, transport Transport, playerID string) error {
	m.mu.Lock()
	if old, ok := m.byPlayer[playerID]; ok && old.ID() != transport.ID() {
		delete(m.transportPlayer, old.ID())
		m.mu.Unlock()
		if err := old.Close("superseded"); err != nil {
			log.Printf("[session] closing superseded transport for %s: %v", playerID, err)
		}
		m.mu.Lock()
	}
	m.byPlayer[playerID] = transport
	m.transportPlayer[transport.ID()] = playerID
	m.mu.Unlock()

	sess, err := m.store.GetSession(ctx, playerID)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("bind %s: load session: %w", playerID, err)
	}

	prevSeen := sess.LastSeen
	sess.ConnectionStatus = store.StatusActive
	sess.LastSeen = time.Now()
	if err := m.store.PutSession(ctx, playerID, sess, DefaultSessionTTL); err != nil {
		return fmt.Errorf("bind %s: refresh session: %w", playerID, err)
	}

	if m.notifier != nil {
		m.notifier.NotifyConnectionChange(sess.RoomCode, sess.Slot, true)
	}
	log.Printf("[session] %s reconnected to room=%s slot=%d (last seen %s)",
		playerID, sess.RoomCode, sess.Slot, humanize.Time(prevSeen))
	return nil
}

// Unbind releases a transport on close: the Session is marked
// disconnected and a player_disconnected notification is emitted to
// the owning room.
func (m *Manager) Unbind(ctx context.Context, transport Transport) error {
	m.mu.Lock()
	playerID, ok := m.transportPlayer[transport.ID()]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.transportPlayer, transport.ID())
	if bound, ok := m.byPlayer[playerID]; ok && bound.ID() == transport.ID() {
		delete(m.byPlayer, playerID)
	}
	m.mu.Unlock()

	sess, err := m.store.GetSession(ctx, playerID)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("unbind %s: load session: %w", playerID, err)
	}

	sess.ConnectionStatus = store.StatusDisconnected
	sess.LastSeen = time.Now()
	if err := m.store.PutSession(ctx, playerID, sess, DefaultSessionTTL); err != nil {
		return fmt.Errorf("unbind %s: refresh session: %w", playerID, err)
	}

	if m.notifier != nil {
		m.notifier.NotifyConnectionChange(sess.RoomCode, sess.Slot, false)
	}
	log.Printf("[session] %s disconnected from room=%s slot=%d", playerID, sess.RoomCode, sess.Slot)
	return nil
}

// RegisterRoomMembership records that playerID now occupies slot in
// roomCode, called by the join flow after the RoomActor accepts the
// player, on a resumed join, and for every seat once team assignment
// reshuffles them. A player has at most one session, so a later call
// for the same player overwrites the earlier one.
func (m *Manager) RegisterRoomMembership(ctx context.Context, playerID, roomCode string, slot int) error {
	sess := store.Session{
		PlayerID:         playerID,
		RoomCode:         roomCode,
		Slot:             slot,
		ConnectionStatus: store.StatusActive,
		LastSeen:         time.Now(),
	}
	return m.store.PutSession(ctx, playerID, sess, DefaultSessionTTL)
}

// EndMembership deletes a player's session, called when a game ends or
// the player voluntarily leaves.
func (m *Manager) EndMembership(ctx context.Context, playerID string) error {
	return m.store.DeleteSession(ctx, playerID)
}

// TransportFor returns the transport currently bound to playerID, if
// any. The Dispatcher uses it to route an outbound event addressed to
// a specific player.
func (m *Manager) TransportFor(playerID string) (Transport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byPlayer[playerID]
	return t, ok
}

// PlayerFor returns the player_id currently bound to transport, if
// any. The Dispatcher uses it to resolve identity on every inbound
// message after authenticate/join/reconnect.
func (m *Manager) PlayerFor(transport Transport) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	playerID, ok := m.transportPlayer[transport.ID()]
	return playerID, ok
}
