package registry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"hokm-server/internal/engine"
	"hokm-server/internal/store"
)

const (
	defaultIdleRoomTTL     = 10 * time.Minute
	defaultCleanupInterval = 30 * time.Second
)

// Registry owns every live RoomActor in this process: one map under
// one mutex, a background ticker retiring idle entries, idempotent
// creation so a retried "create room" request never double-allocates.
type Registry struct {
	mu     sync.Mutex
	actors map[string]*RoomActor

	store store.Store
	sink  EventSink

	idleTTL         time.Duration
	cleanupInterval time.Duration
	done            chan struct{}
	stopOnce        sync.Once
}

// NewRegistry constructs a registry backed by st, publishing events
// through sink, and starts its idle-room cleanup loop.
func NewRegistry(st store.Store, sink EventSink) *Registry {
	r := &Registry{
		actors:          make(map[string]*RoomActor),
		store:           st,
		sink:            sink,
		idleTTL:         defaultIdleRoomTTL,
		cleanupInterval: defaultCleanupInterval,
		done:            make(chan struct{}),
	}
	go r.cleanupLoop()
	return r
}

// GetOrCreate returns the live actor for roomCode, constructing one from
// the store's persisted row if present, or a fresh lobby otherwise. Two
// concurrent callers racing the same new room code both get the same
// actor; the second caller's room creation is absorbed silently.
func (r *Registry) GetOrCreate(roomCode string) (*RoomActor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.actors[roomCode]; ok && !a.IsClosed() {
		return a, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stored, err := r.store.GetState(ctx, roomCode)
	switch err {
	case nil:
		a := newRoomActor(roomCode, r.store, r.sink, stored.State, stored.Version)
		r.actors[roomCode] = a
		return a, nil
	case store.ErrNotFound:
		state := engine.NewLobbyState()
		version, putErr := r.store.PutState(ctx, roomCode, state, 0)
		if putErr != nil {
			return nil, fmt.Errorf("create room %s: %w", roomCode, putErr)
		}
		a := newRoomActor(roomCode, r.store, r.sink, state, version)
		r.actors[roomCode] = a
		return a, nil
	default:
		return nil, fmt.Errorf("load room %s: %w", roomCode, err)
	}
}

// Get returns the live actor for roomCode without creating one.
func (r *Registry) Get(roomCode string) (*RoomActor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[roomCode]
	if !ok || a.IsClosed() {
		return nil, false
	}
	return a, true
}

func (r *Registry) cleanupLoop() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.CleanupIdleRooms()
		case <-r.done:
			return
		}
	}
}

// CleanupIdleRooms retires actors that have been idle past idleTTL or
// already closed themselves (e.g. via a setup-phase cancellation), and
// returns how many it removed.
func (r *Registry) CleanupIdleRooms() int {
	r.mu.Lock()
	var idle []*RoomActor
	for code, a := range r.actors {
		if a.IsClosed() || a.IsIdleFor(r.idleTTL) {
			delete(r.actors, code)
			idle = append(idle, a)
		}
	}
	r.mu.Unlock()

	for _, a := range idle {
		a.Stop()
		log.Printf("[registry] removed idle/closed room %s", a.code)
	}
	return len(idle)
}

// NotifyConnectionChange satisfies session.RoomNotifier: it looks up
// the room's live actor and posts a CmdSetConnected, dropping the
// notification if the room no longer exists (the room has already
// ended or been cancelled, which is not an error for the caller).
func (r *Registry) NotifyConnectionChange(roomCode string, slot int, connected bool) {
	actor, ok := r.Get(roomCode)
	if !ok {
		return
	}
	res := actor.SubmitCommand(Command{Kind: CmdSetConnected, Slot: slot, Connected: connected})
	if res.Err != nil {
		log.Printf("[registry] connection-change notify room=%s slot=%d: %v", roomCode, slot, res.Err)
	}
}

// Stop shuts down the cleanup loop and every live actor.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)

		r.mu.Lock()
		actors := make([]*RoomActor, 0, len(r.actors))
		for _, a := range r.actors {
			actors = append(actors, a)
		}
		r.actors = make(map[string]*RoomActor)
		r.mu.Unlock()

		for _, a := range actors {
			a.Stop()
		}
	})
}
