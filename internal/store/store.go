// Package store is the durable, atomically-updated key/value store of
// per-room game state and per-player sessions: the single source of
// truth across restarts. Room state writes are guarded by a
// compare-and-swap version so an actor that lost ownership of its room
// can never clobber the current owner's writes.
package store

import (
	"context"
	"errors"
	"time"

	"hokm-server/internal/engine"
)

// ErrConcurrentWrite signals a failed compare-and-swap: a stored version
// did not match the expected one, meaning another writer moved the room
// state first.
var ErrConcurrentWrite = errors.New("concurrent write: version mismatch")

// ErrNotFound is returned by Get* lookups that find nothing, instead of
// returning a zero value indistinguishable from "stored but empty".
var ErrNotFound = errors.New("not found")

// ConnectionStatus is a Session's liveness flag.
type ConnectionStatus string

const (
	StatusActive       ConnectionStatus = "active"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// Session records which room and seat a player occupies, and whether
// their transport is currently live.
type Session struct {
	PlayerID         string
	RoomCode         string
	Slot             int
	ConnectionStatus ConnectionStatus
	LastSeen         time.Time
}

// StoredState pairs a room's GameState with its CAS version.
type StoredState struct {
	State   engine.GameState
	Version int64
}

// Store is the persistence interface. Every component takes one as a
// constructor-time collaborator (no singletons) so tests can swap in
// the in-memory implementation.
type Store interface {
	GetState(ctx context.Context, roomCode string) (StoredState, error)
	// PutState performs an optimistic-concurrency write: it succeeds
	// only if the currently stored version equals expectedVersion (0
	// means "room must not exist yet"), returning the new version on
	// success and ErrConcurrentWrite otherwise.
	PutState(ctx context.Context, roomCode string, state engine.GameState, expectedVersion int64) (int64, error)
	GetSession(ctx context.Context, playerID string) (Session, error)
	PutSession(ctx context.Context, playerID string, session Session, ttl time.Duration) error
	DeleteSession(ctx context.Context, playerID string) error
	DeleteRoom(ctx context.Context, roomCode string) error
	IterActiveRooms(ctx context.Context) ([]string, error)
	Close() error
}
