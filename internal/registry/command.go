package registry

import (
	"hokm-server/internal/deck"
	"hokm-server/internal/engine"
)

// CommandKind selects which pure engine transition a Command invokes.
type CommandKind int

const (
	CmdJoin CommandKind = iota
	CmdLeave
	CmdSelectHokm
	CmdPlayCard
	CmdSetConnected
	CmdClose
)

// Command is one message in a RoomActor's mailbox: a tagged union plus
// a buffered Response channel the actor replies on, so callers block
// for exactly one round trip and never touch actor-owned state
// directly.
type Command struct {
	Kind CommandKind

	PlayerID  string
	Slot      int
	SuitInput string
	Card      deck.Card
	Connected bool

	Response chan Result
}

// Result is what a Command produces: the outbound events the caller
// must publish (already room-scoped, never double-sent), the resulting
// state (for reconnect snapshot assembly), and any rejection error.
type Result struct {
	Events []engine.Event
	State  engine.GameState
	Err    error
}
