// Package registry holds the per-room actor and the registry that
// creates and retires them: one goroutine per room draining a bounded
// mailbox, a top-level map guarded by one mutex, and a ticker-driven
// cleanup loop for idle rooms.
package registry

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"hokm-server/internal/engine"
	"hokm-server/internal/store"
)

// mailboxCapacity bounds how many in-flight commands a room will queue
// before SubmitCommand starts refusing with ErrMailboxFull.
const mailboxCapacity = 64

// casRetries is how many times a room actor retries PutState against a
// stale version before giving up. In normal operation there is exactly
// one writer per room, so this only guards against a crashed-and-revived
// actor racing a store row it no longer owns.
const casRetries = 3

// disconnectGraceBeforeDeal is how long a room tolerates a disconnected
// player during setup (team assignment through the final deal) before
// cancelling the room outright; there is no meaningful partial-roster
// state to resume once dealing has begun. A var, not a const, so tests
// can shorten it instead of sleeping 30 real seconds.
var disconnectGraceBeforeDeal = 30 * time.Second

// ErrMailboxFull is returned by SubmitCommand when the room's bounded
// mailbox has no free slot; the dispatcher surfaces it to the sender as
// server_busy and drops the command.
var ErrMailboxFull = errors.New("room mailbox full")

// EventSink receives the events an actor produces after every accepted
// command, for the dispatcher layer to fan out to transports. The
// actor passes its current slot→player_id mapping alongside the events
// so the sink can resolve private targets without calling back into
// the actor (Publish runs while the actor's lock is held).
type EventSink interface {
	Publish(roomCode string, players [engine.NumSlots]string, events []engine.Event)
}

// RoomActor owns one room's GameState exclusively: every mutation flows
// through its run loop, so the engine package itself never needs a lock.
type RoomActor struct {
	code  string
	store store.Store
	sink  EventSink

	mailbox  chan Command
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	state   engine.GameState
	version int64
	closed  bool

	lastActivity time.Time

	disconnectTimers map[int]*time.Timer
}

func newRoomActor(code string, st store.Store, sink EventSink, state engine.GameState, version int64) *RoomActor {
	a := &RoomActor{
		code:             code,
		store:            st,
		sink:             sink,
		mailbox:          make(chan Command, mailboxCapacity),
		done:             make(chan struct{}),
		state:            state,
		version:          version,
		lastActivity:     time.Now(),
		disconnectTimers: make(map[int]*time.Timer),
	}
	go a.run()
	return a
}

func (a *RoomActor) run() {
	for {
		select {
		case cmd := <-a.mailbox:
			result := a.handle(cmd)
			if cmd.Response != nil {
				cmd.Response <- result
			}
		case <-a.done:
			a.drainMailbox()
			return
		}
	}
}

// drainMailbox answers any commands still queued when the actor shuts
// down, so no SubmitCommand caller is left blocked on its Response.
func (a *RoomActor) drainMailbox() {
	for {
		select {
		case cmd := <-a.mailbox:
			if cmd.Response != nil {
				cmd.Response <- Result{Err: engine.ErrGameEnded}
			}
		default:
			return
		}
	}
}

// SubmitCommand enqueues cmd and blocks for its Result. A full mailbox
// is reported immediately as ErrMailboxFull rather than blocking the
// caller; backpressure belongs to the sender, not the room.
func (a *RoomActor) SubmitCommand(cmd Command) Result {
	if cmd.Response == nil {
		cmd.Response = make(chan Result, 1)
	}
	select {
	case a.mailbox <- cmd:
	case <-a.done:
		return Result{Err: engine.ErrGameEnded}
	default:
		return Result{Err: ErrMailboxFull}
	}
	select {
	case result := <-cmd.Response:
		return result
	case <-a.done:
		// The actor may have closed while this command was queued; the
		// shutdown drain answers it, so wait briefly for that answer
		// before giving up.
		select {
		case result := <-cmd.Response:
			return result
		case <-time.After(time.Second):
			return Result{Err: engine.ErrGameEnded}
		}
	}
}

func (a *RoomActor) handle(cmd Command) Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return Result{Err: engine.ErrGameEnded}
	}
	if cmd.Kind == CmdClose {
		a.stopLocked()
		return Result{State: a.state}
	}

	// Compute-and-CAS loop: a version mismatch means another process
	// moved the room, so the transition is recomputed over the reloaded
	// state rather than blindly re-written. With one actor per room this
	// succeeds first try; the loop only matters when a prior instance's
	// actor has not yet noticed it lost ownership.
	var next engine.GameState
	var events []engine.Event
	for attempt := 0; ; attempt++ {
		var err error
		next, events, err = a.applyLocked(cmd)
		if err != nil {
			return Result{Err: err, State: a.state}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		newVersion, perr := a.store.PutState(ctx, a.code, next, a.version)
		cancel()
		if perr == nil {
			a.version = newVersion
			break
		}
		if perr != store.ErrConcurrentWrite {
			log.Printf("[room %s] persist failed: %v", a.code, perr)
			return Result{Err: perr, State: a.state}
		}
		if attempt >= casRetries {
			// Retries exhausted against a competing writer: this actor
			// no longer owns the room. Fatal for the room, not the
			// process, and the row is left alone; it belongs to the
			// winner now.
			log.Printf("[room %s] lost ownership after %d CAS retries", a.code, casRetries)
			if a.sink != nil {
				a.sink.Publish(a.code, a.state.Players, []engine.Event{{
					Kind:    engine.EventGameCancelled,
					Target:  engine.BroadcastTo(),
					Payload: engine.GameCancelledPayload{Reason: "internal"},
				}})
			}
			a.stopLocked()
			return Result{Err: perr, State: a.state}
		}

		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		stored, gerr := a.store.GetState(ctx, a.code)
		cancel()
		if gerr != nil {
			log.Printf("[room %s] reload after CAS miss failed: %v", a.code, gerr)
			return Result{Err: gerr, State: a.state}
		}
		a.state = stored.State
		a.version = stored.Version
	}

	a.state = next
	a.lastActivity = time.Now()
	if cmd.Kind == CmdSetConnected {
		a.armDisconnectTimer(cmd.Slot, cmd.Connected)
	}
	if len(events) > 0 && a.sink != nil {
		a.sink.Publish(a.code, a.state.Players, events)
	}
	if a.state.Phase == engine.PhaseGameComplete {
		a.finishGameLocked()
	}
	return Result{Events: events, State: a.state}
}

// applyLocked runs the pure transition a command asks for against the
// actor's current state.
func (a *RoomActor) applyLocked(cmd Command) (engine.GameState, []engine.Event, error) {
	switch cmd.Kind {
	case CmdJoin:
		return engine.Join(a.state, cmd.PlayerID)
	case CmdLeave:
		return engine.Leave(a.state, cmd.Slot)
	case CmdSelectHokm:
		return engine.SelectHokm(a.state, cmd.Slot, cmd.SuitInput)
	case CmdPlayCard:
		return engine.PlayCard(a.state, cmd.Slot, cmd.Card)
	case CmdSetConnected:
		if !cmd.Connected && a.state.Phase == engine.PhaseLobby {
			return engine.Leave(a.state, cmd.Slot)
		}
		next := engine.SetConnected(a.state, cmd.Slot, cmd.Connected)
		return next, a.connectionEvents(next, cmd.Slot, cmd.Connected), nil
	default:
		return engine.GameState{}, nil, engine.InvalidActionError("unknown_command")
	}
}

// connectionEvents builds the broadcasts for a transport-liveness change
// on a seated slot, plus the private full-state snapshot a reconnecting
// player needs to resume. Liveness changes originate outside the
// engine, so the actor composes these itself.
func (a *RoomActor) connectionEvents(next engine.GameState, slot int, connected bool) []engine.Event {
	if next.Players[slot] == "" {
		return nil
	}
	if !connected {
		return []engine.Event{{
			Kind:    engine.EventPlayerDisconnected,
			Target:  engine.BroadcastTo(),
			Payload: engine.PlayerDisconnectedPayload{Slot: slot},
		}}
	}
	events := []engine.Event{{
		Kind:    engine.EventPlayerReconnected,
		Target:  engine.BroadcastTo(),
		Payload: engine.PlayerReconnectedPayload{Slot: slot},
	}}
	if next.Phase != engine.PhaseLobby {
		events = append(events, engine.Event{
			Kind:    engine.EventGameState,
			Target:  engine.PrivateTo(slot),
			Payload: engine.ViewFor(next, slot),
		})
	}
	return events
}

// finishGameLocked tears the room down after a completed game: the
// persisted row and every seated player's session are removed, and the
// actor stops. Transports stay open; a finished player can join a new
// room on the same connection.
func (a *RoomActor) finishGameLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.store.DeleteRoom(ctx, a.code); err != nil {
		log.Printf("[room %s] delete on completion failed: %v", a.code, err)
	}
	for _, playerID := range a.state.Players {
		if playerID == "" {
			continue
		}
		if err := a.store.DeleteSession(ctx, playerID); err != nil {
			log.Printf("[room %s] delete session %s on completion failed: %v", a.code, playerID, err)
		}
	}
	a.stopLocked()
}

// armDisconnectTimer arms or disarms the setup-phase disconnect grace
// timer for a slot. A LOBBY disconnect is handled immediately by the
// caller turning it into a Leave; gameplay-phase disconnects are handled
// purely by the engine's turn guard (ReasonDisconnected): no timer, the
// room waits indefinitely for a reconnect once cards are in play. Only
// the setup window in between (team assignment through the final deal)
// gets a bounded grace period, since there is no meaningful state to
// resume into if the roster never completes.
func (a *RoomActor) armDisconnectTimer(slot int, connected bool) {
	if timer, ok := a.disconnectTimers[slot]; ok {
		timer.Stop()
		delete(a.disconnectTimers, slot)
	}
	if connected {
		return
	}

	switch a.state.Phase {
	case engine.PhaseTeamAssignment, engine.PhaseInitialDeal, engine.PhaseWaitingForHokm, engine.PhaseFinalDeal:
		a.disconnectTimers[slot] = time.AfterFunc(disconnectGraceBeforeDeal, func() {
			a.cancelIfStillDisconnected(slot)
		})
	}
}

func (a *RoomActor) cancelIfStillDisconnected(slot int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.state.ConnectedSlots[slot] {
		return
	}
	a.teardownLocked("player_disconnected_during_setup")
}

// teardownLocked cancels the room: broadcasts game_cancelled, stops the
// actor, and removes the persisted row.
func (a *RoomActor) teardownLocked(reason string) {
	events := []engine.Event{{
		Kind:    engine.EventGameCancelled,
		Target:  engine.BroadcastTo(),
		Payload: engine.GameCancelledPayload{Reason: reason},
	}}
	if a.sink != nil {
		a.sink.Publish(a.code, a.state.Players, events)
	}
	a.stopLocked()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.store.DeleteRoom(ctx, a.code); err != nil {
		log.Printf("[room %s] delete on cancellation failed: %v", a.code, err)
	}
}

func (a *RoomActor) stopLocked() {
	a.closed = true
	for _, timer := range a.disconnectTimers {
		timer.Stop()
	}
	a.disconnectTimers = make(map[int]*time.Timer)
	a.stopOnce.Do(func() {
		close(a.done)
	})
}

// Stop shuts the actor down without touching the store; callers that
// also want the room row removed should use DeleteRoom separately.
func (a *RoomActor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

// Snapshot returns the current state without going through the mailbox,
// for read-only uses like building a reconnect view.
func (a *RoomActor) Snapshot() engine.GameState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Clone()
}

// IsIdleFor reports whether the room has seen no activity for at least
// d, used by the registry's cleanup loop.
func (a *RoomActor) IsIdleFor(d time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return true
	}
	return time.Since(a.lastActivity) >= d
}

// IsClosed reports whether Stop has already run.
func (a *RoomActor) IsClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}
