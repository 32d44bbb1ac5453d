package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"hokm-server/internal/deck"
	"hokm-server/internal/engine"
	"hokm-server/internal/registry"
	"hokm-server/internal/store"
	"hokm-server/internal/wire"
)

const handleTimeout = 5 * time.Second

// handleInbound runs the inbound pipeline on one raw frame: decode,
// whitelist, validate fields, resolve identity, route. Every failure
// is answered with a typed error; nothing here closes the transport.
func (d *Dispatcher) handleInbound(c *conn, raw []byte) {
	env, err := wire.DecodeEnvelope(raw)
	if err != nil {
		c.sendError("malformed", err.Error())
		return
	}
	if !wire.InboundTypes[env.Type] {
		c.sendError("unknown_type", string(env.Type))
		return
	}

	switch env.Type {
	case wire.TypePing:
		c.reply(wire.TypePong, wire.PongPayload{})
	case wire.TypeAuthenticate:
		d.handleAuthenticate(c, env.Payload)
	case wire.TypeReconnect:
		d.handleReconnect(c, env.Payload)
	case wire.TypeJoin:
		d.handleJoin(c, env.Payload)
	case wire.TypeLeave:
		d.handleLeave(c, env.Payload)
	case wire.TypeSelectHokm:
		d.handleSelectHokm(c, env.Payload)
	case wire.TypePlayCard:
		d.handlePlayCard(c, env.Payload)
	}
}

func (c *conn) reply(t wire.MessageType, payload any) {
	frame, err := wire.EncodeOutbound(t, payload)
	if err != nil {
		log.Printf("[dispatcher] conn %s: encode %s: %v", c.id, t, err)
		return
	}
	if err := c.Send(frame); err != nil {
		log.Printf("[dispatcher] conn %s: reply %s: %v", c.id, t, err)
	}
}

func (c *conn) sendError(code, message string) {
	c.reply(wire.TypeError, wire.ErrorPayload{Code: code, Message: message})
}

func decodePayload[T any](c *conn, raw json.RawMessage) (T, bool) {
	var out T
	if len(raw) == 0 {
		c.sendError("malformed", "missing payload")
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		c.sendError("malformed", err.Error())
		return out, false
	}
	return out, true
}

func (d *Dispatcher) handleAuthenticate(c *conn, raw json.RawMessage) {
	payload, ok := decodePayload[wire.AuthenticatePayload](c, raw)
	if !ok {
		return
	}
	if d.verifier == nil {
		c.reply(wire.TypeAuthResponse, wire.AuthResponsePayload{OK: false, Reason: "token_auth_disabled"})
		return
	}

	claims, err := d.verifier.Verify(payload.Token)
	if err != nil {
		log.Printf("[dispatcher] conn %s: token rejected: %v", c.id, err)
		c.reply(wire.TypeAuthResponse, wire.AuthResponsePayload{OK: false, Reason: "invalid_token"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	if err := d.sessions.Bind(ctx, c, claims.PlayerID); err != nil {
		log.Printf("[dispatcher] conn %s: bind %s: %v", c.id, claims.PlayerID, err)
		c.reply(wire.TypeAuthResponse, wire.AuthResponsePayload{OK: false, Reason: "internal"})
		return
	}
	c.reply(wire.TypeAuthResponse, wire.AuthResponsePayload{OK: true, PlayerID: claims.PlayerID})
}

// handleReconnect resumes a previously issued identity without a token:
// the player_id must already have a Session in the store, so a guessed
// id that never played resolves to nothing.
func (d *Dispatcher) handleReconnect(c *conn, raw json.RawMessage) {
	payload, ok := decodePayload[wire.ReconnectPayload](c, raw)
	if !ok {
		return
	}
	if payload.PlayerID == "" {
		c.sendError("malformed", "empty player_id")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	if _, err := d.store.GetSession(ctx, payload.PlayerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.reply(wire.TypeAuthResponse, wire.AuthResponsePayload{OK: false, Reason: "unknown_player"})
			return
		}
		log.Printf("[dispatcher] conn %s: reconnect lookup %s: %v", c.id, payload.PlayerID, err)
		c.reply(wire.TypeAuthResponse, wire.AuthResponsePayload{OK: false, Reason: "internal"})
		return
	}

	if err := d.sessions.Bind(ctx, c, payload.PlayerID); err != nil {
		log.Printf("[dispatcher] conn %s: bind %s: %v", c.id, payload.PlayerID, err)
		c.reply(wire.TypeAuthResponse, wire.AuthResponsePayload{OK: false, Reason: "internal"})
		return
	}
	c.reply(wire.TypeAuthResponse, wire.AuthResponsePayload{OK: true, PlayerID: payload.PlayerID})
}

// identify resolves the player bound to c, or answers not_authenticated.
func (d *Dispatcher) identify(c *conn) (string, bool) {
	playerID, ok := d.sessions.PlayerFor(c)
	if !ok {
		c.sendError("not_authenticated", "")
		return "", false
	}
	return playerID, true
}

func (d *Dispatcher) handleJoin(c *conn, raw json.RawMessage) {
	payload, ok := decodePayload[wire.JoinPayload](c, raw)
	if !ok {
		return
	}
	playerID, ok := d.identify(c)
	if !ok {
		return
	}
	if !wire.ValidRoomCode(payload.RoomCode) {
		c.sendError("malformed", "bad room_code")
		return
	}

	actor, err := d.rooms.GetOrCreate(payload.RoomCode)
	if err != nil {
		log.Printf("[dispatcher] join %s: %v", payload.RoomCode, err)
		c.sendError("internal", "")
		return
	}

	res := actor.SubmitCommand(registry.Command{Kind: registry.CmdJoin, PlayerID: playerID})
	switch {
	case res.Err == nil:
		slot := slotOf(res.State, playerID)
		d.registerMembership(c, playerID, payload.RoomCode, slot)
		if res.State.Phase != engine.PhaseLobby {
			// The fourth join triggers team assignment, which shuffles
			// every seat; refresh the other three sessions so their
			// recorded slots match the final seating.
			for s, p := range res.State.Players {
				if p != "" && p != playerID {
					d.registerMembership(c, p, payload.RoomCode, s)
				}
			}
		}
		c.reply(wire.TypeJoinSuccess, wire.JoinSuccessPayload{RoomCode: payload.RoomCode, Slot: slot, You: playerID})

	case errors.Is(res.Err, engine.ErrPlayerExists):
		// Already seated: treat join as a resume of the same seat.
		slot := slotOf(res.State, playerID)
		if slot == engine.InvalidSlot {
			c.sendError("internal", "")
			return
		}
		d.registerMembership(c, playerID, payload.RoomCode, slot)
		actor.SubmitCommand(registry.Command{Kind: registry.CmdSetConnected, Slot: slot, Connected: true})
		c.reply(wire.TypeJoinSuccess, wire.JoinSuccessPayload{RoomCode: payload.RoomCode, Slot: slot, You: playerID})

	default:
		c.replyCommandError(res.Err)
	}
}

func (d *Dispatcher) registerMembership(c *conn, playerID, roomCode string, slot int) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	if err := d.sessions.RegisterRoomMembership(ctx, playerID, roomCode, slot); err != nil {
		log.Printf("[dispatcher] conn %s: register membership %s/%s: %v", c.id, playerID, roomCode, err)
	}
}

func (d *Dispatcher) handleLeave(c *conn, raw json.RawMessage) {
	payload, ok := decodePayload[wire.LeavePayload](c, raw)
	if !ok {
		return
	}
	playerID, ok := d.identify(c)
	if !ok {
		return
	}
	if !wire.ValidRoomCode(payload.RoomCode) {
		c.sendError("malformed", "bad room_code")
		return
	}

	sess, ok := d.sessionInRoom(c, playerID, payload.RoomCode)
	if !ok {
		return
	}

	if actor, live := d.rooms.Get(payload.RoomCode); live {
		res := actor.SubmitCommand(registry.Command{Kind: registry.CmdLeave, Slot: sess.Slot})
		if errors.Is(res.Err, engine.ReasonWrongPhase) {
			// Past the lobby there is no seat to vacate; the departure
			// is a disconnect as far as the room is concerned.
			actor.SubmitCommand(registry.Command{Kind: registry.CmdSetConnected, Slot: sess.Slot, Connected: false})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	if err := d.sessions.EndMembership(ctx, playerID); err != nil {
		log.Printf("[dispatcher] conn %s: end membership %s: %v", c.id, playerID, err)
	}
}

func (d *Dispatcher) handleSelectHokm(c *conn, raw json.RawMessage) {
	payload, ok := decodePayload[wire.SelectHokmPayload](c, raw)
	if !ok {
		return
	}
	playerID, ok := d.identify(c)
	if !ok {
		return
	}
	if !wire.ValidRoomCode(payload.RoomCode) {
		c.sendError("malformed", "bad room_code")
		return
	}
	if !wire.ValidSuit(payload.Suit) {
		c.sendError("malformed", "bad suit")
		return
	}

	sess, actor, ok := d.roomCommandContext(c, playerID, payload.RoomCode)
	if !ok {
		return
	}
	res := actor.SubmitCommand(registry.Command{Kind: registry.CmdSelectHokm, Slot: sess.Slot, SuitInput: payload.Suit})
	if res.Err != nil {
		c.replyCommandError(res.Err)
	}
}

func (d *Dispatcher) handlePlayCard(c *conn, raw json.RawMessage) {
	payload, ok := decodePayload[wire.PlayCardPayload](c, raw)
	if !ok {
		return
	}
	playerID, ok := d.identify(c)
	if !ok {
		return
	}
	if !wire.ValidRoomCode(payload.RoomCode) {
		c.sendError("malformed", "bad room_code")
		return
	}
	if !wire.ValidCard(payload.Card) {
		c.sendError("malformed", "bad card")
		return
	}
	card, err := deck.ParseCard(payload.Card)
	if err != nil {
		c.sendError("malformed", "bad card")
		return
	}

	sess, actor, ok := d.roomCommandContext(c, playerID, payload.RoomCode)
	if !ok {
		return
	}
	res := actor.SubmitCommand(registry.Command{Kind: registry.CmdPlayCard, Slot: sess.Slot, Card: card})
	if res.Err != nil {
		c.replyCommandError(res.Err)
	}
}

// sessionInRoom loads playerID's session and checks it points at
// roomCode, answering invalid_action otherwise.
func (d *Dispatcher) sessionInRoom(c *conn, playerID, roomCode string) (store.Session, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	sess, err := d.store.GetSession(ctx, playerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.sendError("invalid_action", "not_in_room")
			return store.Session{}, false
		}
		log.Printf("[dispatcher] conn %s: session lookup %s: %v", c.id, playerID, err)
		c.sendError("internal", "")
		return store.Session{}, false
	}
	if sess.RoomCode != roomCode {
		c.sendError("invalid_action", "not_in_room")
		return store.Session{}, false
	}
	return sess, true
}

// roomCommandContext resolves the sender's seat and the live actor for
// a game command targeting roomCode.
func (d *Dispatcher) roomCommandContext(c *conn, playerID, roomCode string) (store.Session, *registry.RoomActor, bool) {
	sess, ok := d.sessionInRoom(c, playerID, roomCode)
	if !ok {
		return store.Session{}, nil, false
	}
	actor, live := d.rooms.Get(roomCode)
	if !live {
		c.sendError("invalid_action", "room_not_found")
		return store.Session{}, nil, false
	}
	return sess, actor, true
}

// replyCommandError maps a room command failure onto the outward error
// codes.
func (c *conn) replyCommandError(err error) {
	var reason engine.InvalidActionError
	switch {
	case errors.As(err, &reason):
		c.sendError("invalid_action", string(reason))
	case errors.Is(err, engine.ErrRoomFull):
		c.sendError("room_full", "")
	case errors.Is(err, registry.ErrMailboxFull):
		c.sendError("server_busy", "")
	case errors.Is(err, engine.ErrGameEnded):
		c.sendError("invalid_action", "game_ended")
	default:
		c.sendError("internal", "")
	}
}

func slotOf(state engine.GameState, playerID string) int {
	for slot, p := range state.Players {
		if p == playerID {
			return slot
		}
	}
	return engine.InvalidSlot
}
