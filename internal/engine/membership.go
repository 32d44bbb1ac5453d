package engine

// Leave removes a player from a room that has not yet started dealing.
// Once team assignment has run there is no partial-roster state to
// return to; a departure past that point is rejected here and recorded
// as a disconnect (SetConnected) instead, not as a per-player engine edit.
func Leave(state GameState, slot int) (GameState, []Event, error) {
	if state.Phase != PhaseLobby {
		return invalidAction(ReasonWrongPhase)
	}
	if state.Players[slot] == "" {
		return invalidAction(ReasonWrongPhase)
	}

	next := state.Clone()
	next.Players[slot] = ""
	next.ConnectedSlots[slot] = false

	occupied := 0
	for _, p := range next.Players {
		if p != "" {
			occupied++
		}
	}

	events := []Event{{
		Kind:   EventRoomUpdate,
		Target: broadcastTo(),
		Payload: RoomUpdatePayload{
			ConnectedPlayers: occupied,
			Phase:            next.Phase,
		},
	}}
	return next, events, nil
}

// SetConnected records a slot's transport liveness. It never changes
// phase or hand contents; only the "disconnected players cannot be
// acted for" guard in PlayCard reads it.
func SetConnected(state GameState, slot int, connected bool) GameState {
	next := state.Clone()
	next.ConnectedSlots[slot] = connected
	return next
}
