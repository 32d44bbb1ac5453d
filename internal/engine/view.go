package engine

import "hokm-server/internal/deck"

// PlayerView is the full state snapshot sent to one player on
// reconnect: the same fields the steady-state notifications carry,
// just assembled as one message instead of the incremental event
// stream.
type PlayerView struct {
	Phase        Phase
	Teams        [2][2]int
	HakemSlot    int
	TrumpKnown   bool
	TrumpSuit    deck.Suit
	Hand         deck.Hand
	TurnSlot     int
	LedSuitKnown bool
	LedSuit      deck.Suit
	CurrentTrick []PlayedCard
	RoundScores  [2]int
	RoundNumber  int
	TrickNumber  int
}

// ViewFor builds the reconnecting player's private snapshot: only their
// own hand is included, never another slot's.
func ViewFor(state GameState, slot int) PlayerView {
	return PlayerView{
		Phase:        state.Phase,
		Teams:        state.Teams,
		HakemSlot:    state.HakemSlot,
		TrumpKnown:   state.TrumpKnown,
		TrumpSuit:    state.TrumpSuit,
		Hand:         state.Hands[slot].Sorted(),
		TurnSlot:     state.TurnSlot,
		LedSuitKnown: state.LedSuitKnown,
		LedSuit:      state.LedSuit,
		CurrentTrick: append([]PlayedCard(nil), state.CurrentTrick...),
		RoundScores:  state.RoundScores,
		RoundNumber:  state.RoundNumber,
		TrickNumber:  state.TrickNumber,
	}
}
