package engine

import "hokm-server/internal/deck"

// CheckCardConservation verifies that the multiset union of all hands,
// the current trick, the collected tricks this round, and any undealt
// stock equals the 52-card deck with no duplicates. Tests call this
// after the transitions they check; it is not invoked on the hot path.
func CheckCardConservation(state GameState) error {
	seen := make(map[deck.Card]int, 52)
	for _, hand := range state.Hands {
		for _, c := range hand {
			seen[c]++
		}
	}
	for _, pc := range state.CurrentTrick {
		seen[pc.Card]++
	}
	for _, trick := range state.CollectedTricks {
		for _, pc := range trick {
			seen[pc.Card]++
		}
	}
	for _, c := range state.Stock {
		seen[c]++
	}

	for _, c := range deck.FullDeck() {
		if seen[c] != 1 {
			return InvalidActionError("card_conservation_violated")
		}
		delete(seen, c)
	}
	if len(seen) != 0 {
		return InvalidActionError("card_conservation_violated")
	}
	return nil
}
