package store

import (
	"encoding/json"
	"fmt"

	"hokm-server/internal/deck"
	"hokm-server/internal/engine"
)

// wireCard is the canonical (suit, rank) persisted form for a card,
// matching the wire and log encodings so a dumped room row is directly
// comparable to what a client sees. The bit-packed deck.Card
// stays internal to the process; nothing outside this package should
// need to know it's a single byte.
type wireCard struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
}

func toWireCard(c deck.Card) wireCard {
	return wireCard{Rank: rankToken(c), Suit: c.Suit().String()}
}

func rankToken(c deck.Card) string {
	full := c.String()
	// card.String() renders "<rank>_<suit>"; split on the separator
	// rather than re-deriving the rank table here.
	for i := 0; i < len(full); i++ {
		if full[i] == '_' {
			return full[:i]
		}
	}
	return full
}

func (w wireCard) toCard() (deck.Card, error) {
	return deck.ParseCard(w.Rank + "_" + w.Suit)
}

func toWireHand(h deck.Hand) []wireCard {
	sorted := h.Sorted()
	out := make([]wireCard, len(sorted))
	for i, c := range sorted {
		out[i] = toWireCard(c)
	}
	return out
}

// toWireStock keeps the cards in their shuffled order. Unlike hands,
// the stock's order IS state: it decides who receives what in the
// final deal, and must survive a restart unchanged.
func toWireStock(cards []deck.Card) []wireCard {
	out := make([]wireCard, len(cards))
	for i, c := range cards {
		out[i] = toWireCard(c)
	}
	return out
}

func fromWireHand(ws []wireCard) (deck.Hand, error) {
	if len(ws) == 0 {
		// An empty hand decodes to nil, the same form Clone produces, so
		// a round trip yields an equal GameState.
		return nil, nil
	}
	h := make(deck.Hand, 0, len(ws))
	for _, w := range ws {
		c, err := w.toCard()
		if err != nil {
			return nil, err
		}
		h = append(h, c)
	}
	return h, nil
}

type wirePlayedCard struct {
	Slot int      `json:"slot"`
	Card wireCard `json:"card"`
}

func toWirePlayed(pc engine.PlayedCard) wirePlayedCard {
	return wirePlayedCard{Slot: pc.Slot, Card: toWireCard(pc.Card)}
}

func fromWirePlayed(w wirePlayedCard) (engine.PlayedCard, error) {
	c, err := w.Card.toCard()
	if err != nil {
		return engine.PlayedCard{}, err
	}
	return engine.PlayedCard{Slot: w.Slot, Card: c}, nil
}

// wireState is the JSON-serializable twin of engine.GameState. Integer
// slot keys become array indices rather than stringified map keys,
// which keeps the persisted form identical in shape to the in-memory
// one and sidesteps Go's stringified-int-map-key JSON quirk entirely.
type wireState struct {
	Phase           string             `json:"phase"`
	Players         [4]string          `json:"players"`
	Teams           [2][2]int          `json:"teams"`
	HakemSlot       int                `json:"hakem_slot"`
	TrumpSuit       string             `json:"trump_suit,omitempty"`
	TrumpKnown      bool               `json:"trump_known"`
	Hands           [4][]wireCard      `json:"hands"`
	Stock           []wireCard         `json:"stock"`
	CurrentTrick    []wirePlayedCard   `json:"current_trick"`
	LedSuitKnown    bool               `json:"led_suit_known"`
	LedSuit         string             `json:"led_suit,omitempty"`
	TurnSlot        int                `json:"turn_slot"`
	TricksWon       [4]int             `json:"tricks_won"`
	RoundScores     [2]int             `json:"round_scores"`
	RoundNumber     int                `json:"round_number"`
	TrickNumber     int                `json:"trick_number"`
	CollectedTricks [][]wirePlayedCard `json:"collected_tricks"`
	ConnectedSlots  [4]bool            `json:"connected_slots"`
}

// EncodeState renders a GameState into the canonical persisted byte form.
func EncodeState(state engine.GameState) ([]byte, error) {
	ws := wireState{
		Phase:          state.Phase.String(),
		Players:        state.Players,
		Teams:          state.Teams,
		HakemSlot:      state.HakemSlot,
		TrumpKnown:     state.TrumpKnown,
		Stock:          toWireStock(state.Stock),
		LedSuitKnown:   state.LedSuitKnown,
		TurnSlot:       state.TurnSlot,
		TricksWon:      state.TricksWon,
		RoundScores:    state.RoundScores,
		RoundNumber:    state.RoundNumber,
		TrickNumber:    state.TrickNumber,
		ConnectedSlots: state.ConnectedSlots,
	}
	if state.TrumpKnown {
		ws.TrumpSuit = state.TrumpSuit.String()
	}
	if state.LedSuitKnown {
		ws.LedSuit = state.LedSuit.String()
	}
	for i, h := range state.Hands {
		ws.Hands[i] = toWireHand(h)
	}
	for _, pc := range state.CurrentTrick {
		ws.CurrentTrick = append(ws.CurrentTrick, toWirePlayed(pc))
	}
	for _, trick := range state.CollectedTricks {
		wt := make([]wirePlayedCard, len(trick))
		for i, pc := range trick {
			wt[i] = toWirePlayed(pc)
		}
		ws.CollectedTricks = append(ws.CollectedTricks, wt)
	}
	return json.Marshal(ws)
}

// DecodeState parses the canonical persisted form back into a GameState.
func DecodeState(data []byte) (engine.GameState, error) {
	var ws wireState
	if err := json.Unmarshal(data, &ws); err != nil {
		return engine.GameState{}, fmt.Errorf("decode state: %w", err)
	}

	phase, err := engine.ParsePhase(ws.Phase)
	if err != nil {
		return engine.GameState{}, fmt.Errorf("decode state: %w", err)
	}

	state := engine.GameState{
		Phase:          phase,
		Players:        ws.Players,
		Teams:          ws.Teams,
		HakemSlot:      ws.HakemSlot,
		TrumpKnown:     ws.TrumpKnown,
		LedSuitKnown:   ws.LedSuitKnown,
		TurnSlot:       ws.TurnSlot,
		TricksWon:      ws.TricksWon,
		RoundScores:    ws.RoundScores,
		RoundNumber:    ws.RoundNumber,
		TrickNumber:    ws.TrickNumber,
		ConnectedSlots: ws.ConnectedSlots,
	}

	if ws.TrumpKnown {
		suit, err := deck.ParseSuit(ws.TrumpSuit)
		if err != nil {
			return engine.GameState{}, fmt.Errorf("decode state: trump suit: %w", err)
		}
		state.TrumpSuit = suit
	}
	if ws.LedSuitKnown {
		suit, err := deck.ParseSuit(ws.LedSuit)
		if err != nil {
			return engine.GameState{}, fmt.Errorf("decode state: led suit: %w", err)
		}
		state.LedSuit = suit
	}

	stock, err := fromWireHand(ws.Stock)
	if err != nil {
		return engine.GameState{}, fmt.Errorf("decode state: stock: %w", err)
	}
	state.Stock = []deck.Card(stock)

	for i, wh := range ws.Hands {
		h, err := fromWireHand(wh)
		if err != nil {
			return engine.GameState{}, fmt.Errorf("decode state: hand %d: %w", i, err)
		}
		state.Hands[i] = h
	}

	for _, w := range ws.CurrentTrick {
		pc, err := fromWirePlayed(w)
		if err != nil {
			return engine.GameState{}, fmt.Errorf("decode state: current trick: %w", err)
		}
		state.CurrentTrick = append(state.CurrentTrick, pc)
	}

	for _, wt := range ws.CollectedTricks {
		trick := make([]engine.PlayedCard, len(wt))
		for i, w := range wt {
			pc, err := fromWirePlayed(w)
			if err != nil {
				return engine.GameState{}, fmt.Errorf("decode state: collected trick: %w", err)
			}
			trick[i] = pc
		}
		state.CollectedTricks = append(state.CollectedTricks, trick)
	}

	return state, nil
}
