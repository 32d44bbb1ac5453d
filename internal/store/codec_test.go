package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"hokm-server/internal/deck"
	"hokm-server/internal/engine"
)

func TestEncodeDecodeStateRoundTrip(t *testing.T) {
	original := sampleState()
	original.CollectedTricks = [][]engine.PlayedCard{
		{
			{Slot: 0, Card: deck.NewCard(deck.RankQ, deck.Diamonds)},
			{Slot: 1, Card: deck.NewCard(deck.Rank9, deck.Diamonds)},
			{Slot: 2, Card: deck.NewCard(deck.RankJ, deck.Hearts)},
			{Slot: 3, Card: deck.NewCard(deck.Rank3, deck.Diamonds)},
		},
	}
	original.Stock = []deck.Card{deck.NewCard(deck.Rank7, deck.Clubs)}

	encoded, err := EncodeState(original)
	if err != nil {
		t.Fatalf("EncodeState err: %v", err)
	}

	decoded, err := DecodeState(encoded)
	if err != nil {
		t.Fatalf("DecodeState err: %v", err)
	}

	if diff := cmp.Diff(original, decoded, cmp.Comparer(func(a, b deck.Hand) bool {
		return cmp.Equal([]deck.Card(a), []deck.Card(b))
	})); diff != "" {
		t.Fatalf("DecodeState(EncodeState(original)) mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeStateOmitsTrumpWhenUnknown(t *testing.T) {
	state := engine.NewLobbyState()
	encoded, err := EncodeState(state)
	if err != nil {
		t.Fatalf("EncodeState err: %v", err)
	}
	decoded, err := DecodeState(encoded)
	if err != nil {
		t.Fatalf("DecodeState err: %v", err)
	}
	if decoded.TrumpKnown {
		t.Fatalf("DecodeState TrumpKnown = true, want false for lobby state")
	}
}

func TestDecodeStateRejectsUnknownPhase(t *testing.T) {
	if _, err := DecodeState([]byte(`{"phase":"NOT_A_PHASE"}`)); err == nil {
		t.Fatalf("DecodeState with unknown phase err = nil, want error")
	}
}
