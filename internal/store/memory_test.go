package store

import (
	"context"
	"testing"
	"time"

	"hokm-server/internal/deck"
	"hokm-server/internal/engine"
)

func sampleState() engine.GameState {
	state := engine.NewLobbyState()
	state.Players[0] = "alice"
	state.Players[1] = "bob"
	state.Phase = engine.PhaseGameplay
	state.TrumpKnown = true
	state.TrumpSuit = deck.Hearts
	state.Hands[0] = deck.Hand{deck.NewCard(deck.RankA, deck.Spades), deck.NewCard(deck.Rank2, deck.Hearts)}
	state.CurrentTrick = []engine.PlayedCard{{Slot: 0, Card: deck.NewCard(deck.RankK, deck.Clubs)}}
	state.LedSuitKnown = true
	state.LedSuit = deck.Clubs
	state.TricksWon = [4]int{1, 0, 2, 0}
	state.RoundScores = [2]int{3, 1}
	state.RoundNumber = 2
	state.TrickNumber = 4
	state.ConnectedSlots = [4]bool{true, true, false, false}
	return state
}

func TestMemoryStorePutStateRequiresVersionZeroForNewRoom(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.PutState(ctx, "ROOM1", sampleState(), 5); err != ErrConcurrentWrite {
		t.Fatalf("PutState with wrong initial version err = %v, want ErrConcurrentWrite", err)
	}

	version, err := s.PutState(ctx, "ROOM1", sampleState(), 0)
	if err != nil {
		t.Fatalf("PutState initial err: %v", err)
	}
	if version != 1 {
		t.Fatalf("PutState initial version = %d, want 1", version)
	}
}

func TestMemoryStorePutStateCASRejectsStaleVersion(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	v1, err := s.PutState(ctx, "ROOM1", sampleState(), 0)
	if err != nil {
		t.Fatalf("PutState initial err: %v", err)
	}

	next := sampleState()
	next.TrickNumber = 5
	if _, err := s.PutState(ctx, "ROOM1", next, v1); err != nil {
		t.Fatalf("PutState with correct version err: %v", err)
	}

	// Retrying with the now-stale v1 must fail.
	if _, err := s.PutState(ctx, "ROOM1", next, v1); err != ErrConcurrentWrite {
		t.Fatalf("PutState with stale version err = %v, want ErrConcurrentWrite", err)
	}
}

func TestMemoryStoreGetStateRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	original := sampleState()

	if _, err := s.PutState(ctx, "ROOM1", original, 0); err != nil {
		t.Fatalf("PutState err: %v", err)
	}

	loaded, err := s.GetState(ctx, "ROOM1")
	if err != nil {
		t.Fatalf("GetState err: %v", err)
	}
	if loaded.Version != 1 {
		t.Fatalf("GetState version = %d, want 1", loaded.Version)
	}
	if loaded.State.Phase != original.Phase {
		t.Fatalf("GetState phase = %v, want %v", loaded.State.Phase, original.Phase)
	}
	if loaded.State.TrumpSuit != original.TrumpSuit {
		t.Fatalf("GetState trump = %v, want %v", loaded.State.TrumpSuit, original.TrumpSuit)
	}
}

func TestMemoryStoreGetStateMissingRoomIsNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetState(context.Background(), "GHOST"); err != ErrNotFound {
		t.Fatalf("GetState missing room err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreSessionTTLExpires(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	sess := Session{PlayerID: "alice", RoomCode: "ROOM1", Slot: 0, ConnectionStatus: StatusActive, LastSeen: time.Now()}
	if err := s.PutSession(ctx, "alice", sess, -time.Second); err != nil {
		t.Fatalf("PutSession err: %v", err)
	}
	if _, err := s.GetSession(ctx, "alice"); err != ErrNotFound {
		t.Fatalf("GetSession after TTL expiry err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreIterActiveRoomsSorted(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, code := range []string{"ZEBRA", "ALPHA", "MIKE"} {
		if _, err := s.PutState(ctx, code, sampleState(), 0); err != nil {
			t.Fatalf("PutState(%s) err: %v", code, err)
		}
	}

	codes, err := s.IterActiveRooms(ctx)
	if err != nil {
		t.Fatalf("IterActiveRooms err: %v", err)
	}
	want := []string{"ALPHA", "MIKE", "ZEBRA"}
	if len(codes) != len(want) {
		t.Fatalf("IterActiveRooms = %v, want %v", codes, want)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("IterActiveRooms[%d] = %s, want %s", i, codes[i], want[i])
		}
	}
}

func TestMemoryStoreDeleteRoom(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if _, err := s.PutState(ctx, "ROOM1", sampleState(), 0); err != nil {
		t.Fatalf("PutState err: %v", err)
	}
	if err := s.DeleteRoom(ctx, "ROOM1"); err != nil {
		t.Fatalf("DeleteRoom err: %v", err)
	}
	if _, err := s.GetState(ctx, "ROOM1"); err != ErrNotFound {
		t.Fatalf("GetState after delete err = %v, want ErrNotFound", err)
	}
}
