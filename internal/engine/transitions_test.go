package engine

import (
	"testing"

	"hokm-server/internal/deck"
)

func joinFour(t *testing.T, ids ...string) GameState {
	t.Helper()
	state := NewLobbyState()
	var err error
	for _, id := range ids {
		var events []Event
		state, events, err = Join(state, id)
		if err != nil {
			t.Fatalf("Join(%s) err: %v", id, err)
		}
		_ = events
	}
	return state
}

func TestJoinFourthPlayerDealsAndReachesWaitingForHokm(t *testing.T) {
	state := joinFour(t, "p0", "p1", "p2", "p3")
	if state.Phase != PhaseWaitingForHokm {
		t.Fatalf("expected WAITING_FOR_HOKM, got %s", state.Phase)
	}
	for slot, hand := range state.Hands {
		if len(hand) != 5 {
			t.Fatalf("slot %d: expected 5 cards, got %d", slot, len(hand))
		}
	}
	if err := CheckCardConservation(state); err != nil {
		t.Fatalf("conservation: %v", err)
	}
	if state.HakemSlot < 0 || state.HakemSlot >= NumSlots {
		t.Fatalf("hakem slot out of range: %d", state.HakemSlot)
	}
}

func TestTeamAssignmentFairness(t *testing.T) {
	type partitionKey struct{ a, b int }
	counts := make(map[partitionKey]int)
	const trials = 3000
	for i := 0; i < trials; i++ {
		state := joinFour(t, "p0", "p1", "p2", "p3")
		// Identify the partition by which two ORIGINAL ids share a team
		// with p0, so swapping the team labels does not count as a new one.
		team0 := [2]string{state.Players[0], state.Players[2]}
		if state.Players[1] == "p0" || state.Players[3] == "p0" {
			team0 = [2]string{state.Players[1], state.Players[3]}
		}
		if team0[0] > team0[1] {
			team0[0], team0[1] = team0[1], team0[0]
		}
		key := partitionKey{int(team0[0][1]), int(team0[1][1])} // distinguish by last rune of id
		counts[key]++
	}
	if len(counts) != 3 {
		t.Fatalf("expected 3 distinct partitions over %d trials, saw %d: %v", trials, len(counts), counts)
	}
	for k, c := range counts {
		if c < trials/3-300 || c > trials/3+300 {
			t.Fatalf("partition %v frequency %d far from uniform (trials=%d)", k, c, trials)
		}
	}
}

func hakemChoose(t *testing.T, state GameState, suit string) GameState {
	t.Helper()
	next, _, err := SelectHokm(state, state.HakemSlot, suit)
	if err != nil {
		t.Fatalf("SelectHokm err: %v", err)
	}
	return next
}

func TestHakemOnlySelectHokm(t *testing.T) {
	state := joinFour(t, "p0", "p1", "p2", "p3")
	nonHakem := (state.HakemSlot + 1) % NumSlots
	_, _, err := SelectHokm(state, nonHakem, "hearts")
	if err != ReasonNotHakem {
		t.Fatalf("expected ReasonNotHakem, got %v", err)
	}

	next := hakemChoose(t, state, "HEARTS")
	if next.Phase != PhaseGameplay {
		t.Fatalf("expected GAMEPLAY, got %s", next.Phase)
	}
	if next.TrumpSuit != deck.Hearts {
		t.Fatalf("expected hearts trump, got %v", next.TrumpSuit)
	}
	if next.TurnSlot != next.HakemSlot {
		t.Fatalf("expected hakem to lead, turn=%d hakem=%d", next.TurnSlot, next.HakemSlot)
	}
	for _, hand := range next.Hands {
		if len(hand) != 13 {
			t.Fatalf("expected 13 cards after final deal, got %d", len(hand))
		}
	}
	if err := CheckCardConservation(next); err != nil {
		t.Fatalf("conservation: %v", err)
	}
}

// forceHands replaces every hand of an already dealt game with a fixed
// layout so individual trick tests are deterministic.
func forceHands(state GameState, hands [NumSlots]deck.Hand) GameState {
	next := state.Clone()
	next.Hands = hands
	return next
}

func TestScenarioA_TrumpBeatsLedSuit(t *testing.T) {
	state := joinFour(t, "p0", "p1", "p2", "p3")
	state.HakemSlot = 0
	state = hakemChoose(t, state, "hearts")

	state = forceHands(state, [NumSlots]deck.Hand{
		{deck.NewCard(deck.RankK, deck.Spades)},
		{deck.NewCard(deck.Rank2, deck.Hearts)},
		{deck.NewCard(deck.RankA, deck.Spades)},
		{deck.NewCard(deck.Rank3, deck.Clubs)},
	})
	state.TurnSlot = 0

	var err error
	state, _, err = PlayCard(state, 0, deck.NewCard(deck.RankK, deck.Spades))
	if err != nil {
		t.Fatalf("p0 play: %v", err)
	}
	state, _, err = PlayCard(state, 1, deck.NewCard(deck.Rank2, deck.Hearts))
	if err != nil {
		t.Fatalf("p1 play: %v", err)
	}
	state, _, err = PlayCard(state, 2, deck.NewCard(deck.RankA, deck.Spades))
	if err != nil {
		t.Fatalf("p2 play: %v", err)
	}
	state, _, err = PlayCard(state, 3, deck.NewCard(deck.Rank3, deck.Clubs))
	if err != nil {
		t.Fatalf("p3 play: %v", err)
	}

	if state.TurnSlot != 1 {
		t.Fatalf("expected winner slot 1, got %d", state.TurnSlot)
	}
	if state.LedSuitKnown {
		t.Fatalf("expected led suit reset after trick resolution")
	}
	if state.TricksWon[1] != 1 {
		t.Fatalf("expected tricksWon[1]=1, got %d", state.TricksWon[1])
	}
}

func TestScenarioB_MustFollowSuit(t *testing.T) {
	state := joinFour(t, "p0", "p1", "p2", "p3")
	state.HakemSlot = 0
	state = hakemChoose(t, state, "clubs")
	state.LedSuitKnown = true
	state.LedSuit = deck.Diamonds
	state.TurnSlot = 1
	state.Hands[1] = deck.Hand{
		deck.NewCard(deck.Rank5, deck.Diamonds),
		deck.NewCard(deck.RankA, deck.Spades),
	}

	before := state.Hands[1]
	_, _, err := PlayCard(state, 1, deck.NewCard(deck.RankA, deck.Spades))
	if err != ReasonMustFollowSuit {
		t.Fatalf("expected ReasonMustFollowSuit, got %v", err)
	}
	if len(state.Hands[1]) != len(before) {
		t.Fatalf("hand mutated after rejected play")
	}

	after, _, err := PlayCard(state, 1, deck.NewCard(deck.Rank5, deck.Diamonds))
	if err != nil {
		t.Fatalf("legal follow-suit play rejected: %v", err)
	}
	if after.Hands[1].Contains(deck.NewCard(deck.Rank5, deck.Diamonds)) {
		t.Fatalf("card not removed from hand")
	}
}

func TestScenarioC_HakemOnlyHokmChoice(t *testing.T) {
	state := joinFour(t, "p0", "p1", "p2", "p3")
	hakem := state.HakemSlot
	nonHakem := (hakem + 1) % NumSlots

	_, _, err := SelectHokm(state, nonHakem, "hearts")
	if err != ReasonNotHakem {
		t.Fatalf("expected ReasonNotHakem, got %v", err)
	}

	next, _, err := SelectHokm(state, hakem, "hearts")
	if err != nil {
		t.Fatalf("hakem select: %v", err)
	}
	if next.Phase != PhaseGameplay {
		t.Fatalf("expected GAMEPLAY after hakem selects, got %s", next.Phase)
	}
}

func TestPlayCardRejectsCardNotInHand(t *testing.T) {
	state := joinFour(t, "p0", "p1", "p2", "p3")
	state.HakemSlot = 0
	state = hakemChoose(t, state, "spades")
	state.TurnSlot = 0
	missing := deck.NewCard(deck.RankA, deck.Hearts)
	for state.Hands[0].Contains(missing) {
		missing = deck.NewCard(missing.Rank()-1, missing.Suit())
	}
	_, _, err := PlayCard(state, 0, missing)
	if err != ReasonNotInHand {
		t.Fatalf("expected ReasonNotInHand, got %v", err)
	}
}

func TestPlaySameCardTwiceSecondFails(t *testing.T) {
	state := joinFour(t, "p0", "p1", "p2", "p3")
	state.HakemSlot = 0
	state = hakemChoose(t, state, "spades")
	state.TurnSlot = 0
	c := state.Hands[0][0]

	once, _, err := PlayCard(state, 0, c)
	if err != nil {
		t.Fatalf("first play: %v", err)
	}
	twice, _, err := PlayCard(once, 0, c)
	if err != ReasonNotInHand {
		t.Fatalf("expected ReasonNotInHand on replay, got %v", err)
	}
	_ = twice
}

func TestDisconnectedPlayerCannotBeActedFor(t *testing.T) {
	state := joinFour(t, "p0", "p1", "p2", "p3")
	state.HakemSlot = 0
	state = hakemChoose(t, state, "spades")
	state.TurnSlot = 2
	state = SetConnected(state, 2, false)

	c := state.Hands[2][0]
	_, _, err := PlayCard(state, 2, c)
	if err != ReasonDisconnected {
		t.Fatalf("expected ReasonDisconnected, got %v", err)
	}
}

func TestResolveTrickEmptyTrickFails(t *testing.T) {
	state := joinFour(t, "p0", "p1", "p2", "p3")
	state.HakemSlot = 0
	state = hakemChoose(t, state, "spades")
	_, _, err := resolveTrick(state, nil)
	if err != ReasonTrickUnderflow {
		t.Fatalf("expected ReasonTrickUnderflow, got %v", err)
	}
}

func TestRoundEndsAtSevenTricksEvenBeforeThirteen(t *testing.T) {
	state := joinFour(t, "p0", "p1", "p2", "p3")
	state.HakemSlot = 0
	state = hakemChoose(t, state, "spades")
	state.TricksWon = [NumSlots]int{3, 0, 3, 0} // team 0 already has 6
	state.TrickNumber = 6

	state = forceHands(state, [NumSlots]deck.Hand{
		{deck.NewCard(deck.RankA, deck.Spades)},
		{deck.NewCard(deck.Rank2, deck.Hearts)},
		{deck.NewCard(deck.RankK, deck.Spades)},
		{deck.NewCard(deck.Rank3, deck.Clubs)},
	})
	state.TurnSlot = 0

	var err error
	state, _, err = PlayCard(state, 0, deck.NewCard(deck.RankA, deck.Spades))
	if err != nil {
		t.Fatalf("p0: %v", err)
	}
	state, _, err = PlayCard(state, 1, deck.NewCard(deck.Rank2, deck.Hearts))
	if err != nil {
		t.Fatalf("p1: %v", err)
	}
	state, _, err = PlayCard(state, 2, deck.NewCard(deck.RankK, deck.Spades))
	if err != nil {
		t.Fatalf("p2: %v", err)
	}
	state, _, err = PlayCard(state, 3, deck.NewCard(deck.Rank3, deck.Clubs))
	if err != nil {
		t.Fatalf("p3: %v", err)
	}

	if state.Phase != PhaseWaitingForHokm {
		t.Fatalf("expected round to roll over to WAITING_FOR_HOKM, got %s", state.Phase)
	}
	if state.RoundScores[0] != 1 {
		t.Fatalf("expected team 0 round score 1, got %d", state.RoundScores[0])
	}
}

func TestGameCompletesAtSevenRounds(t *testing.T) {
	state := joinFour(t, "p0", "p1", "p2", "p3")
	state.HakemSlot = 0
	state = hakemChoose(t, state, "spades")
	state.RoundScores = [2]int{6, 0}
	state.TricksWon = [NumSlots]int{3, 0, 3, 0}
	state.TrickNumber = 6

	state = forceHands(state, [NumSlots]deck.Hand{
		{deck.NewCard(deck.RankA, deck.Spades)},
		{deck.NewCard(deck.Rank2, deck.Hearts)},
		{deck.NewCard(deck.RankK, deck.Spades)},
		{deck.NewCard(deck.Rank3, deck.Clubs)},
	})
	state.TurnSlot = 0

	var err error
	state, _, err = PlayCard(state, 0, deck.NewCard(deck.RankA, deck.Spades))
	if err != nil {
		t.Fatalf("p0: %v", err)
	}
	state, _, err = PlayCard(state, 1, deck.NewCard(deck.Rank2, deck.Hearts))
	if err != nil {
		t.Fatalf("p1: %v", err)
	}
	state, _, err = PlayCard(state, 2, deck.NewCard(deck.RankK, deck.Spades))
	if err != nil {
		t.Fatalf("p2: %v", err)
	}
	state, _, err = PlayCard(state, 3, deck.NewCard(deck.Rank3, deck.Clubs))
	if err != nil {
		t.Fatalf("p3: %v", err)
	}

	if state.Phase != PhaseGameComplete {
		t.Fatalf("expected GAME_COMPLETE, got %s", state.Phase)
	}
	if state.RoundScores[0] != 7 {
		t.Fatalf("expected round score 7, got %d", state.RoundScores[0])
	}
}

func TestRoomFullRejectsFifthJoin(t *testing.T) {
	state := joinFour(t, "p0", "p1", "p2", "p3")
	state.Phase = PhaseLobby // force back to test the bounds check directly
	_, _, err := Join(state, "p4")
	if err != ErrRoomFull {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
}
