package engine

import (
	"math/rand"
	"sort"

	"hokm-server/internal/deck"
)

// Join adds a player to a room in LOBBY phase. When the fourth player
// joins, team assignment, the initial deal, and the transition into
// WAITING_FOR_HOKM all happen within this same call: the wire protocol
// has no separate "deal" command, so the whole chain fires at once.
func Join(state GameState, playerID string) (GameState, []Event, error) {
	if state.Phase != PhaseLobby {
		return invalidAction(ReasonWrongPhase)
	}
	for _, p := range state.Players {
		if p == playerID {
			return GameState{}, nil, ErrPlayerExists
		}
	}

	next := state.Clone()
	slot := InvalidSlot
	for i, p := range next.Players {
		if p == "" {
			slot = i
			break
		}
	}
	if slot == InvalidSlot {
		return GameState{}, nil, ErrRoomFull
	}
	next.Players[slot] = playerID
	next.ConnectedSlots[slot] = true

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

	if occupied < NumSlots {
		return next, events, nil
	}

	next.Phase = PhaseTeamAssignment
	assignTeamsAndHakem(&next)
	events = append(events, Event{
		Kind:   EventTeamAssignment,
		Target: broadcastTo(),
		Payload: TeamAssignmentPayload{
			Teams:   next.Teams,
			Players: next.Players,
			Hakem:   next.HakemSlot,
		},
	})

	next.Phase = PhaseInitialDeal
	next.RoundNumber = 1
	dealInitial(&next)
	for slot := 0; slot < NumSlots; slot++ {
		events = append(events, Event{
			Kind:    EventInitialDeal,
			Target:  privateTo(slot),
			Payload: InitialDealPayload{Hand: next.Hands[slot].Sorted()},
		})
	}

	next.Phase = PhaseWaitingForHokm
	events = append(events, Event{
		Kind:    EventHokmChoiceRequired,
		Target:  privateTo(next.HakemSlot),
		Payload: HokmChoiceRequiredPayload{},
	})

	return next, events, nil
}

// assignTeamsAndHakem performs the random partition and hakem draw:
// shuffling the four players into a fresh slot order yields a uniform
// distribution over the three distinct team partitions, because teams
// are always {0,2} and {1,3}.
func assignTeamsAndHakem(state *GameState) {
	players := append([]string(nil), state.Players[:]...)
	r := rand.New(rand.NewSource(deck.CryptoSeed()))
	r.Shuffle(len(players), func(i, j int) { players[i], players[j] = players[j], players[i] })
	for i, p := range players {
		state.Players[i] = p
	}
	state.Teams[0] = [2]int{0, 2}
	state.Teams[1] = [2]int{1, 3}
	state.HakemSlot = r.Intn(NumSlots)
}

func dealInitial(state *GameState) {
	shuffled := deck.NewShuffledDeck()
	state.Stock = shuffled
	for slot := 0; slot < NumSlots; slot++ {
		hand, rest := draw(state.Stock, 5)
		state.Hands[slot] = hand
		state.Stock = rest
	}
}

func dealFinal(state *GameState) {
	for slot := 0; slot < NumSlots; slot++ {
		hand, rest := draw(state.Stock, 8)
		state.Hands[slot] = append(state.Hands[slot], hand...)
		state.Stock = rest
	}
	state.Stock = nil
}

func draw(stock []deck.Card, n int) (deck.Hand, []deck.Card) {
	hand := make(deck.Hand, n)
	copy(hand, stock[:n])
	return hand, stock[n:]
}

// SelectHokm applies the hakem's trump choice.
func SelectHokm(state GameState, slot int, suitInput string) (GameState, []Event, error) {
	if state.Phase != PhaseWaitingForHokm {
		return invalidAction(ReasonWrongPhase)
	}
	if slot != state.HakemSlot {
		return invalidAction(ReasonNotHakem)
	}
	suit, err := deck.ParseSuit(suitInput)
	if err != nil {
		return invalidAction(ReasonBadSuit)
	}

	next := state.Clone()
	next.TrumpSuit = suit
	next.TrumpKnown = true
	next.Phase = PhaseFinalDeal

	events := []Event{{
		Kind:    EventHokmSelected,
		Target:  broadcastTo(),
		Payload: HokmSelectedPayload{Suit: suit},
	}}

	dealFinal(&next)
	for slot := 0; slot < NumSlots; slot++ {
		events = append(events, Event{
			Kind:    EventFinalDeal,
			Target:  privateTo(slot),
			Payload: FinalDealPayload{Hand: next.Hands[slot].Sorted()},
		})
	}

	next.Phase = PhaseGameplay
	next.TurnSlot = next.HakemSlot
	events = append(events, Event{
		Kind:    EventTurnStart,
		Target:  broadcastTo(),
		Payload: TurnStartPayload{TurnSlot: next.TurnSlot},
	})

	return next, events, nil
}

// PlayCard applies a play_card command, resolving the trick (and the
// round, and the game) if this is the fourth card.
func PlayCard(state GameState, slot int, c deck.Card) (GameState, []Event, error) {
	if state.Phase != PhaseGameplay {
		return invalidAction(ReasonWrongPhase)
	}
	hand := state.Hands[slot]
	if !hand.Contains(c) {
		return invalidAction(ReasonNotInHand)
	}
	if slot != state.TurnSlot {
		return invalidAction(ReasonNotYourTurn)
	}
	if !state.ConnectedSlots[slot] {
		return invalidAction(ReasonDisconnected)
	}
	if state.LedSuitKnown && hand.HasSuit(state.LedSuit) && c.Suit() != state.LedSuit {
		return invalidAction(ReasonMustFollowSuit)
	}

	next := state.Clone()
	next.Hands[slot] = next.Hands[slot].Without(c)
	next.CurrentTrick = append(next.CurrentTrick, PlayedCard{Slot: slot, Card: c})
	if !next.LedSuitKnown {
		next.LedSuitKnown = true
		next.LedSuit = c.Suit()
	}
	next.TurnSlot = nextSlotClockwise(slot)

	events := []Event{{
		Kind:    EventCardPlayed,
		Target:  broadcastTo(),
		Payload: CardPlayedPayload{Slot: slot, Card: c},
	}}

	if len(next.CurrentTrick) < NumSlots {
		led := next.LedSuit
		events = append(events, Event{
			Kind:    EventTurnStart,
			Target:  broadcastTo(),
			Payload: TurnStartPayload{TurnSlot: next.TurnSlot, LedSuit: &led},
		})
		return next, events, nil
	}

	return resolveTrick(next, events)
}

func nextSlotClockwise(slot int) int {
	return (slot + 1) % NumSlots
}

// resolveTrick is called once current_trick holds four cards. A defensive
// guard catches misuse (this should be unreachable via PlayCard since it
// only calls resolveTrick right after appending the fourth card).
func resolveTrick(state GameState, events []Event) (GameState, []Event, error) {
	if len(state.CurrentTrick) == 0 {
		return invalidAction(ReasonTrickUnderflow)
	}

	winnerSlot := trickWinner(state.CurrentTrick, state.TrumpSuit)

	next := state.Clone()
	trick := append([]PlayedCard(nil), next.CurrentTrick...)
	next.CollectedTricks = append(next.CollectedTricks, trick)
	next.CurrentTrick = nil
	next.LedSuitKnown = false
	next.TurnSlot = winnerSlot
	next.TricksWon[winnerSlot]++
	next.TrickNumber++

	events = append(events, Event{
		Kind:    EventTrickComplete,
		Target:  broadcastTo(),
		Payload: TrickCompletePayload{WinnerSlot: winnerSlot, Trick: trick},
	})

	team0Tricks := next.TricksWon[0] + next.TricksWon[2]
	team1Tricks := next.TricksWon[1] + next.TricksWon[3]
	roundOver := team0Tricks >= TricksToWinHand || team1Tricks >= TricksToWinHand || next.TrickNumber == TricksPerRound

	if !roundOver {
		events = append(events, Event{
			Kind:    EventTurnStart,
			Target:  broadcastTo(),
			Payload: TurnStartPayload{TurnSlot: next.TurnSlot},
		})
		return next, events, nil
	}

	winnerTeam := 0
	if team1Tricks > team0Tricks {
		winnerTeam = 1
	}
	next.RoundScores[winnerTeam]++

	events = append(events, Event{
		Kind:   EventRoundComplete,
		Target: broadcastTo(),
		Payload: RoundCompletePayload{
			WinnerTeam:  winnerTeam,
			RoundScores: next.RoundScores,
		},
	})

	if next.RoundScores[winnerTeam] == RoundsToWinGame {
		next.Phase = PhaseGameComplete
		events = append(events, Event{
			Kind:   EventGameComplete,
			Target: broadcastTo(),
			Payload: GameCompletePayload{
				WinnerTeam:  winnerTeam,
				RoundScores: next.RoundScores,
			},
		})
		return next, events, nil
	}

	startNewRound(&next, winnerTeam)
	next.RoundNumber++
	next.Phase = PhaseWaitingForHokm
	for slot := 0; slot < NumSlots; slot++ {
		events = append(events, Event{
			Kind:    EventInitialDeal,
			Target:  privateTo(slot),
			Payload: InitialDealPayload{Hand: next.Hands[slot].Sorted()},
		})
	}
	events = append(events, Event{
		Kind:    EventHokmChoiceRequired,
		Target:  privateTo(next.HakemSlot),
		Payload: HokmChoiceRequiredPayload{},
	})

	return next, events, nil
}

// startNewRound resets per-round state and re-deals the initial 5 cards.
// The new hakem is the player on the winning team with the most tricks
// this round, ties broken by lowest slot index.
func startNewRound(state *GameState, winnerTeam int) {
	state.HakemSlot = pickNextHakem(state, winnerTeam)
	state.TrumpKnown = false
	state.TrumpSuit = 0
	state.TricksWon = [NumSlots]int{}
	state.TrickNumber = 0
	state.CollectedTricks = nil
	state.CurrentTrick = nil
	state.LedSuitKnown = false
	state.Phase = PhaseInitialDeal
	dealInitial(state)
}

func pickNextHakem(state *GameState, winnerTeam int) int {
	slots := []int{state.Teams[winnerTeam][0], state.Teams[winnerTeam][1]}
	sort.Ints(slots)
	best := slots[0]
	for _, slot := range slots[1:] {
		if state.TricksWon[slot] > state.TricksWon[best] {
			best = slot
		}
	}
	return best
}

// trickWinner: the highest trump wins if any trump was played,
// otherwise the highest card of the led suit; any other suit cannot
// win.
func trickWinner(trick []PlayedCard, trump deck.Suit) int {
	var best *PlayedCard
	for i := range trick {
		pc := trick[i]
		if pc.Card.Suit() != trump {
			continue
		}
		if best == nil || pc.Card.Rank() > best.Card.Rank() {
			best = &trick[i]
		}
	}
	if best != nil {
		return best.Slot
	}

	led := trick[0].Card.Suit()
	for i := range trick {
		pc := trick[i]
		if pc.Card.Suit() != led {
			continue
		}
		if best == nil || pc.Card.Rank() > best.Card.Rank() {
			best = &trick[i]
		}
	}
	return best.Slot
}
