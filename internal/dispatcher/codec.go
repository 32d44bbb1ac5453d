package dispatcher

import (
	"fmt"

	"hokm-server/internal/engine"
	"hokm-server/internal/wire"
)

// encodeEvent renders one engine event into a ready-to-write wire
// frame.
func encodeEvent(ev engine.Event) ([]byte, error) {
	switch p := ev.Payload.(type) {
	case engine.RoomUpdatePayload:
		return wire.EncodeOutbound(wire.TypeRoomUpdate, wire.RoomUpdatePayload{
			ConnectedPlayers: p.ConnectedPlayers,
			Phase:            p.Phase.String(),
		})

	case engine.TeamAssignmentPayload:
		return wire.EncodeOutbound(wire.TypeTeamAssignment, wire.TeamAssignmentPayload{
			Teams:   p.Teams,
			Players: p.Players,
			Hakem:   p.Hakem,
		})

	case engine.InitialDealPayload:
		return wire.EncodeOutbound(wire.TypeInitialDeal, wire.InitialDealPayload{
			Hand: wire.HandToWire(p.Hand),
		})

	case engine.HokmChoiceRequiredPayload:
		return wire.EncodeOutbound(wire.TypeHokmChoiceRequired, wire.HokmChoiceRequiredPayload{})

	case engine.HokmSelectedPayload:
		return wire.EncodeOutbound(wire.TypeHokmSelected, wire.HokmSelectedPayload{
			Suit: p.Suit.String(),
		})

	case engine.FinalDealPayload:
		return wire.EncodeOutbound(wire.TypeFinalDeal, wire.FinalDealPayload{
			Hand: wire.HandToWire(p.Hand),
		})

	case engine.TurnStartPayload:
		out := wire.TurnStartPayload{TurnSlot: p.TurnSlot}
		if p.LedSuit != nil {
			led := p.LedSuit.String()
			out.LedSuit = &led
		}
		return wire.EncodeOutbound(wire.TypeTurnStart, out)

	case engine.CardPlayedPayload:
		return wire.EncodeOutbound(wire.TypeCardPlayed, wire.CardPlayedPayload{
			Slot: p.Slot,
			Card: p.Card.String(),
		})

	case engine.TrickCompletePayload:
		return wire.EncodeOutbound(wire.TypeTrickComplete, wire.TrickCompletePayload{
			WinnerSlot: p.WinnerSlot,
			Trick:      playedToWire(p.Trick),
		})

	case engine.RoundCompletePayload:
		return wire.EncodeOutbound(wire.TypeRoundComplete, wire.RoundCompletePayload{
			WinnerTeam:  p.WinnerTeam,
			RoundScores: p.RoundScores,
		})

	case engine.GameCompletePayload:
		return wire.EncodeOutbound(wire.TypeGameComplete, wire.GameCompletePayload{
			WinnerTeam:  p.WinnerTeam,
			RoundScores: p.RoundScores,
		})

	case engine.GameCancelledPayload:
		return wire.EncodeOutbound(wire.TypeGameCancelled, wire.GameCancelledPayload{
			Reason: p.Reason,
		})

	case engine.PlayerDisconnectedPayload:
		return wire.EncodeOutbound(wire.TypePlayerDisconnected, wire.PlayerDisconnectedPayload{
			Slot: p.Slot,
		})

	case engine.PlayerReconnectedPayload:
		return wire.EncodeOutbound(wire.TypePlayerReconnected, wire.PlayerReconnectedPayload{
			Slot: p.Slot,
		})

	case engine.PlayerView:
		return wire.EncodeOutbound(wire.TypeGameState, viewToWire(p))

	default:
		return nil, fmt.Errorf("no wire mapping for event %s (%T)", ev.Kind, ev.Payload)
	}
}

func playedToWire(trick []engine.PlayedCard) []wire.PlayedCardWire {
	out := make([]wire.PlayedCardWire, len(trick))
	for i, pc := range trick {
		out[i] = wire.PlayedCardWire{Slot: pc.Slot, Card: pc.Card.String()}
	}
	return out
}

func viewToWire(v engine.PlayerView) wire.ReconnectSnapshotPayload {
	out := wire.ReconnectSnapshotPayload{
		Phase:        v.Phase.String(),
		Teams:        v.Teams,
		Hakem:        v.HakemSlot,
		Hand:         wire.HandToWire(v.Hand),
		TurnSlot:     v.TurnSlot,
		CurrentTrick: playedToWire(v.CurrentTrick),
		RoundScores:  v.RoundScores,
		RoundNumber:  v.RoundNumber,
		TrickNumber:  v.TrickNumber,
	}
	if v.TrumpKnown {
		trump := v.TrumpSuit.String()
		out.TrumpSuit = &trump
	}
	if v.LedSuitKnown {
		led := v.LedSuit.String()
		out.LedSuit = &led
	}
	return out
}
