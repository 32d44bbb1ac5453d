package deck

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/big"
	"math/rand"
	"sort"
)

// Hand is an ordered multiset of cards belonging to one slot. Ordering
// only matters for the StateStore's canonical (suit, rank) persisted
// form; gameplay treats it as a set.
type Hand []Card

// Sorted returns a copy ordered by (suit, rank), the canonical form the
// StateStore must round-trip exactly.
func (h Hand) Sorted() Hand {
	out := make(Hand, len(h))
	copy(out, h)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Suit() != out[j].Suit() {
			return out[i].Suit() < out[j].Suit()
		}
		return out[i].Rank() < out[j].Rank()
	})
	return out
}

// Contains reports whether the hand holds the given card.
func (h Hand) Contains(c Card) bool {
	for _, held := range h {
		if held == c {
			return true
		}
	}
	return false
}

// HasSuit reports whether any card in the hand is of suit s.
func (h Hand) HasSuit(s Suit) bool {
	for _, held := range h {
		if held.Suit() == s {
			return true
		}
	}
	return false
}

// Without returns a copy of the hand with one instance of c removed.
func (h Hand) Without(c Card) Hand {
	out := make(Hand, 0, len(h))
	removed := false
	for _, held := range h {
		if !removed && held == c {
			removed = true
			continue
		}
		out = append(out, held)
	}
	return out
}

// NewShuffledDeck returns the 52-card deck in a uniform random
// permutation. The permutation source is seeded from crypto/rand so
// the shuffle cannot be predicted from process start time or PID.
func NewShuffledDeck() []Card {
	d := FullDeck()
	r := rand.New(rand.NewSource(CryptoSeed()))
	r.Shuffle(len(d), func(i, j int) {
		d[i], d[j] = d[j], d[i]
	})
	return d
}

// CryptoSeed draws a fresh int64 seed from crypto/rand, for callers that
// need their own math/rand source seeded unpredictably (e.g. the engine's
// team/hakem draw).
func CryptoSeed() int64 {
	var seedBytes [8]byte
	if _, err := cryptorand.Read(seedBytes[:]); err != nil {
		// crypto/rand.Read on a supported platform does not fail in
		// practice; fall back to a big.Int draw to stay deterministic
		// about the failure mode rather than panicking mid-deal.
		n, _ := cryptorand.Int(cryptorand.Reader, big.NewInt(1<<62))
		return n.Int64()
	}
	return int64(binary.LittleEndian.Uint64(seedBytes[:]) & (1<<63 - 1))
}
