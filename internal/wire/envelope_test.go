package wire

import "testing"

func TestDecodeEnvelopeRejectsOversizedMessage(t *testing.T) {
	raw := make([]byte, MaxMessageBytes+1)
	if _, err := DecodeEnvelope(raw); err != ErrMessageTooLarge {
		t.Fatalf("DecodeEnvelope oversized err = %v, want ErrMessageTooLarge", err)
	}
}

func TestDecodeEnvelopeRejectsMalformedJSON(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`{not json`)); err == nil {
		t.Fatalf("DecodeEnvelope malformed err = nil, want error")
	}
}

func TestEncodeOutboundRoundTrip(t *testing.T) {
	raw, err := EncodeOutbound(TypePong, PongPayload{})
	if err != nil {
		t.Fatalf("EncodeOutbound err: %v", err)
	}
	env, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope err: %v", err)
	}
	if env.Type != TypePong {
		t.Fatalf("envelope type = %s, want pong", env.Type)
	}
}

func TestValidRoomCode(t *testing.T) {
	cases := map[string]bool{
		"ABCD":         true,
		"AB12_CD":      true,
		"abcd":         false, // must be uppercase
		"AB":           false, // too short
		"TOOLONGROOMCODE123": false,
		"":             false,
	}
	for code, want := range cases {
		if got := ValidRoomCode(code); got != want {
			t.Errorf("ValidRoomCode(%q) = %v, want %v", code, got, want)
		}
	}
}

func TestValidSuitCaseInsensitive(t *testing.T) {
	for _, s := range []string{"hearts", "HEARTS", "Hearts", "spades", "clubs", "diamonds"} {
		if !ValidSuit(s) {
			t.Errorf("ValidSuit(%q) = false, want true", s)
		}
	}
	if ValidSuit("wands") {
		t.Errorf("ValidSuit(wands) = true, want false")
	}
}

func TestValidCard(t *testing.T) {
	for _, c := range []string{"K_spades", "10_hearts", "A_clubs", "2_diamonds"} {
		if !ValidCard(c) {
			t.Errorf("ValidCard(%q) = false, want true", c)
		}
	}
	for _, c := range []string{"K-spades", "1_hearts", "K_wands", ""} {
		if ValidCard(c) {
			t.Errorf("ValidCard(%q) = true, want false", c)
		}
	}
}
