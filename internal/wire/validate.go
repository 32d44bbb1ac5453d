package wire

import "regexp"

// Field patterns. The dispatcher rejects a message before it ever
// reaches a RoomActor if a field fails its pattern.
var (
	roomCodePattern = regexp.MustCompile(`^[A-Z0-9_]{4,12}$`)
	suitPattern     = regexp.MustCompile(`(?i)^(hearts|diamonds|clubs|spades)$`)
	cardPattern     = regexp.MustCompile(`^(2|3|4|5|6|7|8|9|10|J|Q|K|A)_(hearts|diamonds|clubs|spades)$`)
)

// ValidRoomCode reports whether s is a well-formed room code.
func ValidRoomCode(s string) bool { return roomCodePattern.MatchString(s) }

// ValidSuit reports whether s is one of the four suit names, any case.
func ValidSuit(s string) bool { return suitPattern.MatchString(s) }

// ValidCard reports whether s is a well-formed "<rank>_<suit>" token.
func ValidCard(s string) bool { return cardPattern.MatchString(s) }
