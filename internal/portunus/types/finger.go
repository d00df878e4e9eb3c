package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFinger is returned by ParseFinger for any token outside the
// ten canonical finger identifiers.
var ErrInvalidFinger = errors.New("invalid finger type")

// FingerType identifies one of the ten fingers a template can be enrolled
// for. The zero value is not a valid finger.
type FingerType uint8

const (
	FingerUnknown FingerType = iota
	ThumbRight
	IndexRight
	MiddleRight
	RingRight
	PinkyRight
	ThumbLeft
	IndexLeft
	MiddleLeft
	RingLeft
	PinkyLeft
)

var fingerTokens = [...]string{
	FingerUnknown: "",
	ThumbRight:    "thumb_right",
	IndexRight:    "index_right",
	MiddleRight:   "middle_right",
	RingRight:     "ring_right",
	PinkyRight:    "pinky_right",
	ThumbLeft:     "thumb_left",
	IndexLeft:     "index_left",
	MiddleLeft:    "middle_left",
	RingLeft:      "ring_left",
	PinkyLeft:     "pinky_left",
}

// AllFingers returns the valid fingers in canonical order.
func AllFingers() []FingerType {
	out := make([]FingerType, 0, len(fingerTokens)-1)
	for f := ThumbRight; f <= PinkyLeft; f++ {
		out = append(out, f)
	}
	return out
}

// FingerTokens returns the wire tokens of all valid fingers.
func FingerTokens() []string {
	return append([]string(nil), fingerTokens[1:]...)
}

// ParseFinger maps a wire token such as "index_right" to its FingerType.
// Matching ignores surrounding whitespace and case. The returned error wraps
// ErrInvalidFinger and lists every valid token.
func ParseFinger(s string) (FingerType, error) {
	tok := strings.ToLower(strings.TrimSpace(s))
	for f := ThumbRight; f <= PinkyLeft; f++ {
		if fingerTokens[f] == tok {
			return f, nil
		}
	}
	return FingerUnknown, fmt.Errorf("%w %q: valid options: %s",
		ErrInvalidFinger, s, strings.Join(FingerTokens(), ", "))
}

func (f FingerType) Valid() bool {
	return f >= ThumbRight && f <= PinkyLeft
}

func (f FingerType) String() string {
	if !f.Valid() {
		return fmt.Sprintf("finger(%d)", uint8(f))
	}
	return fingerTokens[f]
}

func (f FingerType) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFinger, uint8(f))
	}
	return []byte(fingerTokens[f]), nil
}

func (f *FingerType) UnmarshalText(b []byte) error {
	v, err := ParseFinger(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}
