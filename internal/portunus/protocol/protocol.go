// Package protocol implements the line-oriented sensor wire format:
//
//	TYPE:TEMPLATE:FINGER[:...]
//
// answered by a single "YES" or "NO" line.
package protocol

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Delimiter separates fields in a command frame.
const Delimiter = ":"

// MinFields is the smallest well-formed frame: type, template and finger.
const MinFields = 3

const (
	ReplyYes = "YES"
	ReplyNo  = "NO"
)

var ErrInvalidFormat = errors.New("invalid command format")

type CommandType string

const (
	CommandQuery   CommandType = "QUERY"
	CommandVerify  CommandType = "VERIFY"
	CommandTest    CommandType = "TEST"
	CommandUnknown CommandType = "UNKNOWN_COMMAND"
)

// Command is one decoded sensor frame.
type Command struct {
	Type CommandType
	// Token is the type field as received, upper-cased.
	Token      string
	Template   string
	Finger     string
	Extra      []string
	Fields     int
	Raw        string
	ReceivedAt time.Time
}

// IsQuery reports whether the command asks for a match.
func (c Command) IsQuery() bool {
	return c.Type == CommandQuery || c.Type == CommandVerify
}

// Validate reports ErrInvalidFormat for frames with fewer than MinFields
// fields. Decode does not apply it so that callers can tell an empty line
// ("nothing yet") from a short one ("broken input").
func (c Command) Validate() error {
	if c.Fields < MinFields {
		return fmt.Errorf("%w: expected TYPE:TEMPLATE:FINGER, got %d field(s)", ErrInvalidFormat, c.Fields)
	}
	return nil
}

// Decode parses one line. ok is false when the line is empty or blank.
func Decode(line string) (cmd Command, ok bool) {
	raw := strings.TrimSpace(line)
	if raw == "" {
		return Command{}, false
	}

	parts := strings.Split(raw, Delimiter)
	cmd = Command{
		Raw:        raw,
		Fields:     len(parts),
		Token:      strings.ToUpper(strings.TrimSpace(parts[0])),
		ReceivedAt: time.Now().UTC(),
	}
	switch CommandType(cmd.Token) {
	case CommandQuery, CommandVerify, CommandTest:
		cmd.Type = CommandType(cmd.Token)
	default:
		cmd.Type = CommandUnknown
	}
	if len(parts) > 1 {
		cmd.Template = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		cmd.Finger = strings.TrimSpace(parts[2])
	}
	if len(parts) > 3 {
		cmd.Extra = parts[3:]
	}
	return cmd, true
}

// Reply renders the newline-terminated answer for the sensor.
func Reply(granted bool) string {
	if granted {
		return ReplyYes + "\n"
	}
	return ReplyNo + "\n"
}
