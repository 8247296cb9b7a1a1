// Package protocol decodes the controller's "<channel>:<volume>" serial lines.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Delimiter separates the channel token from the volume token.
const Delimiter = ":"

var (
	ErrMalformedLine = errors.New("malformed line")
	ErrBadVolume     = errors.New("bad volume")
)

// Message is one decoded channel update. Volume is on the controller's 0-100
// scale and is not range checked.
type Message struct {
	Channel string
	Volume  float64
}

// Level converts Volume to the provider's linear scale.
func (m Message) Level() float32 {
	return float32(m.Volume / 100)
}

// Decode parses a single framed line.
//
// The line must contain exactly one delimiter. The channel token is kept
// verbatim; the volume token must parse as a float.
func Decode(line string) (Message, error) {
	fields := strings.Split(line, Delimiter)
	if len(fields) != 2 {
		return Message{}, fmt.Errorf("%w: %q has %d fields", ErrMalformedLine, line, len(fields))
	}

	volume, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %q: %v", ErrBadVolume, line, err)
	}
	return Message{Channel: fields[0], Volume: volume}, nil
}

// Encode formats a message the way the controller writes it, without framing.
func Encode(m Message) string {
	return m.Channel + Delimiter + strconv.FormatFloat(m.Volume, 'f', -1, 64)
}
