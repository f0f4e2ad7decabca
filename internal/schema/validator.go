// Package schema validates inbound client messages before they reach a
// reading session.
package schema

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"consent-reading-service/internal/models"
)

// MaxFragmentRunes bounds the text of a single transcript fragment.
const MaxFragmentRunes = 2000

// ErrInvalidMessage wraps every validation failure.
var ErrInvalidMessage = errors.New("invalid client message")

// Validator checks client messages against the gateway protocol.
type Validator struct {
	maxFragmentRunes int
}

// New returns a Validator with default bounds.
func New() *Validator {
	return &Validator{maxFragmentRunes: MaxFragmentRunes}
}

// Validate returns nil if msg is well formed.
func (v *Validator) Validate(msg models.ClientMessage) error {
	switch msg.Type {
	case models.ClientStart, models.ClientEnded, models.ClientRelisten, models.ClientStop:
		return nil
	case models.ClientFragment:
		if !utf8.ValidString(msg.Text) {
			return fmt.Errorf("%w: fragment text is not valid UTF-8", ErrInvalidMessage)
		}
		if n := utf8.RuneCountInString(msg.Text); n > v.maxFragmentRunes {
			return fmt.Errorf("%w: fragment text too long (%d > %d)", ErrInvalidMessage, n, v.maxFragmentRunes)
		}
		return nil
	case models.ClientError:
		if msg.Code == "" {
			return fmt.Errorf("%w: error message needs a code", ErrInvalidMessage)
		}
		return nil
	case "":
		return fmt.Errorf("%w: missing type", ErrInvalidMessage)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, msg.Type)
	}
}
