package domain

import (
	"chat-relay/errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

type Command interface {
	RoomKey() (RoomKey, error)
}

// PostMessageCommand is the intent of a client to send a message.
type PostMessageCommand struct {
	Sender    string
	Target    string
	Body      string
	IsPrivate bool
}

func (p PostMessageCommand) RoomKey() (RoomKey, error) {
	return ResolveRoomKey(p.Sender, p.Target, p.IsPrivate)
}

// Validate checks the command before it reaches the router.
// maxLength is expressed in runes, zero disables the check.
func (p PostMessageCommand) Validate(maxLength int) error {
	if err := ValidateIdentity(p.Sender); err != nil {
		return err
	}
	if strings.TrimSpace(p.Body) == "" {
		return errors.ErrEmptyBody
	}
	if maxLength > 0 && utf8.RuneCountInString(p.Body) > maxLength {
		return fmt.Errorf("%w: %d characters allowed", errors.ErrMessageTooLong, maxLength)
	}
	if p.IsPrivate {
		if p.Target == "" {
			return fmt.Errorf("%w: target is required for a private message", errors.ErrInvalidTarget)
		}
		if err := ValidateIdentity(p.Target); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrInvalidTarget, err)
		}
	}
	return nil
}
