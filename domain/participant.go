// Package domain contains core concepts of the chat relay.
// This file defines identities and the presence list entries.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"chat-relay/errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// MaxIdentityLength bounds the display name a client may claim.
const MaxIdentityLength = 32

// Presence is one entry of the presence list broadcast to every session.
type Presence struct {
	Identity string    `json:"identity"`
	JoinedAt time.Time `json:"joinedAt"`
}

type identityRequest struct {
	Name string `validate:"required,max=32,excludesall=:"`
}

// ValidateIdentity rejects names that could not be addressed or would break room keys.
func ValidateIdentity(name string) error {
	if name != strings.TrimSpace(name) {
		return fmt.Errorf("%w: %q has surrounding spaces", errors.ErrInvalidIdentity, name)
	}
	if err := validate.Struct(identityRequest{Name: name}); err != nil {
		return fmt.Errorf("%w: %q: %v", errors.ErrInvalidIdentity, name, err)
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: %q contains control characters", errors.ErrInvalidIdentity, name)
	}
	return nil
}
