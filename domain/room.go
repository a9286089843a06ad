package domain

import (
	"chat-relay/errors"
	"fmt"
	"strings"
)

// RoomKey identifies a conversation: the public room or one private pair.
type RoomKey string

const (
	PublicRoom RoomKey = "public"

	// roomSeparator joins the two identities of a private room.
	// ValidateIdentity rejects it so a pair key can always be split back.
	roomSeparator = ":"
)

// ResolveRoomKey derives the room a message belongs to.
// Public messages always land in PublicRoom whatever sender and target say.
// Private messages land in the pair room, which is identical for both directions.
// A private message to oneself is a single-party room such as "alice:alice".
func ResolveRoomKey(sender, target string, isPrivate bool) (RoomKey, error) {
	if !isPrivate {
		return PublicRoom, nil
	}
	if target == "" {
		return "", fmt.Errorf("%w: target is required for a private message", errors.ErrInvalidTarget)
	}
	if sender == "" {
		return "", fmt.Errorf("%w: sender is required for a private message", errors.ErrInvalidTarget)
	}
	return PairRoomKey(sender, target), nil
}

// PairRoomKey returns the private room of user1 and user2, sorted lexicographically.
func PairRoomKey(user1, user2 string) RoomKey {
	if user2 < user1 {
		user1, user2 = user2, user1
	}
	return RoomKey(user1 + roomSeparator + user2)
}

// ParseRoomKey validates a raw room key received from a client.
func ParseRoomKey(raw string) (RoomKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == string(PublicRoom) {
		return PublicRoom, nil
	}
	first, second, ok := strings.Cut(raw, roomSeparator)
	if !ok || first == "" || second == "" || strings.Contains(second, roomSeparator) {
		return "", fmt.Errorf("%w: %q", errors.ErrUnknownRoom, raw)
	}
	key := PairRoomKey(first, second)
	if string(key) != raw {
		return "", fmt.Errorf("%w: %q is not in canonical order", errors.ErrUnknownRoom, raw)
	}
	return key, nil
}

func (k RoomKey) IsPublic() bool {
	return k == PublicRoom
}

// Participants returns the identities of a private room, nil for the public room.
func (k RoomKey) Participants() []string {
	if k.IsPublic() {
		return nil
	}
	first, second, ok := strings.Cut(string(k), roomSeparator)
	if !ok {
		return nil
	}
	if first == second {
		return []string{first}
	}
	return []string{first, second}
}

func (k RoomKey) String() string {
	return string(k)
}
