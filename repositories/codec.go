package repositories

import (
	"chat-relay/domain"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the stored message record.
// They follow the protobuf wire format so the values stay readable by any protobuf decoder.
const (
	fieldID            protowire.Number = 1
	fieldBody          protowire.Number = 2
	fieldSender        protowire.Number = 3
	fieldTarget        protowire.Number = 4
	fieldIsPrivate     protowire.Number = 5
	fieldRoom          protowire.Number = 6
	fieldLang          protowire.Number = 7
	fieldCensoredWords protowire.Number = 8
	fieldCreatedAt     protowire.Number = 9
)

func encodeMessage(m domain.Message) []byte {
	var b []byte
	b = appendString(b, fieldID, m.ID.String())
	b = appendString(b, fieldBody, m.Body)
	b = appendString(b, fieldSender, m.Sender)
	b = appendString(b, fieldTarget, m.Target)
	if m.IsPrivate {
		b = protowire.AppendTag(b, fieldIsPrivate, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	b = appendString(b, fieldRoom, string(m.Room))
	b = appendString(b, fieldLang, m.Lang)
	for _, word := range m.CensoredWords {
		b = protowire.AppendTag(b, fieldCensoredWords, protowire.BytesType)
		b = protowire.AppendString(b, word)
	}
	b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.CreatedAt.UnixNano()))
	return b
}

func appendString(b []byte, num protowire.Number, value string) []byte {
	if value == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, value)
}

func decodeMessage(b []byte) (domain.Message, error) {
	var m domain.Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return domain.Message{}, fmt.Errorf("decode message tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && num != fieldIsPrivate && num != fieldCreatedAt:
			value, n := protowire.ConsumeString(b)
			if n < 0 {
				return domain.Message{}, fmt.Errorf("decode field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := setString(&m, num, value); err != nil {
				return domain.Message{}, err
			}
		case typ == protowire.VarintType && (num == fieldIsPrivate || num == fieldCreatedAt):
			value, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return domain.Message{}, fmt.Errorf("decode field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			if num == fieldIsPrivate {
				m.IsPrivate = value != 0
			} else {
				m.CreatedAt = time.Unix(0, int64(value)).UTC()
			}
		default:
			// Unknown field, skipped for forward compatibility
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return domain.Message{}, fmt.Errorf("skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return m, nil
}

func setString(m *domain.Message, num protowire.Number, value string) error {
	switch num {
	case fieldID:
		id, err := uuid.Parse(value)
		if err != nil {
			return fmt.Errorf("decode message id: %w", err)
		}
		m.ID = id
	case fieldBody:
		m.Body = value
	case fieldSender:
		m.Sender = value
	case fieldTarget:
		m.Target = value
	case fieldRoom:
		m.Room = domain.RoomKey(value)
	case fieldLang:
		m.Lang = value
	case fieldCensoredWords:
		m.CensoredWords = append(m.CensoredWords, value)
	}
	return nil
}
