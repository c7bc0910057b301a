package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownEventKind = errors.New("unknown event kind")
	ErrMalformedEvent   = errors.New("malformed event")
)

// FlexibleID accepts both string and numeric JSON ids. The backend serialises
// record ids as numbers in socket payloads and as strings in JSON:API documents.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == "" {
		*id = ""
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = FlexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = FlexibleID(n.String())
	return nil
}

// WireMessage is the message payload shared by socket events and REST responses
type WireMessage struct {
	ID          FlexibleID `json:"id"`
	Role        Role       `json:"role"`
	Content     string     `json:"content"`
	CreatedAt   string     `json:"created_at"`
	ClientToken string     `json:"client_token,omitempty"`
}

// ToMessage converts the payload into a Message. Unparseable timestamps become zero.
func (w WireMessage) ToMessage() Message {
	return Message{
		ID:          string(w.ID),
		Role:        w.Role,
		Content:     w.Content,
		Timestamp:   ParseTimestamp(w.CreatedAt),
		ClientToken: w.ClientToken,
	}
}

// ParseTimestamp parses the backend's RFC 3339 timestamps
func ParseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

type wireEvent struct {
	Type      EventKind    `json:"type"`
	Typing    *bool        `json:"typing"`
	MessageID FlexibleID   `json:"message_id"`
	Delta     *string      `json:"delta"`
	Message   *WireMessage `json:"message"`
}

// DecodeEvent turns a socket payload into a typed Event.
// Unknown kinds return ErrUnknownEventKind and incomplete payloads ErrMalformedEvent;
// callers are expected to drop both and keep consuming.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch w.Type {
	case KindTypingIndicator:
		if w.Typing == nil {
			return nil, fmt.Errorf("%w: typing_indicator without typing flag", ErrMalformedEvent)
		}
		return TypingIndicator{Typing: *w.Typing}, nil

	case KindAssistantPart:
		if w.MessageID == "" || w.Delta == nil {
			return nil, fmt.Errorf("%w: assistant_part without message_id or delta", ErrMalformedEvent)
		}
		return ContentDelta{MessageID: string(w.MessageID), Delta: *w.Delta}, nil

	case KindAssistantComplete:
		if w.Message == nil || w.Message.ID == "" {
			return nil, fmt.Errorf("%w: assistant_complete without message.id", ErrMalformedEvent)
		}
		return MessageFinalized{Message: w.Message.ToMessage()}, nil

	case KindMessageCreated:
		if w.Message == nil || w.Message.ID == "" {
			return nil, fmt.Errorf("%w: message_created without message.id", ErrMalformedEvent)
		}
		return MessageCreated{Message: w.Message.ToMessage()}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventKind, w.Type)
	}
}
