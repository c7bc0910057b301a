package models

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DeliveryState tracks an optimistic message on its way to the backend.
// Messages this client did not originate carry DeliveryNone.
type DeliveryState string

const (
	DeliveryNone    DeliveryState = ""
	DeliveryPending DeliveryState = "pending"
	DeliverySent    DeliveryState = "sent"
	DeliveryFailed  DeliveryState = "failed"
)

// TempIDPrefix marks ids generated locally before the backend confirms a message
const TempIDPrefix = "temp-"

// Message is a single entry of a conversation thread
type Message struct {
	ID          string        `json:"id"`
	Role        Role          `json:"role"`
	Content     string        `json:"content"`
	Timestamp   time.Time     `json:"timestamp"`
	ClientToken string        `json:"client_token,omitempty"`
	Delivery    DeliveryState `json:"delivery,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// IsTemporary reports whether the message still carries a client-generated id
func (m Message) IsTemporary() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// NewTempID returns a temporary id of the form temp-<unix millis>
func NewTempID(now time.Time) string {
	return fmt.Sprintf("%s%d", TempIDPrefix, now.UnixMilli())
}
