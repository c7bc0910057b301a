package models

// EventKind is the wire tag of an inbound conversation event
type EventKind string

const (
	KindTypingIndicator   EventKind = "typing_indicator"
	KindAssistantPart     EventKind = "assistant_part"
	KindAssistantComplete EventKind = "assistant_complete"
	KindMessageCreated    EventKind = "message_created"
)

// Event is the closed set of events a conversation stream can deliver.
// The unexported marker keeps implementations inside this package.
type Event interface {
	Kind() EventKind
	isEvent()
}

// TypingIndicator toggles the "assistant is typing" state
type TypingIndicator struct {
	Typing bool
}

// ContentDelta carries a streamed fragment for an existing message
type ContentDelta struct {
	MessageID string
	Delta     string
}

// MessageFinalized is the authoritative snapshot of a message
type MessageFinalized struct {
	Message Message
}

// MessageCreated announces a message this client did not originate
type MessageCreated struct {
	Message Message
}

func (TypingIndicator) Kind() EventKind  { return KindTypingIndicator }
func (ContentDelta) Kind() EventKind     { return KindAssistantPart }
func (MessageFinalized) Kind() EventKind { return KindAssistantComplete }
func (MessageCreated) Kind() EventKind   { return KindMessageCreated }

func (TypingIndicator) isEvent()  {}
func (ContentDelta) isEvent()     {}
func (MessageFinalized) isEvent() {}
func (MessageCreated) isEvent()   {}
