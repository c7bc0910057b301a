package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asia-ai/asia-chat/internal/domain/chat/models"
	"github.com/google/uuid"
)

var (
	ErrEmptyContent      = errors.New("message content is empty")
	ErrUnknownMessage    = errors.New("message not found")
	ErrNotRetryable      = errors.New("message has not failed delivery")
	ErrNotDiscardable    = errors.New("message is already confirmed by the server")
	ErrNoConversationID  = errors.New("conversation id is required")
	ErrNotInitialized    = errors.New("conversation session not initialized")
	ErrSessionClosed     = errors.New("conversation session closed")
	ErrPersisterRequired = errors.New("no persister configured")
)

// Snapshot is the visible state of one conversation
type Snapshot struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []models.Message `json:"messages"`
	Typing         bool             `json:"typing"`
}

// Reconciler keeps the ordered, de-duplicated message list of one conversation.
// It is not safe for concurrent use; Session serialises every call.
type Reconciler struct {
	conversationID string
	messages       []models.Message
	typing         bool

	now      func() time.Time
	newToken func() string
}

func NewReconciler() *Reconciler {
	return &Reconciler{
		now:      time.Now,
		newToken: uuid.NewString,
	}
}

// Initialize reseeds the list and reports whether the conversation identity changed
func (r *Reconciler) Initialize(conversationID string, seed []models.Message) bool {
	switched := r.conversationID != conversationID
	r.conversationID = conversationID
	r.messages = append(make([]models.Message, 0, len(seed)), seed...)
	r.typing = false
	return switched
}

func (r *Reconciler) ConversationID() string {
	return r.conversationID
}

func (r *Reconciler) IsTyping() bool {
	return r.typing
}

// Messages returns a copy of the current list in display order
func (r *Reconciler) Messages() []models.Message {
	return append(make([]models.Message, 0, len(r.messages)), r.messages...)
}

func (r *Reconciler) Snapshot() Snapshot {
	return Snapshot{
		ConversationID: r.conversationID,
		Messages:       r.Messages(),
		Typing:         r.typing,
	}
}

// AppendOptimistic adds a pending user message with a temporary id
func (r *Reconciler) AppendOptimistic(content string) (models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return models.Message{}, ErrEmptyContent
	}

	now := r.now()
	msg := models.Message{
		ID:          r.uniqueTempID(now),
		Role:        models.RoleUser,
		Content:     content,
		Timestamp:   now,
		ClientToken: r.newToken(),
		Delivery:    models.DeliveryPending,
	}
	r.messages = append(r.messages, msg)
	return msg, nil
}

// Apply folds one inbound event into the list and reports whether anything changed
func (r *Reconciler) Apply(ev models.Event) bool {
	switch e := ev.(type) {
	case models.TypingIndicator:
		changed := r.typing != e.Typing
		r.typing = e.Typing
		return changed

	case models.ContentDelta:
		changed := r.clearTyping()
		i := r.indexOf(e.MessageID)
		if i < 0 || e.Delta == "" {
			return changed
		}
		r.messages[i].Content += e.Delta
		return true

	case models.MessageFinalized:
		if e.Message.ID == "" {
			return false
		}
		changed := r.clearTyping()
		return r.upsert(e.Message) || changed

	case models.MessageCreated:
		if e.Message.ID == "" || r.indexOf(e.Message.ID) >= 0 {
			return false
		}
		if i := r.indexOfToken(e.Message.ClientToken); i >= 0 {
			r.messages[i] = confirm(r.messages[i], e.Message)
			return true
		}
		r.messages = append(r.messages, e.Message)
		return true
	}
	return false
}

// MarkSent records a successful submission. confirmed is the backend's copy, if any.
func (r *Reconciler) MarkSent(clientToken string, confirmed *models.Message) bool {
	i := r.indexOfToken(clientToken)
	if i < 0 {
		return false
	}

	if confirmed == nil || confirmed.ID == "" {
		if r.messages[i].Delivery == models.DeliverySent {
			return false
		}
		r.messages[i].Delivery = models.DeliverySent
		r.messages[i].Error = ""
		return true
	}

	incoming := *confirmed
	if incoming.ClientToken == "" {
		incoming.ClientToken = clientToken
	}

	// An echo without a client token may already have appended the server copy.
	if j := r.indexOf(incoming.ID); j >= 0 && j != i {
		r.messages[i] = confirm(r.messages[i], r.messages[j])
		r.removeAt(j)
		return true
	}

	merged := confirm(r.messages[i], incoming)
	if sameMessage(merged, r.messages[i]) {
		return false
	}
	r.messages[i] = merged
	return true
}

// MarkFailed flags an optimistic message whose submission failed
func (r *Reconciler) MarkFailed(clientToken string, cause error) bool {
	i := r.indexOfToken(clientToken)
	if i < 0 {
		return false
	}

	// The server already confirmed it over the event stream
	if !r.messages[i].IsTemporary() {
		if r.messages[i].Delivery == models.DeliverySent {
			return false
		}
		r.messages[i].Delivery = models.DeliverySent
		r.messages[i].Error = ""
		return true
	}

	r.messages[i].Delivery = models.DeliveryFailed
	if cause != nil {
		r.messages[i].Error = cause.Error()
	}
	return true
}

// Retry moves a failed message back to pending and returns it for resubmission
func (r *Reconciler) Retry(messageID string) (models.Message, error) {
	i := r.indexOf(messageID)
	if i < 0 {
		return models.Message{}, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	if r.messages[i].Delivery != models.DeliveryFailed {
		return models.Message{}, ErrNotRetryable
	}
	r.messages[i].Delivery = models.DeliveryPending
	r.messages[i].Error = ""
	return r.messages[i], nil
}

// Discard removes a pending or failed optimistic message. Messages the server
// accepted stay, even when it has not echoed them yet.
func (r *Reconciler) Discard(messageID string) error {
	i := r.indexOf(messageID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	if !r.messages[i].IsTemporary() || r.messages[i].Delivery == models.DeliverySent {
		return ErrNotDiscardable
	}
	r.removeAt(i)
	return nil
}

func (r *Reconciler) upsert(incoming models.Message) bool {
	if i := r.indexOf(incoming.ID); i >= 0 {
		merged := confirm(r.messages[i], incoming)
		changed := !sameMessage(merged, r.messages[i])
		r.messages[i] = merged
		return r.dropTemporaryTwin(i, merged.ClientToken) || changed
	}
	if i := r.indexOfToken(incoming.ClientToken); i >= 0 {
		r.messages[i] = confirm(r.messages[i], incoming)
		return true
	}
	r.messages = append(r.messages, incoming)
	return true
}

// dropTemporaryTwin removes an optimistic entry that shares a token with the entry at keep
func (r *Reconciler) dropTemporaryTwin(keep int, clientToken string) bool {
	if clientToken == "" {
		return false
	}
	for j := range r.messages {
		if j != keep && r.messages[j].ClientToken == clientToken && r.messages[j].IsTemporary() {
			if r.messages[j].Delivery != models.DeliveryNone {
				r.messages[keep].Delivery = models.DeliverySent
				r.messages[keep].Error = ""
			}
			r.removeAt(j)
			return true
		}
	}
	return false
}

func (r *Reconciler) clearTyping() bool {
	changed := r.typing
	r.typing = false
	return changed
}

func (r *Reconciler) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range r.messages {
		if r.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Reconciler) indexOfToken(clientToken string) int {
	if clientToken == "" {
		return -1
	}
	for i := range r.messages {
		if r.messages[i].ClientToken == clientToken {
			return i
		}
	}
	return -1
}

func (r *Reconciler) removeAt(i int) {
	r.messages = append(r.messages[:i], r.messages[i+1:]...)
}

func (r *Reconciler) uniqueTempID(now time.Time) string {
	base := models.NewTempID(now)
	id := base
	for n := 1; r.indexOf(id) >= 0; n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	return id
}

// confirm merges a server snapshot over a local entry. Server fields win;
// locally-known fields fill the gaps and local delivery turns into sent.
func confirm(existing, incoming models.Message) models.Message {
	merged := incoming
	if merged.Content == "" {
		merged.Content = existing.Content
	}
	if merged.Role == "" {
		merged.Role = existing.Role
	}
	if merged.Timestamp.IsZero() {
		merged.Timestamp = existing.Timestamp
	}
	if merged.ClientToken == "" {
		merged.ClientToken = existing.ClientToken
	}
	if existing.Delivery != models.DeliveryNone {
		merged.Delivery = models.DeliverySent
		merged.Error = ""
	}
	return merged
}

func sameMessage(a, b models.Message) bool {
	return a.ID == b.ID &&
		a.Role == b.Role &&
		a.Content == b.Content &&
		a.Timestamp.Equal(b.Timestamp) &&
		a.ClientToken == b.ClientToken &&
		a.Delivery == b.Delivery &&
		a.Error == b.Error
}
