package chat

import (
	"context"

	"github.com/asia-ai/asia-chat/internal/domain/chat/models"
)

// Transport opens live event subscriptions for conversations
type Transport interface {
	// Subscribe starts delivering events for one conversation until Close is called
	Subscribe(ctx context.Context, conversationID string) (Subscription, error)
}

// Subscription is a single long-lived conversation subscription.
// Events is closed once the subscription ends, either through Close or
// because the transport gave up on the connection.
type Subscription interface {
	Events() <-chan models.Event
	Close() error
}

// Persister submits a new message to the backend. The returned message is nil
// when the backend accepts the message without echoing it back.
type Persister interface {
	SendMessage(ctx context.Context, conversationID, content, clientToken string) (*models.Message, error)
}

// PersisterFunc adapts a function to the Persister interface
type PersisterFunc func(ctx context.Context, conversationID, content, clientToken string) (*models.Message, error)

func (f PersisterFunc) SendMessage(ctx context.Context, conversationID, content, clientToken string) (*models.Message, error) {
	return f(ctx, conversationID, content, clientToken)
}

// HistoryLoader supplies the already-persisted messages of a conversation, oldest first
type HistoryLoader interface {
	History(ctx context.Context, conversationID string) ([]models.Message, error)
}

// HistoryLoaderFunc adapts a function to the HistoryLoader interface
type HistoryLoaderFunc func(ctx context.Context, conversationID string) ([]models.Message, error)

func (f HistoryLoaderFunc) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	return f(ctx, conversationID)
}
