// Package pubsub delivers conversation events through a watermill subscriber,
// Redis Streams in production and an in-memory channel in tests.
package pubsub

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	domain "github.com/asia-ai/asia-chat/internal/domain/chat"
	"github.com/asia-ai/asia-chat/internal/domain/chat/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const eventBuffer = 64

// TopicFor returns the topic carrying events of one conversation
func TopicFor(conversationID string) string {
	return "conversation." + conversationID
}

// Transport subscribes to per-conversation topics
type Transport struct {
	subscriber message.Subscriber
}

func NewTransport(subscriber message.Subscriber) *Transport {
	return &Transport{subscriber: subscriber}
}

func (t *Transport) Subscribe(ctx context.Context, conversationID string) (domain.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	topic := TopicFor(conversationID)

	messages, err := t.subscriber.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "subscribe to %s", topic)
	}

	s := &subscription{
		cancel: cancel,
		events: make(chan models.Event, eventBuffer),
		done:   make(chan struct{}),
	}
	go s.run(subCtx, conversationID, messages)
	return s, nil
}

// Close closes the underlying subscriber
func (t *Transport) Close() error {
	return t.subscriber.Close()
}

type subscription struct {
	cancel    context.CancelFunc
	events    chan models.Event
	done      chan struct{}
	closeOnce sync.Once
}

func (s *subscription) Events() <-chan models.Event {
	return s.events
}

func (s *subscription) Close() error {
	s.closeOnce.Do(s.cancel)
	<-s.done
	return nil
}

func (s *subscription) run(ctx context.Context, conversationID string, messages <-chan *message.Message) {
	defer close(s.done)
	defer close(s.events)

	logger := log.With().Str("component", "pubsub").Str("conversation_id", conversationID).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				logger.Debug().Msg("Subscriber channel closed")
				return
			}

			ev, err := models.DecodeEvent(msg.Payload)
			// Events are fan-out notifications; a bad payload is never worth redelivering.
			msg.Ack()
			if err != nil {
				logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping conversation event")
				continue
			}

			select {
			case s.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Publisher writes raw events onto conversation topics
type Publisher struct {
	publisher message.Publisher
}

func NewPublisher(publisher message.Publisher) *Publisher {
	return &Publisher{publisher: publisher}
}

// Publish validates payload as a conversation event and publishes it
func (p *Publisher) Publish(conversationID string, payload []byte) error {
	if _, err := models.DecodeEvent(payload); err != nil {
		return errors.Wrap(err, "refusing to publish")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.publisher.Publish(TopicFor(conversationID), msg); err != nil {
		return errors.Wrapf(err, "publish to %s", TopicFor(conversationID))
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.publisher.Close()
}
