package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/asia-ai/asia-chat/internal/domain/chat"
	"github.com/asia-ai/asia-chat/internal/domain/chat/models"
	"github.com/rs/zerolog/log"
)

// DefaultSendTimeout bounds a single persistence call
const DefaultSendTimeout = 15 * time.Second

// Status describes the health of a session's live event stream
type Status string

const (
	StatusLive    Status = "live"
	StatusOffline Status = "offline"
	StatusClosed  Status = "closed"
)

// Update is published after every state change of a session
type Update struct {
	Snapshot
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

type SessionOption func(*Session)

func WithSendTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

// WithUpdateHandler registers fn to receive every Update. fn runs on the
// session goroutine and must not block or call back into the session.
func WithUpdateHandler(fn func(Update)) SessionOption {
	return func(s *Session) {
		s.onUpdate = fn
	}
}

// Session owns one conversation view. A single goroutine serialises local
// commands, transport events and delivery results, so the Reconciler it
// drives never needs locking.
type Session struct {
	transport   domain.Transport
	persister   domain.Persister
	sendTimeout time.Duration
	onUpdate    func(Update)

	ctx       context.Context
	cancel    context.CancelFunc
	commands  chan func()
	done      chan struct{}
	closeOnce sync.Once
	inflight  sync.WaitGroup

	// owned by the loop goroutine
	reconciler  *Reconciler
	sub         domain.Subscription
	status      Status
	initialized bool
}

func NewSession(transport domain.Transport, persister domain.Persister, opts ...SessionOption) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		transport:   transport,
		persister:   persister,
		sendTimeout: DefaultSendTimeout,
		ctx:         ctx,
		cancel:      cancel,
		commands:    make(chan func()),
		done:        make(chan struct{}),
		reconciler:  NewReconciler(),
		status:      StatusOffline,
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.loop()
	return s
}

// Initialize opens conversationID seeded with seed. Reopening the current
// conversation only reseeds it; switching releases the previous subscription
// before the new one is acquired.
func (s *Session) Initialize(ctx context.Context, conversationID string, seed []models.Message) error {
	if conversationID == "" {
		return ErrNoConversationID
	}

	var err error
	if derr := s.do(ctx, func() {
		err = s.initialize(conversationID, seed)
	}); derr != nil {
		return derr
	}
	return err
}

// Send appends an optimistic message and submits it in the background.
// The returned message carries the temporary id and the client token.
func (s *Session) Send(ctx context.Context, content string) (models.Message, error) {
	var (
		msg models.Message
		err error
	)
	if derr := s.do(ctx, func() {
		if !s.initialized {
			err = ErrNotInitialized
			return
		}
		msg, err = s.reconciler.AppendOptimistic(content)
		if err != nil {
			return
		}
		s.publish("")
		s.submit(s.reconciler.ConversationID(), msg)
	}); derr != nil {
		return models.Message{}, derr
	}
	return msg, err
}

// Retry resubmits a failed message with its original client token
func (s *Session) Retry(ctx context.Context, messageID string) error {
	var err error
	if derr := s.do(ctx, func() {
		var msg models.Message
		msg, err = s.reconciler.Retry(messageID)
		if err != nil {
			return
		}
		s.publish("")
		s.submit(s.reconciler.ConversationID(), msg)
	}); derr != nil {
		return derr
	}
	return err
}

// Discard drops an optimistic message that was never confirmed
func (s *Session) Discard(ctx context.Context, messageID string) error {
	var err error
	if derr := s.do(ctx, func() {
		if err = s.reconciler.Discard(messageID); err == nil {
			s.publish("")
		}
	}); derr != nil {
		return derr
	}
	return err
}

// Current returns the latest state without waiting for a change
func (s *Session) Current(ctx context.Context) (Update, error) {
	var u Update
	if err := s.do(ctx, func() {
		u = s.update("")
	}); err != nil {
		return Update{}, err
	}
	return u, nil
}

// Done is closed once the session goroutine has stopped
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close releases the subscription and waits for in-flight sends to return.
// Sends still in flight run to completion, bounded by the send timeout.
func (s *Session) Close() error {
	s.closeOnce.Do(s.cancel)
	<-s.done
	s.inflight.Wait()
	return nil
}

func (s *Session) loop() {
	defer close(s.done)
	defer s.shutdown()

	for {
		var events <-chan models.Event
		if s.sub != nil {
			events = s.sub.Events()
		}

		select {
		case <-s.ctx.Done():
			return

		case fn := <-s.commands:
			fn()

		case ev, ok := <-events:
			if !ok {
				conversationID := s.reconciler.ConversationID()
				log.Warn().Str("conversation_id", conversationID).Msg("Conversation event stream closed")
				s.releaseSubscription()
				s.status = StatusOffline
				s.publish("live updates disconnected")
				continue
			}
			if s.reconciler.Apply(ev) {
				s.publish("")
			}
		}
	}
}

// do runs fn on the session goroutine and waits for it to finish
func (s *Session) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}

	select {
	case s.commands <- cmd:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// The loop runs cmd synchronously, so it cannot exit halfway through it.
	select {
	case <-finished:
		return nil
	case <-s.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrSessionClosed
		}
	}
}

func (s *Session) initialize(conversationID string, seed []models.Message) error {
	if s.reconciler.ConversationID() == conversationID && s.sub != nil {
		s.reconciler.Initialize(conversationID, seed)
		s.publish("")
		return nil
	}

	s.releaseSubscription()
	s.reconciler.Initialize(conversationID, seed)
	s.initialized = true

	logger := log.With().Str("conversation_id", conversationID).Logger()
	if s.transport == nil {
		s.status = StatusOffline
		s.publish("")
		return nil
	}

	sub, err := s.transport.Subscribe(s.ctx, conversationID)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to subscribe to conversation events")
		s.status = StatusOffline
		err = fmt.Errorf("subscribe to conversation %s: %w", conversationID, err)
		s.publish(err.Error())
		return err
	}

	logger.Debug().Msg("Subscribed to conversation events")
	s.sub = sub
	s.status = StatusLive
	s.publish("")
	return nil
}

func (s *Session) submit(conversationID string, msg models.Message) {
	if s.persister == nil {
		s.deliver(conversationID, msg.ClientToken, nil, ErrPersisterRequired)
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		// Independent of s.ctx so Close lets a submitted message finish.
		ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
		confirmed, err := s.persister.SendMessage(ctx, conversationID, msg.Content, msg.ClientToken)
		cancel()

		if derr := s.do(context.Background(), func() {
			s.deliver(conversationID, msg.ClientToken, confirmed, err)
		}); derr != nil && !errors.Is(derr, ErrSessionClosed) {
			log.Error().Err(derr).Str("conversation_id", conversationID).Msg("Failed to record delivery result")
		}
	}()
}

// deliver applies a persistence result. Results for a conversation that is
// no longer open are dropped.
func (s *Session) deliver(conversationID, clientToken string, confirmed *models.Message, err error) {
	if s.reconciler.ConversationID() != conversationID {
		log.Debug().
			Str("conversation_id", conversationID).
			Str("client_token", clientToken).
			Msg("Dropping delivery result for a closed conversation")
		return
	}

	if err != nil {
		log.Warn().Err(err).
			Str("conversation_id", conversationID).
			Str("client_token", clientToken).
			Msg("Failed to send message")
		s.reconciler.MarkFailed(clientToken, err)
		s.publish(fmt.Sprintf("send message: %v", err))
		return
	}

	if s.reconciler.MarkSent(clientToken, confirmed) {
		s.publish("")
	}
}

func (s *Session) releaseSubscription() {
	if s.sub == nil {
		return
	}
	if err := s.sub.Close(); err != nil {
		log.Warn().Err(err).
			Str("conversation_id", s.reconciler.ConversationID()).
			Msg("Failed to close conversation subscription")
	}
	s.sub = nil
}

func (s *Session) shutdown() {
	s.releaseSubscription()
	s.status = StatusClosed
	s.publish("")
}

func (s *Session) update(errText string) Update {
	return Update{
		Snapshot: s.reconciler.Snapshot(),
		Status:   s.status,
		Error:    errText,
	}
}

func (s *Session) publish(errText string) {
	if s.onUpdate != nil {
		s.onUpdate(s.update(errText))
	}
}
