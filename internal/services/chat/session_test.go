package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/asia-ai/asia-chat/internal/domain/chat"
	"github.com/asia-ai/asia-chat/internal/domain/chat/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventually = 2 * time.Second

type fakeSubscription struct {
	conversationID string
	events         chan models.Event
	once           sync.Once
	journal        *journal
}

func (s *fakeSubscription) Events() <-chan models.Event { return s.events }

func (s *fakeSubscription) Close() error {
	s.journal.add("close:" + s.conversationID)
	s.end()
	return nil
}

func (s *fakeSubscription) end() {
	s.once.Do(func() { close(s.events) })
}

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeTransport struct {
	journal journal
	err     error

	mu   sync.Mutex
	subs map[string]*fakeSubscription
}

func (t *fakeTransport) Subscribe(_ context.Context, conversationID string) (domain.Subscription, error) {
	if t.err != nil {
		return nil, t.err
	}
	t.journal.add("subscribe:" + conversationID)
	sub := &fakeSubscription{
		conversationID: conversationID,
		events:         make(chan models.Event, 16),
		journal:        &t.journal,
	}
	t.mu.Lock()
	if t.subs == nil {
		t.subs = make(map[string]*fakeSubscription)
	}
	t.subs[conversationID] = sub
	t.mu.Unlock()
	return sub, nil
}

func (t *fakeTransport) sub(conversationID string) *fakeSubscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subs[conversationID]
}

type sentMessage struct {
	conversationID string
	content        string
	clientToken    string
}

// scriptedPersister answers each SendMessage with the next queued reply
type scriptedPersister struct {
	mu      sync.Mutex
	calls   []sentMessage
	replies []func(sentMessage) (*models.Message, error)
}

func (p *scriptedPersister) SendMessage(ctx context.Context, conversationID, content, clientToken string) (*models.Message, error) {
	call := sentMessage{conversationID, content, clientToken}
	p.mu.Lock()
	p.calls = append(p.calls, call)
	var reply func(sentMessage) (*models.Message, error)
	if len(p.replies) > 0 {
		reply, p.replies = p.replies[0], p.replies[1:]
	}
	p.mu.Unlock()

	if reply == nil {
		return nil, nil
	}
	return reply(call)
}

func (p *scriptedPersister) queue(reply func(sentMessage) (*models.Message, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, reply)
}

func (p *scriptedPersister) sent() []sentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentMessage(nil), p.calls...)
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) handle(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) last() Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return Update{}
	}
	return r.updates[len(r.updates)-1]
}

func (r *recorder) errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, u := range r.updates {
		if u.Error != "" {
			out = append(out, u.Error)
		}
	}
	return out
}

func newTestSession(t *testing.T, transport domain.Transport, persister domain.Persister) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	s := NewSession(transport, persister, WithUpdateHandler(rec.handle), WithSendTimeout(time.Second))
	t.Cleanup(func() { _ = s.Close() })
	return s, rec
}

func current(t *testing.T, s *Session) Update {
	t.Helper()
	u, err := s.Current(context.Background())
	require.NoError(t, err)
	return u
}

func TestSessionSubscriptionLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("reopening the same conversation keeps one subscription", func(t *testing.T) {
		transport := &fakeTransport{}
		s, _ := newTestSession(t, transport, nil)

		require.NoError(t, s.Initialize(ctx, "A", []models.Message{assistant("1", "a")}))
		require.NoError(t, s.Initialize(ctx, "A", []models.Message{assistant("1", "a")}))

		assert.Equal(t, []string{"subscribe:A"}, transport.journal.list())
		assert.Equal(t, []string{"1"}, ids(current(t, s).Messages))
		assert.Equal(t, StatusLive, current(t, s).Status)
	})

	t.Run("switching conversation closes the old subscription first", func(t *testing.T) {
		transport := &fakeTransport{}
		s, _ := newTestSession(t, transport, nil)

		require.NoError(t, s.Initialize(ctx, "A", []models.Message{assistant("1", "a")}))
		require.NoError(t, s.Initialize(ctx, "B", []models.Message{assistant("2", "b")}))

		assert.Equal(t, []string{"subscribe:A", "close:A", "subscribe:B"}, transport.journal.list())
		u := current(t, s)
		assert.Equal(t, "B", u.ConversationID)
		assert.Equal(t, []string{"2"}, ids(u.Messages))
	})

	t.Run("close releases the subscription", func(t *testing.T) {
		transport := &fakeTransport{}
		s, rec := newTestSession(t, transport, nil)

		require.NoError(t, s.Initialize(ctx, "A", nil))
		require.NoError(t, s.Close())

		assert.Equal(t, []string{"subscribe:A", "close:A"}, transport.journal.list())
		assert.Equal(t, StatusClosed, rec.last().Status)

		_, err := s.Send(ctx, "hello")
		assert.ErrorIs(t, err, ErrSessionClosed)
		assert.NoError(t, s.Close())
	})

	t.Run("subscribe failure keeps the state and reports offline", func(t *testing.T) {
		transport := &fakeTransport{err: errors.New("dial refused")}
		s, rec := newTestSession(t, transport, nil)

		err := s.Initialize(ctx, "A", []models.Message{assistant("1", "a")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dial refused")

		u := current(t, s)
		assert.Equal(t, StatusOffline, u.Status)
		assert.Equal(t, []string{"1"}, ids(u.Messages))
		assert.NotEmpty(t, rec.errors())
	})

	t.Run("closed event stream goes offline", func(t *testing.T) {
		transport := &fakeTransport{}
		s, rec := newTestSession(t, transport, nil)

		require.NoError(t, s.Initialize(ctx, "A", nil))
		transport.sub("A").end()

		assert.Eventually(t, func() bool {
			return rec.last().Status == StatusOffline
		}, eventually, 10*time.Millisecond)
		assert.Contains(t, rec.errors(), "live updates disconnected")
	})

	t.Run("empty conversation id is rejected", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeTransport{}, nil)
		assert.ErrorIs(t, s.Initialize(ctx, "", nil), ErrNoConversationID)
	})
}

func TestSessionEvents(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{}
	s, rec := newTestSession(t, transport, nil)

	require.NoError(t, s.Initialize(ctx, "A", []models.Message{assistant("m1", "")}))
	sub := transport.sub("A")

	sub.events <- models.TypingIndicator{Typing: true}
	assert.Eventually(t, func() bool { return rec.last().Typing }, eventually, 10*time.Millisecond)

	sub.events <- models.ContentDelta{MessageID: "m1", Delta: "Hel"}
	sub.events <- models.ContentDelta{MessageID: "m1", Delta: "lo"}
	sub.events <- models.ContentDelta{MessageID: "unknown", Delta: "!"}
	sub.events <- models.MessageFinalized{Message: assistant("m2", "second")}

	assert.Eventually(t, func() bool {
		return len(rec.last().Messages) == 2
	}, eventually, 10*time.Millisecond)

	u := current(t, s)
	assert.False(t, u.Typing)
	assert.Equal(t, []string{"m1", "m2"}, ids(u.Messages))
	assert.Equal(t, "Hello", u.Messages[0].Content)
}

func TestSessionSend(t *testing.T) {
	ctx := context.Background()

	t.Run("optimistic message is visible before the backend answers", func(t *testing.T) {
		release := make(chan struct{})
		persister := &scriptedPersister{}
		persister.queue(func(call sentMessage) (*models.Message, error) {
			<-release
			return &models.Message{ID: "42", Role: models.RoleUser, Content: call.content, ClientToken: call.clientToken}, nil
		})
		s, _ := newTestSession(t, &fakeTransport{}, persister)
		require.NoError(t, s.Initialize(ctx, "A", nil))

		msg, err := s.Send(ctx, "question")
		require.NoError(t, err)
		assert.True(t, msg.IsTemporary())

		u := current(t, s)
		require.Len(t, u.Messages, 1)
		assert.Equal(t, msg.ID, u.Messages[0].ID)
		assert.Equal(t, models.DeliveryPending, u.Messages[0].Delivery)

		close(release)
		assert.Eventually(t, func() bool {
			u := current(t, s)
			return len(u.Messages) == 1 && u.Messages[0].ID == "42" && u.Messages[0].Delivery == models.DeliverySent
		}, eventually, 10*time.Millisecond)

		calls := persister.sent()
		require.Len(t, calls, 1)
		assert.Equal(t, sentMessage{"A", "question", msg.ClientToken}, calls[0])
	})

	t.Run("echo and send result reconcile to one entry", func(t *testing.T) {
		transport := &fakeTransport{}
		persister := &scriptedPersister{}
		echoed := make(chan struct{})
		persister.queue(func(call sentMessage) (*models.Message, error) {
			<-echoed
			return &models.Message{ID: "42", Role: models.RoleUser, Content: call.content}, nil
		})
		s, rec := newTestSession(t, transport, persister)
		require.NoError(t, s.Initialize(ctx, "A", nil))

		msg, err := s.Send(ctx, "question")
		require.NoError(t, err)

		transport.sub("A").events <- models.MessageCreated{Message: models.Message{
			ID: "42", Role: models.RoleUser, Content: "question", ClientToken: msg.ClientToken,
		}}
		assert.Eventually(t, func() bool {
			m := rec.last().Messages
			return len(m) == 1 && m[0].ID == "42"
		}, eventually, 10*time.Millisecond)
		close(echoed)

		assert.Eventually(t, func() bool {
			return len(persister.sent()) == 1
		}, eventually, 10*time.Millisecond)
		require.NoError(t, s.Close())
		assert.Equal(t, []string{"42"}, ids(rec.last().Messages))
	})

	t.Run("blank content is rejected", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeTransport{}, &scriptedPersister{})
		require.NoError(t, s.Initialize(ctx, "A", nil))

		_, err := s.Send(ctx, "   ")
		assert.ErrorIs(t, err, ErrEmptyContent)
		assert.Empty(t, current(t, s).Messages)
	})

	t.Run("send before initialize", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeTransport{}, &scriptedPersister{})
		_, err := s.Send(ctx, "hello")
		assert.ErrorIs(t, err, ErrNotInitialized)
	})

	t.Run("failure then retry then success", func(t *testing.T) {
		persister := &scriptedPersister{}
		persister.queue(func(sentMessage) (*models.Message, error) {
			return nil, errors.New("status 503")
		})
		persister.queue(func(call sentMessage) (*models.Message, error) {
			return &models.Message{ID: "7", Role: models.RoleUser, Content: call.content}, nil
		})
		s, rec := newTestSession(t, &fakeTransport{}, persister)
		require.NoError(t, s.Initialize(ctx, "A", nil))

		msg, err := s.Send(ctx, "question")
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			m := current(t, s).Messages
			return len(m) == 1 && m[0].Delivery == models.DeliveryFailed
		}, eventually, 10*time.Millisecond)
		assert.Contains(t, rec.errors(), "send message: status 503")
		assert.Equal(t, "status 503", current(t, s).Messages[0].Error)

		require.NoError(t, s.Retry(ctx, msg.ID))
		assert.Eventually(t, func() bool {
			m := current(t, s).Messages
			return len(m) == 1 && m[0].ID == "7" && m[0].Delivery == models.DeliverySent
		}, eventually, 10*time.Millisecond)

		calls := persister.sent()
		require.Len(t, calls, 2)
		assert.Equal(t, calls[0].clientToken, calls[1].clientToken)
	})

	t.Run("discard a failed message", func(t *testing.T) {
		persister := &scriptedPersister{}
		persister.queue(func(sentMessage) (*models.Message, error) {
			return nil, context.DeadlineExceeded
		})
		s, _ := newTestSession(t, &fakeTransport{}, persister)
		require.NoError(t, s.Initialize(ctx, "A", []models.Message{assistant("1", "hi")}))

		msg, err := s.Send(ctx, "question")
		require.NoError(t, err)
		assert.Eventually(t, func() bool {
			m := current(t, s).Messages
			return len(m) == 2 && m[1].Delivery == models.DeliveryFailed
		}, eventually, 10*time.Millisecond)

		require.NoError(t, s.Discard(ctx, msg.ID))
		assert.Equal(t, []string{"1"}, ids(current(t, s).Messages))
		assert.ErrorIs(t, s.Discard(ctx, "1"), ErrNotDiscardable)
	})

	t.Run("send times out", func(t *testing.T) {
		persister := domain.PersisterFunc(func(ctx context.Context, _, _, _ string) (*models.Message, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		rec := &recorder{}
		s := NewSession(&fakeTransport{}, persister, WithUpdateHandler(rec.handle), WithSendTimeout(20*time.Millisecond))
		t.Cleanup(func() { _ = s.Close() })
		require.NoError(t, s.Initialize(ctx, "A", nil))

		_, err := s.Send(ctx, "question")
		require.NoError(t, err)
		assert.Eventually(t, func() bool {
			m := current(t, s).Messages
			return len(m) == 1 && m[0].Delivery == models.DeliveryFailed
		}, eventually, 10*time.Millisecond)
		assert.Contains(t, current(t, s).Messages[0].Error, "deadline exceeded")
	})

	t.Run("results for a previous conversation are dropped", func(t *testing.T) {
		release := make(chan struct{})
		persister := &scriptedPersister{}
		persister.queue(func(sentMessage) (*models.Message, error) {
			<-release
			return nil, errors.New("too late")
		})
		s, rec := newTestSession(t, &fakeTransport{}, persister)
		require.NoError(t, s.Initialize(ctx, "A", nil))
		_, err := s.Send(ctx, "question")
		require.NoError(t, err)

		require.NoError(t, s.Initialize(ctx, "B", nil))
		close(release)
		require.NoError(t, s.Close())

		assert.Empty(t, rec.errors())
		assert.Equal(t, "B", rec.last().ConversationID)
		assert.Empty(t, rec.last().Messages)
	})

	t.Run("missing persister fails the message", func(t *testing.T) {
		s, _ := newTestSession(t, &fakeTransport{}, nil)
		require.NoError(t, s.Initialize(ctx, "A", nil))

		_, err := s.Send(ctx, "question")
		require.NoError(t, err)
		m := current(t, s).Messages
		require.Len(t, m, 1)
		assert.Equal(t, models.DeliveryFailed, m[0].Delivery)
		assert.Equal(t, ErrPersisterRequired.Error(), m[0].Error)
	})
}

func TestSessionCurrentHonoursContext(t *testing.T) {
	s, _ := newTestSession(t, &fakeTransport{}, nil)
	require.NoError(t, s.Close())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Current(ctx)
	assert.True(t, errors.Is(err, ErrSessionClosed) || errors.Is(err, context.Canceled), fmt.Sprint(err))
}

func TestSessionCloseCompletesInflightSends(t *testing.T) {
	ctxErr := make(chan error, 1)
	persister := domain.PersisterFunc(func(ctx context.Context, conversationID, content, clientToken string) (*models.Message, error) {
		select {
		case <-time.After(50 * time.Millisecond):
			ctxErr <- ctx.Err()
			return nil, nil
		case <-ctx.Done():
			ctxErr <- ctx.Err()
			return nil, ctx.Err()
		}
	})

	s := NewSession(&fakeTransport{}, persister, WithSendTimeout(time.Second))
	require.NoError(t, s.Initialize(context.Background(), "1", nil))
	_, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)

	require.NoError(t, s.Close())

	select {
	case err := <-ctxErr:
		assert.NoError(t, err, "send was aborted by Close")
	case <-time.After(eventually):
		t.Fatal("persister never completed")
	}
}
