package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asia-ai/asia-chat/internal/domain/chat/models"
	"github.com/asia-ai/asia-chat/internal/infrastructure/backend"
	"github.com/asia-ai/asia-chat/internal/infrastructure/pubsub"
	"github.com/asia-ai/asia-chat/internal/services/chat"
	"github.com/asia-ai/asia-chat/internal/services/session"
)

func newBackend(t *testing.T, handler http.HandlerFunc) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return backend.NewClient(srv.URL, backend.WithRetryMax(0))
}

func TestPersisterBindsToken(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-a", r.Header.Get("Authorization"))
		assert.Equal(t, "/conversations/12/messages", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":99,"role":"user","content":"hi","client_token":"ct"}}`))
	})
	svc := New(client, session.NewServiceWithStore(session.NewMemoryStore()), nil)

	msg, err := svc.Persister("tok-a").SendMessage(context.Background(), "12", "hi", "ct")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "99", msg.ID)
	assert.Equal(t, "ct", msg.ClientToken)
}

func TestHistoryLoaderBindsToken(t *testing.T) {
	client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-b", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"id":"12","type":"conversation"},"included":[
			{"id":"1","type":"message","attributes":{"role":"user","content":"hello","created_at":"2025-01-01T10:00:00Z"}}]}`))
	})
	svc := New(client, session.NewServiceWithStore(session.NewMemoryStore()), nil)

	msgs, err := svc.HistoryLoader("tok-b").History(context.Background(), "12")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
}

// A chat session built from Services receives events published on the
// conversation topic and persists sends through the backend client.
func TestNewChatSession(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, pubsub.NewLogger(zerolog.Nop()))
	t.Cleanup(func() { _ = ps.Close() })

	client := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"50","role":"user","content":"` + body["message"] + `","client_token":"` + body["client_token"] + `"}}`))
	})
	svc := New(client, session.NewServiceWithStore(session.NewMemoryStore()), SubscriberTransports(ps))

	updates := make(chan chat.Update, 64)
	sess := svc.NewChatSession("tok", func(u chat.Update) {
		select {
		case updates <- u:
		default:
		}
	})
	t.Cleanup(func() { _ = sess.Close() })

	ctx := context.Background()
	require.NoError(t, sess.Initialize(ctx, "12", nil))

	sent, err := sess.Send(ctx, "hi")
	require.NoError(t, err)
	assert.True(t, sent.IsTemporary())

	publisher := pubsub.NewPublisher(ps)
	require.NoError(t, publisher.Publish("12", []byte(`{"type":"assistant_part","message_id":"50","delta":"!"}`)))
	require.NoError(t, publisher.Publish("12", []byte(`{"type":"assistant_complete","message":{"id":"51","role":"assistant","content":"Hello"}}`)))

	require.Eventually(t, func() bool {
		u, err := sess.Current(ctx)
		if err != nil || len(u.Messages) != 2 {
			return false
		}
		return u.Messages[0].ID == "50" &&
			u.Messages[0].Delivery == models.DeliverySent &&
			u.Messages[1].Content == "Hello"
	}, 2*time.Second, 10*time.Millisecond)
}
