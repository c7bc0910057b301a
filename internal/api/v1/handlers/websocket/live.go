package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/asia-ai/asia-chat/internal/api/v1/middleware"
	"github.com/asia-ai/asia-chat/internal/config"
	"github.com/asia-ai/asia-chat/internal/connections"
	domain "github.com/asia-ai/asia-chat/internal/domain/chat"
	"github.com/asia-ai/asia-chat/internal/domain/chat/models"
	"github.com/asia-ai/asia-chat/internal/infrastructure/backend"
	"github.com/asia-ai/asia-chat/internal/services/chat"
	"github.com/asia-ai/asia-chat/pkg/httpext"
	"github.com/asia-ai/asia-chat/pkg/logger"
	"github.com/asia-ai/asia-chat/pkg/ratelimit"
)

const (
	commandTimeout = 10 * time.Second
	maxCommandSize = 64 << 10
	replyBuffer    = 16
)

var errClientGone = errors.New("client closed the live view")

// Opener builds the per-login collaborators of a live view
type Opener interface {
	HistoryLoader(token string) domain.HistoryLoader
	NewChatSession(token string, onUpdate func(chat.Update)) *chat.Session
	GetConnectionManager() *connections.Manager
}

// LiveHandler streams one conversation view over a websocket. The browser
// receives a snapshot after every change and drives the session with
// open, send, retry and discard commands.
type LiveHandler struct {
	opener    Opener
	upgrader  websocket.Upgrader
	sendLimit config.RateLimitConfig
	limiter   *ratelimit.Limiter
	now       func() time.Time
}

func NewLiveHandler(opener Opener) *LiveHandler {
	sendLimit := config.GetRateLimitConfig("send_message")
	allowed := config.GetAllowedOrigins()
	return &LiveHandler{
		opener: opener,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r, allowed)
			},
		},
		sendLimit: sendLimit,
		limiter:   ratelimit.NewLimiter(sendLimit.Window, sendLimit.MaxHits),
		now:       time.Now,
	}
}

// originAllowed accepts requests without an Origin, same-host origins and the configured list
func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, candidate := range allowed {
		if strings.EqualFold(candidate, strings.TrimRight(origin, "/")) {
			return true
		}
	}
	return false
}

func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.For(logger.HANDLER)
	token := middleware.GetToken(r)
	conversationID := mux.Vars(r)["id"]

	// History is loaded before the upgrade so missing or forbidden
	// conversations still get a plain HTTP error.
	history, err := h.opener.HistoryLoader(token).History(r.Context(), conversationID)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("Failed to load conversation history")
		httpext.JsonError(w, backend.MessageOf(err), backend.StatusOf(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to upgrade live view connection")
		return
	}

	v := &liveView{
		handler: h,
		conn:    conn,
		token:   token,
		limitID: limitKey(r, token),
		manager: h.opener.GetConnectionManager(),
		replies: make(chan replyFrame, replyBuffer),
		notify:  make(chan struct{}, 1),
		log:     log.With().Str("conversation_id", conversationID).Logger(),
	}
	v.serve(r.Context(), conversationID, history)
}

func limitKey(r *http.Request, token string) string {
	if sess := middleware.GetSession(r); sess != nil && sess.Claims != nil {
		return sess.Claims.SessionID
	}
	return token
}

// liveView is one browser connection bound to one chat session
type liveView struct {
	handler *LiveHandler
	conn    *websocket.Conn
	token   string
	limitID string
	manager *connections.Manager
	session *chat.Session
	log     zerolog.Logger

	replies chan replyFrame
	notify  chan struct{}

	mu     sync.Mutex
	latest *chat.Update
}

func (v *liveView) serve(ctx context.Context, conversationID string, history []models.Message) {
	timeouts := v.manager.GetTimeouts()
	v.manager.AddConnection(v.conn)
	defer v.manager.RemoveConnection(v.conn)
	defer v.conn.Close()

	v.session = v.handler.opener.NewChatSession(v.token, v.offer)
	defer v.session.Close()

	if err := v.open(ctx, conversationID, history); err != nil {
		// The session stays usable offline; the snapshot reports the status.
		v.log.Warn().Err(err).Msg("Live view opened without live updates")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return v.readPump(gctx, timeouts) })
	g.Go(func() error { return v.writePump(gctx, timeouts) })
	g.Go(func() error {
		<-gctx.Done()
		// unblocks the read pump
		_ = v.conn.Close()
		return nil
	})

	err := g.Wait()
	switch {
	case errors.Is(err, errClientGone), websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		v.log.Debug().Msg("Live view closed by client")
	case err != nil && !errors.Is(err, context.Canceled):
		v.log.Warn().Err(err).Msg("Live view ended")
	}
}

// open seeds the session for conversationID, welcome message included
func (v *liveView) open(ctx context.Context, conversationID string, history []models.Message) error {
	v.manager.Watch(v.conn, conversationID)
	seed := chat.WithWelcome(history, v.handler.now())

	err := v.session.Initialize(ctx, conversationID, seed)
	if current, cerr := v.session.Current(ctx); cerr == nil {
		v.offer(current)
	}
	return err
}

// offer keeps only the newest update; it runs on the session goroutine and never blocks
func (v *liveView) offer(u chat.Update) {
	v.mu.Lock()
	v.latest = &u
	v.mu.Unlock()

	select {
	case v.notify <- struct{}{}:
	default:
	}
}

func (v *liveView) takeLatest() *chat.Update {
	v.mu.Lock()
	defer v.mu.Unlock()
	u := v.latest
	v.latest = nil
	return u
}

func (v *liveView) reply(ctx context.Context, frame replyFrame) {
	select {
	case v.replies <- frame:
	case <-ctx.Done():
	}
}

func (v *liveView) readPump(ctx context.Context, timeouts connections.TimeoutConfig) error {
	v.conn.SetReadLimit(maxCommandSize)
	_ = v.conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	})

	for {
		var cmd command
		if err := v.conn.ReadJSON(&cmd); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return errClientGone
			}
			return err
		}
		_ = v.conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))

		v.handle(ctx, cmd)
	}
}

func (v *liveView) handle(ctx context.Context, cmd command) {
	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch cmd.Type {
	case commandPing:
		v.reply(ctx, replyFrame{Type: framePong})

	case commandOpen:
		if cmd.ConversationID == "" {
			v.reply(ctx, replyFrame{Type: frameError, Command: cmd.Type, Error: chat.ErrNoConversationID.Error()})
			return
		}
		history, err := v.handler.opener.HistoryLoader(v.token).History(cctx, cmd.ConversationID)
		if err != nil {
			v.reply(ctx, replyFrame{Type: frameError, Command: cmd.Type, Error: backend.MessageOf(err)})
			return
		}
		if err := v.open(cctx, cmd.ConversationID, history); err != nil {
			v.log.Warn().Err(err).Str("switch_to", cmd.ConversationID).Msg("Switched conversation without live updates")
		}
		v.reply(ctx, replyFrame{Type: frameAck, Command: cmd.Type})

	case commandSend:
		if v.handler.sendLimit.Enabled && !v.handler.limiter.Allow(v.limitID) {
			v.reply(ctx, replyFrame{Type: frameError, Command: cmd.Type, Error: "Rate limit exceeded"})
			return
		}
		msg, err := v.session.Send(cctx, cmd.Content)
		if err != nil {
			v.reply(ctx, replyFrame{Type: frameError, Command: cmd.Type, Error: err.Error()})
			return
		}
		v.reply(ctx, replyFrame{Type: frameAck, Command: cmd.Type, MessageID: msg.ID, Message: &msg})

	case commandRetry:
		if err := v.session.Retry(cctx, cmd.MessageID); err != nil {
			v.reply(ctx, replyFrame{Type: frameError, Command: cmd.Type, MessageID: cmd.MessageID, Error: err.Error()})
			return
		}
		v.reply(ctx, replyFrame{Type: frameAck, Command: cmd.Type, MessageID: cmd.MessageID})

	case commandDiscard:
		if err := v.session.Discard(cctx, cmd.MessageID); err != nil {
			v.reply(ctx, replyFrame{Type: frameError, Command: cmd.Type, MessageID: cmd.MessageID, Error: err.Error()})
			return
		}
		v.reply(ctx, replyFrame{Type: frameAck, Command: cmd.Type, MessageID: cmd.MessageID})

	default:
		v.reply(ctx, replyFrame{Type: frameError, Command: cmd.Type, Error: "unknown command"})
	}
}

// writePump is the only writer on the socket
func (v *liveView) writePump(ctx context.Context, timeouts connections.TimeoutConfig) error {
	ticker := time.NewTicker(timeouts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = v.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(timeouts.WriteWait))
			return ctx.Err()

		case <-v.session.Done():
			return chat.ErrSessionClosed

		case <-v.notify:
			if u := v.takeLatest(); u != nil {
				if err := v.write(snapshotFrame{Type: frameSnapshot, Update: *u}, timeouts); err != nil {
					return err
				}
			}

		case frame := <-v.replies:
			if err := v.write(frame, timeouts); err != nil {
				return err
			}

		case <-ticker.C:
			if err := v.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeouts.WriteWait)); err != nil {
				return err
			}
		}
	}
}

func (v *liveView) write(frame any, timeouts connections.TimeoutConfig) error {
	if err := v.conn.SetWriteDeadline(time.Now().Add(timeouts.WriteWait)); err != nil {
		return err
	}
	return v.conn.WriteJSON(frame)
}
