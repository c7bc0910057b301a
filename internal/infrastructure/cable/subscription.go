package cable

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asia-ai/asia-chat/internal/domain/chat/models"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const eventBuffer = 64

// errStop ends the subscription without reconnecting
var errStop = errors.New("stop")

type subscription struct {
	client     *Client
	identifier string
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan models.Event
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	conn      *websocket.Conn
}

func newSubscription(ctx context.Context, client *Client, conversationID, identifier string, conn *websocket.Conn) *subscription {
	subCtx, cancel := context.WithCancel(ctx)
	s := &subscription{
		client:     client,
		identifier: identifier,
		logger:     log.With().Str("component", "cable").Str("conversation_id", conversationID).Logger(),
		ctx:        subCtx,
		cancel:     cancel,
		events:     make(chan models.Event, eventBuffer),
		done:       make(chan struct{}),
		conn:       conn,
	}

	// Unblock the reader as soon as the subscription is cancelled
	context.AfterFunc(subCtx, s.closeConn)

	go s.run()
	return s
}

func (s *subscription) Events() <-chan models.Event {
	return s.events
}

// Close unsubscribes, drops the connection and waits for the reader to stop
func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.conn != nil {
			if err := writeCommand(s.conn, commandUnsubscribe, s.identifier); err != nil {
				s.logger.Debug().Err(err).Msg("Failed to send unsubscribe command")
			}
		}
		s.mu.Unlock()
		s.cancel()
	})
	<-s.done
	return nil
}

func (s *subscription) run() {
	defer close(s.done)
	defer close(s.events)

	for {
		conn := s.current()
		if conn == nil {
			return
		}

		err := s.consume(conn)
		s.closeConn()

		if s.ctx.Err() != nil || errors.Is(err, errStop) {
			return
		}

		s.logger.Warn().Err(err).Msg("Cable connection lost, reconnecting")
		if err := s.reconnect(); err != nil {
			s.logger.Error().Err(err).Msg("Giving up on cable connection")
			return
		}
	}
}

// consume reads frames until the connection fails or the server ends the subscription
func (s *subscription) consume(conn *websocket.Conn) error {
	stale := s.client.staleTimeout
	for {
		if err := conn.SetReadDeadline(time.Now().Add(stale)); err != nil {
			return err
		}

		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}

		switch f.Type {
		case typePing, typeWelcome, typeConfirm:
			continue
		case typeReject:
			if f.Identifier == s.identifier {
				s.logger.Warn().Msg("Cable subscription rejected")
				return errStop
			}
			continue
		case typeDisconnect:
			if f.Reconnect != nil && !*f.Reconnect {
				s.logger.Info().Str("reason", f.Reason).Msg("Cable server closed the connection")
				return errStop
			}
			return fmt.Errorf("%w: %s", ErrDisconnected, f.Reason)
		case "":
		default:
			s.logger.Debug().Str("type", f.Type).Msg("Ignoring cable frame")
			continue
		}

		if f.Identifier != s.identifier || len(f.Message) == 0 {
			continue
		}

		ev, err := models.DecodeEvent(f.Message)
		if err != nil {
			s.logger.Warn().Err(err).RawJSON("payload", f.Message).Msg("Dropping conversation event")
			continue
		}

		select {
		case s.events <- ev:
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
	}
}

func (s *subscription) reconnect() error {
	var err error
	for attempt := 1; attempt <= s.client.maxAttempts; attempt++ {
		select {
		case <-time.After(s.client.retryDelay):
		case <-s.ctx.Done():
			return s.ctx.Err()
		}

		var conn *websocket.Conn
		conn, err = s.client.connect(s.ctx, s.identifier)
		if err == nil {
			s.mu.Lock()
			if s.ctx.Err() != nil {
				s.mu.Unlock()
				conn.Close()
				return s.ctx.Err()
			}
			s.conn = conn
			s.mu.Unlock()
			s.logger.Info().Int("attempt", attempt).Msg("Reconnected to cable server")
			return nil
		}
		if errors.Is(err, ErrSubscriptionRejected) {
			return err
		}

		s.logger.Warn().
			Int("attempt", attempt).
			Int("max_attempts", s.client.maxAttempts).
			Err(err).
			Msg("Failed to reconnect to cable server, retrying...")
	}
	return fmt.Errorf("failed to reconnect after %d attempts: %w", s.client.maxAttempts, err)
}

func (s *subscription) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *subscription) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
