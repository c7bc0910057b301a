// Package cable subscribes to conversation events over an ActionCable websocket.
package cable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	domain "github.com/asia-ai/asia-chat/internal/domain/chat"
	"github.com/gorilla/websocket"
)

const (
	ChannelName = "ConversationChannel"
	Subprotocol = "actioncable-v1-json"

	maxReconnectAttempts = 3
	reconnectDelay       = 2 * time.Second

	// The server pings every 3 seconds; three missed pings mean the socket is stale.
	staleAfter       = 9 * time.Second
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
)

var (
	ErrSubscriptionRejected = errors.New("subscription rejected")
	ErrDisconnected         = errors.New("disconnected by server")
)

// Client opens one ActionCable connection per conversation subscription
type Client struct {
	url          string
	header       http.Header
	token        string
	dialer       *websocket.Dialer
	maxAttempts  int
	retryDelay   time.Duration
	staleTimeout time.Duration
}

type Option func(*Client)

// WithToken authenticates the connection with the backend bearer token,
// both as a header and as the token query parameter.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
		if token != "" {
			c.header.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithOrigin sets the Origin header checked by the cable server
func WithOrigin(origin string) Option {
	return func(c *Client) {
		if origin != "" {
			c.header.Set("Origin", origin)
		}
	}
}

func WithReconnect(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		c.maxAttempts = attempts
		c.retryDelay = delay
	}
}

func WithStaleTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.staleTimeout = d
	}
}

func NewClient(cableURL string, opts ...Option) *Client {
	c := &Client{
		url:    cableURL,
		header: http.Header{},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			Subprotocols:     []string{Subprotocol, "actioncable-unsupported"},
		},
		maxAttempts:  maxReconnectAttempts,
		retryDelay:   reconnectDelay,
		staleTimeout: staleAfter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe connects, subscribes to ConversationChannel for conversationID and
// waits for the server to confirm before returning.
func (c *Client) Subscribe(ctx context.Context, conversationID string) (domain.Subscription, error) {
	identifier, err := json.Marshal(channelIdentifier{Channel: ChannelName, ConversationID: conversationID})
	if err != nil {
		return nil, fmt.Errorf("failed to build channel identifier: %w", err)
	}

	conn, err := c.connect(ctx, string(identifier))
	if err != nil {
		return nil, err
	}

	return newSubscription(ctx, c, conversationID, string(identifier), conn), nil
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("invalid cable url: %w", err)
	}
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// connect dials, waits for the welcome frame and subscribes
func (c *Client) connect(ctx context.Context, identifier string) (*websocket.Conn, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, err
	}

	conn, _, err := c.dialer.DialContext(ctx, endpoint, c.header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cable server: %w", err)
	}

	if err := c.handshake(ctx, conn, identifier); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Client) handshake(ctx context.Context, conn *websocket.Conn, identifier string) error {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return err
	}

	subscribed := false
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("cable handshake: %w", err)
		}

		switch f.Type {
		case typeWelcome:
			if subscribed {
				continue
			}
			if err := writeCommand(conn, commandSubscribe, identifier); err != nil {
				return fmt.Errorf("failed to send subscribe command: %w", err)
			}
			subscribed = true
		case typeConfirm:
			if f.Identifier == identifier {
				return conn.SetReadDeadline(time.Time{})
			}
		case typeReject:
			if f.Identifier == identifier {
				return ErrSubscriptionRejected
			}
		case typeDisconnect:
			return fmt.Errorf("%w: %s", ErrDisconnected, f.Reason)
		}
	}
}

func writeCommand(conn *websocket.Conn, command, identifier string) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(commandFrame{Command: command, Identifier: identifier})
}
