package websocket

import (
	"github.com/asia-ai/asia-chat/internal/domain/chat/models"
	"github.com/asia-ai/asia-chat/internal/services/chat"
)

// Commands a browser may send over the live socket
const (
	commandOpen    = "open"
	commandSend    = "send"
	commandRetry   = "retry"
	commandDiscard = "discard"
	commandPing    = "ping"
)

// Frames the server pushes
const (
	frameSnapshot = "snapshot"
	frameAck      = "ack"
	frameError    = "error"
	framePong     = "pong"
)

type command struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
}

// snapshotFrame carries the whole reconciled state, so a client that
// misses frames catches up with the next one.
type snapshotFrame struct {
	Type string `json:"type"`
	chat.Update
}

type replyFrame struct {
	Type      string          `json:"type"`
	Command   string          `json:"command,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Message   *models.Message `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
}
