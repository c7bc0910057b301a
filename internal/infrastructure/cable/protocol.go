package cable

import "encoding/json"

const (
	typeWelcome    = "welcome"
	typePing       = "ping"
	typeConfirm    = "confirm_subscription"
	typeReject     = "reject_subscription"
	typeDisconnect = "disconnect"

	commandSubscribe   = "subscribe"
	commandUnsubscribe = "unsubscribe"
)

type channelIdentifier struct {
	Channel        string `json:"channel"`
	ConversationID string `json:"conversation_id"`
}

type commandFrame struct {
	Command    string `json:"command"`
	Identifier string `json:"identifier"`
}

// frame is any server-to-client payload. Broadcasts have no type and carry
// the channel payload in Message.
type frame struct {
	Type       string          `json:"type,omitempty"`
	Identifier string          `json:"identifier,omitempty"`
	Message    json.RawMessage `json:"message,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Reconnect  *bool           `json:"reconnect,omitempty"`
}
