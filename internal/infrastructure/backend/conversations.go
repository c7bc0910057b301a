package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/asia-ai/asia-chat/internal/domain/chat/models"
)

func conversationPath(id string) string {
	return "conversations/" + url.PathEscape(id)
}

func (c *Client) ListConversations(ctx context.Context, token string) ([]models.Conversation, error) {
	var body envelope[[]models.Conversation]
	if _, err := c.do(ctx, http.MethodGet, "conversations", token, nil, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// GetConversation returns the conversation document including its messages
func (c *Client) GetConversation(ctx context.Context, token, id string) (*models.ConversationDocument, error) {
	var doc models.ConversationDocument
	if _, err := c.do(ctx, http.MethodGet, conversationPath(id), token, nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) CreateConversation(ctx context.Context, token string, input models.ConversationInput) (*models.Conversation, error) {
	var body envelope[*models.Conversation]
	if _, err := c.do(withoutRetry(ctx), http.MethodPost, "conversations", token,
		map[string]models.ConversationInput{"conversation": input}, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

func (c *Client) UpdateConversation(ctx context.Context, token, id string, input models.ConversationInput) (*models.Conversation, error) {
	var body envelope[*models.Conversation]
	if _, err := c.do(ctx, http.MethodPut, conversationPath(id), token,
		map[string]models.ConversationInput{"conversation": input}, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

func (c *Client) DeleteConversation(ctx context.Context, token, id string) error {
	_, err := c.do(ctx, http.MethodDelete, conversationPath(id), token, nil, nil)
	return err
}

// History returns the persisted messages of a conversation, oldest first
func (c *Client) History(ctx context.Context, token, id string) ([]models.Message, error) {
	doc, err := c.GetConversation(ctx, token, id)
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	return doc.Messages(), nil
}

type sendMessageRequest struct {
	Message     string `json:"message"`
	ClientToken string `json:"client_token,omitempty"`
}

// SendMessage posts a user message. The client token lets the backend and the
// live stream be matched back to the optimistic copy, and makes retries safe.
// The returned message is nil when the backend does not echo it.
func (c *Client) SendMessage(ctx context.Context, token, conversationID, content, clientToken string) (*models.Message, error) {
	var body envelope[json.RawMessage]
	if _, err := c.do(ctx, http.MethodPost, conversationPath(conversationID)+"/messages", token,
		sendMessageRequest{Message: content, ClientToken: clientToken}, &body); err != nil {
		return nil, err
	}
	return decodeCreatedMessage(body.Data), nil
}

// decodeCreatedMessage accepts either a JSON:API resource or a flat message
func decodeCreatedMessage(data json.RawMessage) *models.Message {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var resource models.IncludedResource
	if err := json.Unmarshal(data, &resource); err == nil && (resource.Attributes.ID != "" || resource.Attributes.Content != "") {
		msg := resource.ToMessage()
		if msg.ID != "" {
			return &msg
		}
	}

	var flat models.WireMessage
	if err := json.Unmarshal(data, &flat); err == nil && flat.ID != "" {
		msg := flat.ToMessage()
		return &msg
	}
	return nil
}
