package models

import "sort"

// ResourceIdentifier is a JSON:API resource linkage
type ResourceIdentifier struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type ToOne struct {
	Data *ResourceIdentifier `json:"data"`
}

type ToMany struct {
	Data []ResourceIdentifier `json:"data"`
}

// ConversationAttributes are the attributes of a conversation resource
type ConversationAttributes struct {
	ID                int    `json:"id"`
	Title             string `json:"title"`
	Status            string `json:"status"`
	LastInteractionAt string `json:"last_interaction_at"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

type ConversationRelationships struct {
	User     ToOne  `json:"user"`
	Firm     ToOne  `json:"firm"`
	Messages ToMany `json:"messages"`
}

// Conversation is a JSON:API conversation resource
type Conversation struct {
	ID            string                    `json:"id"`
	Type          string                    `json:"type"`
	Attributes    ConversationAttributes    `json:"attributes"`
	Relationships ConversationRelationships `json:"relationships"`
}

// ConversationInput holds the writable conversation fields
type ConversationInput struct {
	Title  string `json:"title,omitempty" validate:"omitempty,max=255"`
	Status string `json:"status,omitempty" validate:"omitempty,oneof=active archived"`
}

// MessageAttributes are the attributes of an included message resource
type MessageAttributes struct {
	ID          FlexibleID `json:"id"`
	Role        Role       `json:"role"`
	Content     string     `json:"content"`
	ClientToken string     `json:"client_token,omitempty"`
	CreatedAt   string     `json:"created_at"`
	UpdatedAt   string     `json:"updated_at"`
}

// IncludedResource is a sideloaded resource of a conversation document
type IncludedResource struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes MessageAttributes `json:"attributes"`
}

// ToMessage converts a message resource into a thread entry
func (r IncludedResource) ToMessage() Message {
	id := r.ID
	if id == "" {
		id = string(r.Attributes.ID)
	}
	return Message{
		ID:          id,
		Role:        r.Attributes.Role,
		Content:     r.Attributes.Content,
		Timestamp:   ParseTimestamp(r.Attributes.CreatedAt),
		ClientToken: r.Attributes.ClientToken,
	}
}

// ConversationDocument is the single-conversation response with included messages
type ConversationDocument struct {
	Data     Conversation       `json:"data"`
	Included []IncludedResource `json:"included,omitempty"`
}

// Messages returns the included message resources ordered oldest first.
// Document order is kept when any message lacks a timestamp.
func (d ConversationDocument) Messages() []Message {
	messages := make([]Message, 0, len(d.Included))
	for _, res := range d.Included {
		if res.Type != "" && res.Type != "message" {
			continue
		}
		messages = append(messages, res.ToMessage())
	}
	// A missing timestamp makes the order unknowable, so keep the server's.
	for _, msg := range messages {
		if msg.Timestamp.IsZero() {
			return messages
		}
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages
}
