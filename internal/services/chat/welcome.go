package chat

import (
	"time"

	"github.com/asia-ai/asia-chat/internal/domain/chat/models"
)

// WelcomeMessageID is the id of the local greeting shown in empty conversations.
// It is never sent to the backend.
const WelcomeMessageID = "welcome"

const welcomeText = "👋 Hello! I'm your ASIA.ai assistant, designed to help you with your tasks. You can ask me about:\n\n" +
	"• General information\n" +
	"• Creating content\n" +
	"• Analysis and recommendations\n" +
	"• Strategic advice\n" +
	"• Data interpretation\n\n" +
	"How can I help you today?"

// WithWelcome returns seed unchanged unless it is empty, in which case it
// returns a single assistant greeting.
func WithWelcome(seed []models.Message, now time.Time) []models.Message {
	if len(seed) > 0 {
		return seed
	}
	return []models.Message{{
		ID:        WelcomeMessageID,
		Role:      models.RoleAssistant,
		Content:   welcomeText,
		Timestamp: now,
	}}
}
