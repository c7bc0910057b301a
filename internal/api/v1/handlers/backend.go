package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/asia-ai/asia-chat/internal/domain/chat/models"
	"github.com/asia-ai/asia-chat/internal/infrastructure/backend"
	"github.com/asia-ai/asia-chat/pkg/httpext"
)

// AuthAPI is the part of the backend client used by the auth handlers
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*backend.LoginResult, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.User, error)
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (*models.User, error)
}

// ConversationAPI is the part of the backend client used by the conversation handlers
type ConversationAPI interface {
	ListConversations(ctx context.Context, token string) ([]models.Conversation, error)
	GetConversation(ctx context.Context, token, id string) (*models.ConversationDocument, error)
	CreateConversation(ctx context.Context, token string, input models.ConversationInput) (*models.Conversation, error)
	UpdateConversation(ctx context.Context, token, id string, input models.ConversationInput) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, token, id string) error
	SendMessage(ctx context.Context, token, conversationID, content, clientToken string) (*models.Message, error)
}

// FirmAPI is the part of the backend client used by the firm handlers
type FirmAPI interface {
	ListFirms(ctx context.Context, token string) ([]models.Firm, error)
	GetFirm(ctx context.Context, token, id string) (*models.Firm, error)
	CreateFirm(ctx context.Context, token string, input models.FirmInput) (*models.Firm, error)
	UpdateFirm(ctx context.Context, token, id string, input models.FirmInput) (*models.Firm, error)
	DeleteFirm(ctx context.Context, token, id string) error
}

// SessionManager issues and clears login cookies
type SessionManager interface {
	CreateSession(ctx context.Context, w http.ResponseWriter, userID, backendToken string) error
	ClearSession(w http.ResponseWriter, r *http.Request) string
}

var (
	_ AuthAPI         = (*backend.Client)(nil)
	_ ConversationAPI = (*backend.Client)(nil)
	_ FirmAPI         = (*backend.Client)(nil)
)

// writeBackendError relays a backend failure with its status and message
func writeBackendError(w http.ResponseWriter, r *http.Request, err error, action string) {
	status := backend.StatusOf(err)
	message := backend.MessageOf(err)

	event := log.Warn()
	if status >= http.StatusInternalServerError || errors.Is(err, context.DeadlineExceeded) {
		event = log.Error()
	}
	event.
		Err(err).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg(action + " failed")

	httpext.JsonError(w, message, status)
}
