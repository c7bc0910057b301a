package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/asia-ai/asia-chat/internal/api/v1/middleware"
	"github.com/asia-ai/asia-chat/internal/domain/chat/models"
	"github.com/asia-ai/asia-chat/pkg/httpext"
)

type ConversationResponse struct {
	Data     *models.Conversation `json:"data"`
	Messages []models.Message     `json:"messages,omitempty"`
}

type SendMessageRequest struct {
	Message     string `json:"message" validate:"required,max=10000"`
	ClientToken string `json:"client_token,omitempty" validate:"omitempty,max=64"`
}

type SendMessageResponse struct {
	ClientToken string          `json:"client_token"`
	Message     *models.Message `json:"message,omitempty"`
}

func HandleListConversations(api ConversationAPI, w http.ResponseWriter, r *http.Request) {
	conversations, err := api.ListConversations(r.Context(), middleware.GetToken(r))
	if err != nil {
		writeBackendError(w, r, err, "Listing conversations")
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}
	httpext.JsonResponse(w, map[string]any{"data": conversations}, http.StatusOK)
}

// HandleGetConversation returns the conversation with its messages oldest first
func HandleGetConversation(api ConversationAPI, w http.ResponseWriter, r *http.Request) {
	doc, err := api.GetConversation(r.Context(), middleware.GetToken(r), mux.Vars(r)["id"])
	if err != nil {
		writeBackendError(w, r, err, "Loading conversation")
		return
	}
	httpext.JsonResponse(w, ConversationResponse{Data: &doc.Data, Messages: doc.Messages()}, http.StatusOK)
}

func HandleCreateConversation(api ConversationAPI, w http.ResponseWriter, r *http.Request) {
	input, ok := decodeConversationInput(w, r)
	if !ok {
		return
	}

	conversation, err := api.CreateConversation(r.Context(), middleware.GetToken(r), input)
	if err != nil {
		writeBackendError(w, r, err, "Creating conversation")
		return
	}
	httpext.JsonResponse(w, ConversationResponse{Data: conversation}, http.StatusCreated)
}

func HandleUpdateConversation(api ConversationAPI, w http.ResponseWriter, r *http.Request) {
	input, ok := decodeConversationInput(w, r)
	if !ok {
		return
	}

	conversation, err := api.UpdateConversation(r.Context(), middleware.GetToken(r), mux.Vars(r)["id"], input)
	if err != nil {
		writeBackendError(w, r, err, "Updating conversation")
		return
	}
	httpext.JsonResponse(w, ConversationResponse{Data: conversation}, http.StatusOK)
}

func HandleDeleteConversation(api ConversationAPI, w http.ResponseWriter, r *http.Request) {
	if err := api.DeleteConversation(r.Context(), middleware.GetToken(r), mux.Vars(r)["id"]); err != nil {
		writeBackendError(w, r, err, "Deleting conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSendMessage posts a message without a live view attached. Clients
// may supply their own client_token to make resubmission idempotent.
func HandleSendMessage(api ConversationAPI, w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := httpext.DecodeJSON(r, &req); err != nil {
		log.Warn().Err(err).Msg("Client sent malformed message request")
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if err := httpext.Validate(req); err != nil {
		httpext.JsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ClientToken == "" {
		req.ClientToken = uuid.NewString()
	}

	conversationID := mux.Vars(r)["id"]
	msg, err := api.SendMessage(r.Context(), middleware.GetToken(r), conversationID, req.Message, req.ClientToken)
	if err != nil {
		writeBackendError(w, r, err, "Sending message")
		return
	}

	log.Info().
		Str("conversation_id", conversationID).
		Str("client_token", req.ClientToken).
		Bool("echoed", msg != nil).
		Msg("Message submitted")

	status := http.StatusCreated
	if msg == nil {
		status = http.StatusAccepted
	}
	httpext.JsonResponse(w, SendMessageResponse{ClientToken: req.ClientToken, Message: msg}, status)
}

func decodeConversationInput(w http.ResponseWriter, r *http.Request) (models.ConversationInput, bool) {
	var body struct {
		Conversation *models.ConversationInput `json:"conversation"`
		models.ConversationInput
	}
	if err := httpext.DecodeJSON(r, &body); err != nil {
		log.Warn().Err(err).Msg("Client sent malformed conversation payload")
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return models.ConversationInput{}, false
	}

	input := body.ConversationInput
	if body.Conversation != nil {
		input = *body.Conversation
	}
	input.Title = strings.TrimSpace(input.Title)

	if err := httpext.Validate(input); err != nil {
		httpext.JsonError(w, err.Error(), http.StatusBadRequest)
		return models.ConversationInput{}, false
	}
	return input, true
}
