package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/asia-ai/asia-chat/internal/api/v1/middleware"
	"github.com/asia-ai/asia-chat/internal/domain/chat/models"
	"github.com/asia-ai/asia-chat/internal/infrastructure/backend"
	"github.com/asia-ai/asia-chat/pkg/httpext"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type UserResponse struct {
	User *models.User `json:"user"`
}

// HandleLogin signs in against the backend and starts a cookie session
func HandleLogin(api AuthAPI, sessions SessionManager, w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpext.DecodeJSON(r, &req); err != nil {
		log.Warn().Err(err).Msg("Client sent malformed login request")
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	if err := httpext.Validate(req); err != nil {
		httpext.JsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := api.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if backend.StatusOf(err) >= http.StatusInternalServerError {
			writeBackendError(w, r, err, "Login")
			return
		}
		log.Info().Err(err).Str("client_ip", middleware.ClientIP(r)).Msg("Login rejected")
		httpext.JsonError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	var userID string
	if result.User != nil {
		userID = strconv.Itoa(result.User.ID)
	}
	if err := sessions.CreateSession(r.Context(), w, userID, result.Token); err != nil {
		log.Error().Err(err).Msg("Failed to create session")
		httpext.JsonError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	log.Info().Str("user_id", userID).Msg("User signed in")
	httpext.JsonResponse(w, UserResponse{User: result.User}, http.StatusOK)
}

// HandleRegister creates an agent account. It does not sign the user in.
func HandleRegister(api AuthAPI, w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := httpext.DecodeJSON(r, &req); err != nil {
		log.Warn().Err(err).Msg("Client sent malformed registration request")
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.PasswordConfirmation == "" {
		req.PasswordConfirmation = req.Password
	}
	if req.Role == "" {
		req.Role = "agent"
	}

	if err := httpext.Validate(req); err != nil {
		httpext.JsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := api.Register(r.Context(), req)
	if err != nil {
		writeBackendError(w, r, err, "Registration")
		return
	}

	httpext.JsonResponse(w, UserResponse{User: user}, http.StatusCreated)
}

// HandleLogout clears the session and revokes the backend token on a best effort basis
func HandleLogout(api AuthAPI, sessions SessionManager, w http.ResponseWriter, r *http.Request) {
	token := sessions.ClearSession(w, r)
	if token != "" {
		if err := api.Logout(r.Context(), token); err != nil {
			log.Warn().Err(err).Msg("Backend sign out failed, session cleared anyway")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCurrentUser returns the signed-in user
func HandleCurrentUser(api AuthAPI, w http.ResponseWriter, r *http.Request) {
	user, err := api.CurrentUser(r.Context(), middleware.GetToken(r))
	if err != nil {
		writeBackendError(w, r, err, "Loading current user")
		return
	}
	httpext.JsonResponse(w, UserResponse{User: user}, http.StatusOK)
}
