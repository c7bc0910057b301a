package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/asia-ai/asia-chat/internal/api/v1/middleware"
	"github.com/asia-ai/asia-chat/internal/domain/chat/models"
	"github.com/asia-ai/asia-chat/pkg/httpext"
)

func HandleListFirms(api FirmAPI, w http.ResponseWriter, r *http.Request) {
	firms, err := api.ListFirms(r.Context(), middleware.GetToken(r))
	if err != nil {
		writeBackendError(w, r, err, "Listing firms")
		return
	}
	if firms == nil {
		firms = []models.Firm{}
	}
	httpext.JsonResponse(w, map[string]any{"data": firms}, http.StatusOK)
}

func HandleGetFirm(api FirmAPI, w http.ResponseWriter, r *http.Request) {
	firm, err := api.GetFirm(r.Context(), middleware.GetToken(r), mux.Vars(r)["id"])
	if err != nil {
		writeBackendError(w, r, err, "Loading firm")
		return
	}
	httpext.JsonResponse(w, map[string]any{"data": firm}, http.StatusOK)
}

func HandleCreateFirm(api FirmAPI, w http.ResponseWriter, r *http.Request) {
	input, ok := decodeFirmInput(w, r)
	if !ok {
		return
	}
	if input.Name == "" {
		httpext.JsonError(w, "name is required", http.StatusBadRequest)
		return
	}

	firm, err := api.CreateFirm(r.Context(), middleware.GetToken(r), input)
	if err != nil {
		writeBackendError(w, r, err, "Creating firm")
		return
	}
	httpext.JsonResponse(w, map[string]any{"data": firm}, http.StatusCreated)
}

func HandleUpdateFirm(api FirmAPI, w http.ResponseWriter, r *http.Request) {
	input, ok := decodeFirmInput(w, r)
	if !ok {
		return
	}

	firm, err := api.UpdateFirm(r.Context(), middleware.GetToken(r), mux.Vars(r)["id"], input)
	if err != nil {
		writeBackendError(w, r, err, "Updating firm")
		return
	}
	httpext.JsonResponse(w, map[string]any{"data": firm}, http.StatusOK)
}

func HandleDeleteFirm(api FirmAPI, w http.ResponseWriter, r *http.Request) {
	if err := api.DeleteFirm(r.Context(), middleware.GetToken(r), mux.Vars(r)["id"]); err != nil {
		writeBackendError(w, r, err, "Deleting firm")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeFirmInput(w http.ResponseWriter, r *http.Request) (models.FirmInput, bool) {
	var body struct {
		Firm *models.FirmInput `json:"firm"`
		models.FirmInput
	}
	if err := httpext.DecodeJSON(r, &body); err != nil {
		log.Warn().Err(err).Msg("Client sent malformed firm payload")
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return models.FirmInput{}, false
	}

	input := body.FirmInput
	if body.Firm != nil {
		input = *body.Firm
	}
	input.Name = strings.TrimSpace(input.Name)

	if err := httpext.Validate(input); err != nil {
		httpext.JsonError(w, err.Error(), http.StatusBadRequest)
		return models.FirmInput{}, false
	}
	return input, true
}
