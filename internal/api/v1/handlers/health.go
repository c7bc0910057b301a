package handlers

import (
	"net/http"

	"github.com/asia-ai/asia-chat/internal/connections"
	"github.com/asia-ai/asia-chat/pkg/httpext"
)

type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

func HandleHealth(manager *connections.Manager, w http.ResponseWriter, r *http.Request) {
	httpext.JsonResponse(w, HealthResponse{Status: "ok", Connections: manager.GetConnectionCount()}, http.StatusOK)
}
