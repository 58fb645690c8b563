package handler

import (
	"encoding/json"
	"net/http"

	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/hub"
)

// HTTPHandler serves the relay's plain HTTP endpoints.
type HTTPHandler struct {
	hub *hub.Hub
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(h *hub.Hub) *HTTPHandler {
	return &HTTPHandler{hub: h}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	ActivePeers int    `json:"active_peers"`
}

// HealthCheck handles GET /health
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{
		Status:      "ok",
		Connections: h.hub.ClientCount(),
		ActivePeers: h.hub.ActiveUserCount(),
	})
}
