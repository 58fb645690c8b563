package handler

import (
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	pkglog "github.com/weiawesome/wes-io-live/peer-relay/pkg/log"
)

// NewRouter wires the relay routes behind the request logging middleware.
func NewRouter(ws *WSHandler, api *HTTPHandler, logger zerolog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(pkglog.HTTPMiddleware(logger, "/health"))

	router.HandleFunc("/ws", ws.HandleWebSocket)
	router.HandleFunc("/health", api.HealthCheck).Methods("GET")

	return router
}
