package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	pkglog "github.com/weiawesome/wes-io-live/peer-relay/pkg/log"
	"github.com/weiawesome/wes-io-live/peer-relay/pkg/protocol"
	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/hub"
	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/service"
)

// WSHandler upgrades control connections and dispatches their frames.
type WSHandler struct {
	hub      *hub.Hub
	service  service.RelayService
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(h *hub.Hub, svc service.RelayService) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket handles the upgrade and starts the client pumps.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	l := pkglog.Ctx(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn)
	ctx := pkglog.WithClient(context.Background(), client.ID)

	client.SetDisconnectHandler(func(c *hub.Client, dep hub.Departure) {
		if err := h.service.HandleDisconnect(ctx, c, dep); err != nil {
			cl := pkglog.Ctx(ctx)
			cl.Error().Err(err).Msg("disconnect handler error")
		}
	})

	h.hub.Register(client)
	l.Debug().Str(pkglog.FieldClientID, client.ID).Msg("control connection opened")

	go client.WritePump()
	go client.ReadPump(func(c *hub.Client, message []byte) {
		h.handleMessage(ctx, c, message)
	})
}

// handleMessage never closes the connection: bad frames are answered with an
// advisory error and the session keeps its state.
func (h *WSHandler) handleMessage(ctx context.Context, c *hub.Client, message []byte) {
	l := pkglog.Ctx(ctx)

	kind, err := protocol.KindOf(message)
	if err != nil {
		l.Warn().Err(err).Msg("malformed frame")
		c.SendMessage(protocol.NewError(protocol.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	switch kind {
	case protocol.KindAnnounce:
		var msg protocol.AnnounceMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.SendMessage(protocol.NewError(protocol.ErrCodeBadRequest, "Invalid announce message"))
			return
		}
		if err := msg.Validate(); err != nil {
			c.SendMessage(protocol.NewError(protocol.ErrCodeBadRequest, err.Error()))
			return
		}
		if err := h.service.HandleAnnounce(ctx, c, msg.UserID, msg.DisplayName); err != nil && !errors.Is(err, service.ErrSessionClosed) {
			l.Error().Err(err).Str(pkglog.FieldUserID, msg.UserID).Msg("announce failed")
		}

	case protocol.KindSignal:
		var msg protocol.SignalMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.SendMessage(protocol.NewError(protocol.ErrCodeBadRequest, "Invalid signal message"))
			return
		}
		if err := msg.Validate(); err != nil {
			c.SendMessage(protocol.NewError(protocol.ErrCodeBadRequest, err.Error()))
			return
		}
		if err := h.service.HandleSignal(ctx, c, msg.To, msg.Signal); err != nil && !errors.Is(err, service.ErrNotAnnounced) {
			l.Error().Err(err).Str(pkglog.FieldTarget, msg.To).Msg("signal failed")
		}

	case protocol.KindPing:
		c.Session.MarkAlive()
		c.SendMessage(protocol.NewPong())

	default:
		l.Warn().Str(pkglog.FieldKind, kind).Msg("unknown frame kind")
		c.SendMessage(protocol.NewError(protocol.ErrCodeUnknownKind, "Unknown message kind"))
	}
}
