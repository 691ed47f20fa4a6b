package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"groupchat/internal/observability"
	ws "groupchat/internal/websocket"
)

// WebSocketHandler upgrades /ws requests and hands the socket to the
// gateway. Authentication happens inside the session with an auth frame,
// so the route is mounted outside the bearer middleware.
type WebSocketHandler struct {
	gateway  *ws.Gateway
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(gateway *ws.Gateway, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		gateway:  gateway,
		upgrader: createUpgrader(allowedOrigins),
	}
}

// createUpgrader allows requests without an Origin header (non-browser
// clients) and otherwise checks the allow list.
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAny := lo.Contains(allowedOrigins, "*")
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAny {
				return true
			}
			return lo.Contains(allowedOrigins, origin)
		},
	}
}

// HandleConnection blocks for the lifetime of the session.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		observability.FromContext(r.Context()).Warn("websocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	h.gateway.Serve(context.WithoutCancel(r.Context()), conn)
}
