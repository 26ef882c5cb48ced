package ws

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"relay-server/internal/auth"
)

// Handler upgrades /ws requests and hands the resulting connections to the
// hub. With a nil verifier, connections are anonymous; the relay trusts the
// payloads it is asked to re-broadcast either way.
type Handler struct {
	hub      *Hub
	verifier *auth.Verifier
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, verifier *auth.Verifier, allowedOrigins []string) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

// checkOrigin allows same-process clients (no Origin header) and any origin
// on the configured allowlist. "*" disables the check.
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		slog.Warn("[WS] Rejected cross-origin handshake", "origin", origin)
		return false
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr
	slog.Debug("[WS] New connection request", "from", remoteAddr)

	var user string
	if h.verifier != nil {
		token := auth.ExtractToken(r)
		if token == "" {
			slog.Warn("[WS] No token provided", "from", remoteAddr)
			http.Error(w, "Unauthorized: token required", http.StatusUnauthorized)
			return
		}

		claims, err := h.verifier.Verify(token)
		if err != nil {
			slog.Warn("[WS] Token validation failed", "from", remoteAddr, "error", err)
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}
		user = claims.DisplayName()
		slog.Info("[WS] Token validated", "user", user, "from", remoteAddr)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("[WS] Failed to upgrade connection", "from", remoteAddr, "error", err)
		return
	}

	client := &Client{
		hub:   h.hub,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		id:    uuid.NewString(),
		user:  user,
		rooms: make(map[string]struct{}),
	}

	slog.Info("[WS] Connection established", "conn", client.id, "user", user, "from", remoteAddr)
	client.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}
