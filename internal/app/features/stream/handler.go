// internal/app/features/stream/handler.go
package stream

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/veil-chat/veil/internal/app/store/rtstore"
	"github.com/veil-chat/veil/internal/app/system/auth"
	"go.uber.org/zap"
)

// Handler owns the websocket endpoint that carries live group and
// message updates. Mutations stay on the REST API; this connection is
// read-only apart from feed selection.
type Handler struct {
	Store   rtstore.Store
	Tickets *auth.TicketIssuer
	Log     *zap.Logger

	upgrader websocket.Upgrader
}

// NewHandler constructs a stream Handler.
func NewHandler(store rtstore.Store, tickets *auth.TicketIssuer, logger *zap.Logger) *Handler {
	return &Handler{
		Store:   store,
		Tickets: tickets,
		Log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ServeStream handles GET /stream?ticket=…
//
// The ticket is minted over the authenticated REST API
// (POST /api/auth/ticket) and proves a verified session without
// relying on the cookie reaching the websocket handshake.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	userID, err := h.Tickets.Verify(ticket)
	if err != nil {
		if errors.Is(err, auth.ErrBadTicket) {
			http.Error(w, "invalid ticket", http.StatusUnauthorized)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.Log.Warn("stream upgrade failed", zap.Error(err))
		return
	}

	c := newClient(h, conn, userID)
	c.run(r.Context())
}
