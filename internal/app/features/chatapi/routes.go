// internal/app/features/chatapi/routes.go
package chatapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/veil-chat/veil/internal/app/system/auth"
)

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	// Everything under /groups requires a verified session; the
	// engine re-checks on every operation.
	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Use(auth.RequireVerified)

		pr.Get("/groups", h.HandleListGroups)
		pr.Post("/groups", h.HandleCreateGroup)
		pr.Post("/groups/join", h.HandleJoinGroup)
		pr.Get("/groups/{id}", h.HandleGetGroup)
		pr.Get("/groups/{id}/messages", h.HandleListMessages)
		pr.Post("/groups/{id}/messages", h.HandleSendMessage)
	})

	return r
}
