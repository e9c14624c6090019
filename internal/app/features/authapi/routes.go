// internal/app/features/authapi/routes.go
package authapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/veil-chat/veil/internal/app/system/auth"
)

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/signup", h.HandleSignup)
	r.Post("/login", h.HandleLogin)
	r.Post("/logout", h.HandleLogout)
	r.Get("/me", h.HandleMe)
	r.Get("/verify", h.HandleVerifyToken)

	// Signed-in only
	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Post("/verify", h.HandleVerifyCode)
		pr.Post("/resend", h.HandleResend)
		pr.Post("/ticket", h.HandleTicket)
	})

	return r
}
