// internal/app/features/authapi/login.go
package authapi

import (
	"context"
	"errors"
	"net/http"

	userstore "github.com/veil-chat/veil/internal/app/store/users"
	"github.com/veil-chat/veil/internal/app/system/auth"
	"github.com/veil-chat/veil/internal/app/system/normalize"
	"github.com/veil-chat/veil/internal/app/system/timeouts"
	"go.uber.org/zap"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin checks credentials and starts a session.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	email := normalize.Email(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	if allowed, reason := h.Limits.Check(r, email); !allowed {
		writeError(w, http.StatusTooManyRequests, reason)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	user, err := h.Users.Authenticate(ctx, email, req.Password)
	if err != nil {
		if errors.Is(err, userstore.ErrBadCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		h.Log.Error("login: authenticate", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not sign in")
		return
	}

	if err := auth.SignIn(w, r, user.ID.Hex()); err != nil {
		h.Log.Error("login: sign in", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start session")
		return
	}

	h.Limits.ResetEmail(email)
	writeJSON(w, http.StatusOK, map[string]any{"user": payloadFromUser(user)})
}

// HandleLogout clears the session.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := auth.SignOut(w, r); err != nil {
		h.Log.Error("logout", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{"signed_out": true})
}

// HandleMe returns the current session user, with verification status
// read live rather than cached from sign-in.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user": userPayload{
			ID:          u.ID,
			Email:       u.Email,
			DisplayName: u.Name,
			IsAdmin:     u.IsAdmin,
			Verified:    u.Verified,
		},
	})
}

// HandleTicket mints a short-lived ticket for attaching the stream
// websocket. Requires a verified session.
func (h *Handler) HandleTicket(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !u.Verified {
		writeError(w, http.StatusForbidden, "email not verified")
		return
	}

	ticket, err := h.Tickets.Mint(u.ID)
	if err != nil {
		h.Log.Error("mint stream ticket", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not issue ticket")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticket": ticket})
}
