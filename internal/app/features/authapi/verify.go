// internal/app/features/authapi/verify.go
package authapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/veil-chat/veil/internal/app/store/emailverify"
	"github.com/veil-chat/veil/internal/app/system/auth"
	"github.com/veil-chat/veil/internal/app/system/timeouts"
	"go.uber.org/zap"
)

type verifyRequest struct {
	Code string `json:"code"`
}

// HandleVerifyCode checks the 6-digit code for the signed-in user and
// marks the account verified.
func (h *Handler) HandleVerifyCode(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if u.Verified {
		writeJSON(w, http.StatusOK, map[string]any{"verified": true})
		return
	}

	var req verifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Code) != emailverify.CodeLength {
		writeError(w, http.StatusBadRequest, "invalid verification code")
		return
	}

	id, err := objectID(u.ID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if _, err := h.Verify.VerifyCode(ctx, id, req.Code); err != nil {
		switch {
		case errors.Is(err, emailverify.ErrNotFound):
			writeError(w, http.StatusGone, "verification expired, request a new code")
		case errors.Is(err, emailverify.ErrInvalidCode):
			writeError(w, http.StatusBadRequest, "invalid verification code")
		case errors.Is(err, emailverify.ErrTooManyAttempts):
			writeError(w, http.StatusTooManyRequests, "too many attempts, request a new code")
		default:
			h.Log.Error("verify code", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not verify code")
		}
		return
	}

	if err := h.Users.MarkVerified(ctx, id); err != nil {
		h.Log.Error("mark verified", zap.String("user_id", u.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not verify account")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

// HandleVerifyToken consumes a magic-link token. No session is
// required; the token identifies the account.
func (h *Handler) HandleVerifyToken(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	v, err := h.Verify.VerifyToken(ctx, token)
	if err != nil {
		if errors.Is(err, emailverify.ErrNotFound) {
			writeError(w, http.StatusGone, "verification link expired or already used")
			return
		}
		h.Log.Error("verify token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not verify link")
		return
	}

	if err := h.Users.MarkVerified(ctx, v.UserID); err != nil {
		h.Log.Error("mark verified", zap.String("user_id", v.UserID.Hex()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not verify account")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}
