// internal/app/features/authapi/signup.go
package authapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/veil-chat/veil/internal/app/store/emailverify"
	userstore "github.com/veil-chat/veil/internal/app/store/users"
	"github.com/veil-chat/veil/internal/app/system/auth"
	"github.com/veil-chat/veil/internal/app/system/mailer"
	"github.com/veil-chat/veil/internal/app/system/normalize"
	"github.com/veil-chat/veil/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const minPasswordLength = 8

type signupRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

// HandleSignup creates an account, emails a verification code and
// magic link, and signs the new user in. The session is unverified
// until the code or link is used.
func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	email := normalize.Email(req.Email)
	displayName := normalize.Name(req.DisplayName)

	switch {
	case email == "" || !strings.Contains(email, "@"):
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	case displayName == "":
		writeError(w, http.StatusBadRequest, "display name is required")
		return
	case len(req.Password) < minPasswordLength:
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("password must be at least %d characters", minPasswordLength))
		return
	}

	if allowed, reason := h.Limits.Check(r, ""); !allowed {
		writeError(w, http.StatusTooManyRequests, reason)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	user, err := h.Users.Create(ctx, email, displayName, req.Password)
	if err != nil {
		if errors.Is(err, userstore.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "an account with that email already exists")
			return
		}
		h.Log.Error("signup: create user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create account")
		return
	}

	if err := h.sendVerification(ctx, user.ID, user.Email, false); err != nil {
		// The account exists; the user can request a resend.
		h.Log.Error("signup: send verification",
			zap.String("email", user.Email), zap.Error(err))
	}

	if err := auth.SignIn(w, r, user.ID.Hex()); err != nil {
		h.Log.Error("signup: sign in", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start session")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"user": payloadFromUser(&user)})
}

// HandleResend re-sends the verification email for the signed-in,
// not-yet-verified user.
func (h *Handler) HandleResend(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if u.Verified {
		writeError(w, http.StatusConflict, "account is already verified")
		return
	}

	id, err := objectID(u.ID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if err := h.sendVerification(ctx, id, u.Email, true); err != nil {
		if errors.Is(err, emailverify.ErrTooManyResends) {
			writeError(w, http.StatusTooManyRequests, "too many resend requests, try again later")
			return
		}
		h.Log.Error("resend verification", zap.String("email", u.Email), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not send verification email")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

// sendVerification issues a fresh code and link and emails them.
func (h *Handler) sendVerification(ctx context.Context, userID primitive.ObjectID, email string, isResend bool) error {
	res, err := h.Verify.Create(ctx, userID, email, isResend)
	if err != nil {
		return err
	}

	msg := mailer.BuildVerificationEmail(mailer.VerificationEmailData{
		SiteName:  h.SiteName,
		Code:      res.Code,
		MagicLink: fmt.Sprintf("%s/api/auth/verify?token=%s", h.BaseURL, res.Token),
		ExpiresIn: expiryText(h.Verify.Expiry()),
	})
	msg.To = email
	return h.Mail.Send(msg)
}

func expiryText(d time.Duration) string {
	if m := int(d.Minutes()); m >= 1 {
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return fmt.Sprintf("%d seconds", int(d.Seconds()))
}

func objectID(hex string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(hex)
}
