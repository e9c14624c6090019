// internal/app/features/authapi/handler.go
package authapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/veil-chat/veil/internal/app/store/emailverify"
	"github.com/veil-chat/veil/internal/app/system/auth"
	"github.com/veil-chat/veil/internal/app/system/limits"
	"github.com/veil-chat/veil/internal/app/system/mailer"
	"github.com/veil-chat/veil/internal/app/system/ratelimit"
	"github.com/veil-chat/veil/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// UserStore is the slice of the user store this feature needs.
type UserStore interface {
	Create(ctx context.Context, email, displayName, password string) (models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	MarkVerified(ctx context.Context, id primitive.ObjectID) error
}

// VerifyStore is the slice of the email verification store this
// feature needs.
type VerifyStore interface {
	Create(ctx context.Context, userID primitive.ObjectID, email string, isResend bool) (*emailverify.CreateResult, error)
	VerifyCode(ctx context.Context, userID primitive.ObjectID, code string) (*emailverify.Verification, error)
	VerifyToken(ctx context.Context, token string) (*emailverify.Verification, error)
	Expiry() time.Duration
}

// Handler is the shared dependency container for the auth API.
type Handler struct {
	Users    UserStore
	Verify   VerifyStore
	Mail     mailer.Sender
	Tickets  *auth.TicketIssuer
	Limits   *ratelimit.LoginLimiter
	BaseURL  string
	SiteName string
	Log      *zap.Logger
}

// NewHandler constructs an auth API Handler. It is typically called
// from the bootstrap BuildHandler function.
func NewHandler(users UserStore, verify VerifyStore, mail mailer.Sender, tickets *auth.TicketIssuer, baseURL, siteName string, logger *zap.Logger) *Handler {
	return &Handler{
		Users:    users,
		Verify:   verify,
		Mail:     mail,
		Tickets:  tickets,
		Limits:   ratelimit.NewLoginLimiter(),
		BaseURL:  baseURL,
		SiteName: siteName,
		Log:      logger,
	}
}

// userPayload is the JSON shape of a user in API responses.
type userPayload struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	IsAdmin     bool   `json:"is_admin"`
	Verified    bool   `json:"verified"`
}

func payloadFromUser(u *models.User) userPayload {
	return userPayload{
		ID:          u.ID.Hex(),
		Email:       u.Email,
		DisplayName: u.DisplayName,
		IsAdmin:     u.IsAdmin(),
		Verified:    u.Verified,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limits.MaxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
