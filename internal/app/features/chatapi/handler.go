// internal/app/features/chatapi/handler.go
package chatapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/veil-chat/veil/internal/app/engine"
	"github.com/veil-chat/veil/internal/app/system/auth"
	"github.com/veil-chat/veil/internal/domain/models"
	"go.uber.org/zap"
)

// Handler is the shared dependency container for the chat API.
type Handler struct {
	Engine *engine.Engine
	Log    *zap.Logger
}

// NewHandler constructs a chat API Handler.
func NewHandler(eng *engine.Engine, logger *zap.Logger) *Handler {
	return &Handler{Engine: eng, Log: logger}
}

// session converts the request's authenticated user into an engine
// session. Requires LoadSessionUser upstream.
func session(r *http.Request) (engine.Session, bool) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		return engine.Session{}, false
	}
	verified := u.Verified
	return engine.Session{
		UserID:      u.ID,
		DisplayName: u.Name,
		IsAdmin:     u.IsAdmin,
		Verified:    func() bool { return verified },
	}, true
}

// groupPayload is the JSON shape of a group in API responses.
type groupPayload struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	JoinCode   string          `json:"join_code,omitempty"`
	SharedLink string          `json:"shared_link,omitempty"`
	IsAdmin    bool            `json:"is_admin"`
	MyAlias    string          `json:"my_alias,omitempty"`
	Members    []memberPayload `json:"members,omitempty"`
	CreatedAt  *time.Time      `json:"created_at,omitempty"`
}

type memberPayload struct {
	Alias string `json:"alias"`
}

type messagePayload struct {
	ID        string    `json:"id"`
	Alias     string    `json:"alias"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// payloadFromGroup projects a group for the given viewer. Join code
// and member list are only exposed to the group's admin; other
// members see their own alias and the group name.
func payloadFromGroup(g models.Group, userID string) groupPayload {
	p := groupPayload{
		ID:      g.ID,
		Name:    g.Name,
		IsAdmin: g.AdminID == userID,
	}
	if m, ok := g.Members[userID]; ok {
		p.MyAlias = m.Alias
	}
	if !g.CreatedAt.IsZero() {
		t := g.CreatedAt
		p.CreatedAt = &t
	}
	if p.IsAdmin {
		p.JoinCode = g.JoinCode
		p.SharedLink = g.SharedLink
		for _, m := range g.Members {
			p.Members = append(p.Members, memberPayload{Alias: m.Alias})
		}
	}
	return p
}

func payloadFromMessage(m models.Message) messagePayload {
	return messagePayload{
		ID:        m.ID,
		Alias:     m.Alias,
		Content:   m.Content,
		Timestamp: m.Timestamp,
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

// writeEngineError maps the engine's error taxonomy onto HTTP status
// codes.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "permission denied")
	case errors.Is(err, engine.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid request")
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, engine.ErrAlreadyMember):
		writeError(w, http.StatusConflict, "already a member")
	case errors.Is(err, engine.ErrNotAMember):
		writeError(w, http.StatusForbidden, "not a member of this group")
	default:
		h.Log.Error("chat api", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	}
}
