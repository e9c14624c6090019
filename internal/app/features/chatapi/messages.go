// internal/app/features/chatapi/messages.go
package chatapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/veil-chat/veil/internal/app/system/limits"
	"github.com/veil-chat/veil/internal/app/system/timeouts"
)

type sendMessageRequest struct {
	Content string `json:"content"`
}

// HandleListMessages returns the ordered message log of a group the
// caller belongs to.
func (h *Handler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	msgs, err := h.Engine.Messages(ctx, sess, groupIDParam(r))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	payload := make([]messagePayload, 0, len(msgs))
	for _, m := range msgs {
		payload = append(payload, payloadFromMessage(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": payload})
}

// HandleSendMessage appends a message to the group's log. Ordering is
// decided by the store's timestamp, not arrival at this handler.
func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req sendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	group, err := h.Engine.Group(ctx, groupIDParam(r))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if err := h.Engine.SendMessage(ctx, sess, group, req.Content); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"sent": true})
}

func groupIDParam(r *http.Request) string {
	return chi.URLParam(r, "id")
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limits.MaxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
