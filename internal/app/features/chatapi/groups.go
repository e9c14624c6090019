// internal/app/features/chatapi/groups.go
package chatapi

import (
	"context"
	"net/http"

	"github.com/veil-chat/veil/internal/app/system/timeouts"
	"github.com/veil-chat/veil/internal/domain/models"
)

type createGroupRequest struct {
	Name string `json:"name"`
}

type joinGroupRequest struct {
	Code string `json:"code"`
}

// HandleListGroups returns the groups the caller belongs to.
func (h *Handler) HandleListGroups(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	groups, err := h.Engine.GroupsFor(ctx, sess)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	payload := make([]groupPayload, 0, len(groups))
	for _, g := range groups {
		payload = append(payload, payloadFromGroup(g, sess.UserID))
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": payload})
}

// HandleCreateGroup creates a group. Admin accounts only; the creator
// is seeded as the first member.
func (h *Handler) HandleCreateGroup(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	group, err := h.Engine.CreateGroup(ctx, sess, req.Name)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"group": payloadFromGroup(group, sess.UserID)})
}

// HandleJoinGroup resolves a join code or shared link against the
// current group list and joins the match.
func (h *Handler) HandleJoinGroup(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req joinGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	all, err := h.Engine.Groups(ctx)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	group, err := h.Engine.ResolveJoinTarget(all, req.Code)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	member, err := h.Engine.JoinGroup(ctx, sess, group)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	// Reflect the join in the returned payload without a re-read.
	if group.Members == nil {
		group.Members = map[string]models.Member{}
	}
	group.Members[sess.UserID] = member
	writeJSON(w, http.StatusOK, map[string]any{"group": payloadFromGroup(group, sess.UserID)})
}

// HandleGetGroup returns one group the caller belongs to.
func (h *Handler) HandleGetGroup(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	group, err := h.Engine.Group(ctx, groupIDParam(r))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if !group.HasMember(sess.UserID) {
		writeError(w, http.StatusForbidden, "not a member of this group")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"group": payloadFromGroup(group, sess.UserID)})
}
