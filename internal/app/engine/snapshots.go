// internal/app/engine/snapshots.go
package engine

import (
	"context"

	"github.com/veil-chat/veil/internal/app/store/rtstore"
	"github.com/veil-chat/veil/internal/domain/models"
)

// Snapshot reads for request/response callers. Live consumers use a
// Manager instead; these exist for the HTTP handlers, which need a
// point-in-time view to act on.

// Groups returns a point-in-time view of every group, ordered by
// creation time.
func (e *Engine) Groups(ctx context.Context) ([]models.Group, error) {
	snap, err := rtstore.ReadOnce(ctx, e.store, groupsRoot)
	if err != nil {
		return nil, err
	}
	return decodeGroups(snap), nil
}

// Group returns a single group by ID, or ErrNotFound.
func (e *Engine) Group(ctx context.Context, groupID string) (models.Group, error) {
	if groupID == "" {
		return models.Group{}, ErrInvalidArgument
	}
	snap, err := rtstore.ReadOnce(ctx, e.store, groupPath(groupID))
	if err != nil {
		return models.Group{}, err
	}
	if len(snap) == 0 {
		return models.Group{}, ErrNotFound
	}
	return decodeGroup(groupID, snap), nil
}

// GroupsFor returns the groups the session user belongs to.
func (e *Engine) GroupsFor(ctx context.Context, sess Session) ([]models.Group, error) {
	if err := e.gate(sess); err != nil {
		return nil, err
	}
	all, err := e.Groups(ctx)
	if err != nil {
		return nil, err
	}
	return filterMember(all, sess.UserID), nil
}

// Messages returns the ordered message log of a group the session
// user belongs to.
func (e *Engine) Messages(ctx context.Context, sess Session, groupID string) ([]models.Message, error) {
	if err := e.gate(sess); err != nil {
		return nil, err
	}
	group, err := e.Group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(sess.UserID) {
		return nil, ErrNotAMember
	}
	snap, err := rtstore.ReadOnce(ctx, e.store, messagesPath(groupID))
	if err != nil {
		return nil, err
	}
	return decodeMessages(groupID, snap), nil
}
