// internal/app/engine/engine.go

// Package engine is the realtime membership and message
// synchronization core. It owns group creation and join-code
// resolution, add-if-absent membership, the append-only per-group
// message log with its deterministic ordering, and the lifecycle of
// the live subscriptions that keep a client's view consistent with
// the backing store.
//
// The engine holds no authoritative state. Every Group or Message
// value it returns or publishes is a cache of a store snapshot,
// replaced wholesale by the next subscription notification.
// Correctness under concurrent writers comes entirely from path-scoped
// atomic writes: creating a group writes one fresh path, joining
// writes one member key, sending appends one message key. Nothing
// ever read-modify-writes a whole document, so concurrent joins and
// concurrent sends commute without coordination.
package engine

import (
	"context"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/veil-chat/veil/internal/app/store/rtstore"
	"github.com/veil-chat/veil/internal/domain/models"
)

// Engine exposes the gated mutating operations. It is stateless and
// safe for concurrent use; per-client subscription state lives in
// Manager.
type Engine struct {
	store    rtstore.Store
	log      *zap.Logger
	sanitize *bluemonday.Policy
}

// New creates an engine on store.
func New(store rtstore.Store, logger *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		log:      logger,
		sanitize: bluemonday.StrictPolicy(),
	}
}

// CreateGroup allocates a new group with the session user as admin and
// sole initial member. The whole document, member included, goes to a
// fresh path in one atomic write, so the admin-in-members invariant
// holds from the first instant the group is observable.
//
// The returned Group has a zero CreatedAt: the store stamps creation
// time at write, and the stamped value arrives with the next groups
// notification like any other remote write.
func (e *Engine) CreateGroup(ctx context.Context, sess Session, name string) (models.Group, error) {
	if err := e.gate(sess); err != nil {
		return models.Group{}, err
	}
	if !sess.IsAdmin {
		return models.Group{}, ErrPermissionDenied
	}
	name = strings.TrimSpace(e.sanitize.Sanitize(name))
	if name == "" {
		return models.Group{}, ErrInvalidArgument
	}

	id := e.store.ChildID()
	group := models.Group{
		ID:         id,
		Name:       name,
		AdminID:    sess.UserID,
		JoinCode:   newJoinCode(),
		SharedLink: newSharedLink(),
		Members: map[string]models.Member{
			sess.UserID: {
				UserID: sess.UserID,
				Alias:  sess.DisplayName + adminAliasSuffix,
			},
		},
	}

	if err := e.store.Write(ctx, groupPath(id), groupDoc(group)); err != nil {
		return models.Group{}, err
	}
	e.log.Info("group created",
		zap.String("group_id", id),
		zap.String("admin_id", sess.UserID),
	)
	return group, nil
}

// ResolveJoinTarget finds the group identified by code among the given
// snapshot: join codes match case-insensitively, shared links exactly.
// The snapshot comes from the caller's groups subscription, so the
// result is only as fresh as the last notification; callers tolerate
// that staleness window and let the store arbitrate the actual join.
func (e *Engine) ResolveJoinTarget(groups []models.Group, code string) (models.Group, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return models.Group{}, ErrInvalidArgument
	}
	for _, g := range groups {
		if g.MatchesCode(code) {
			return g, nil
		}
	}
	return models.Group{}, ErrNotFound
}

// JoinGroup adds the session user to group under a fresh random alias.
// The membership pre-check runs against the caller's snapshot and is
// advisory only: AlreadyMember is a user-facing "already joined"
// outcome, not a guard the write depends on. The write itself touches
// only members/<uid>, so two users joining concurrently land under
// distinct keys and neither clobbers the other, and a duplicate-intent
// write of the same key re-writes the same value harmlessly.
func (e *Engine) JoinGroup(ctx context.Context, sess Session, group models.Group) (models.Member, error) {
	if err := e.gate(sess); err != nil {
		return models.Member{}, err
	}
	if group.ID == "" {
		return models.Member{}, ErrInvalidArgument
	}
	if group.HasMember(sess.UserID) {
		return models.Member{}, ErrAlreadyMember
	}

	member := models.Member{
		UserID: sess.UserID,
		Alias:  newAlias(),
	}
	if err := e.store.Write(ctx, memberPath(group.ID, sess.UserID), memberDoc(member)); err != nil {
		return models.Member{}, err
	}
	e.log.Info("member joined",
		zap.String("group_id", group.ID),
		zap.String("user_id", sess.UserID),
	)
	return member, nil
}

// SendMessage appends a message to group's log. The sender's alias is
// copied from the caller's membership snapshot; when the membership
// entry is still propagating and carries no alias yet, the message is
// tagged Anonymous rather than rejected, keeping messaging available
// during the lag. The store stamps the authoritative send time.
func (e *Engine) SendMessage(ctx context.Context, sess Session, group models.Group, text string) error {
	if err := e.gate(sess); err != nil {
		return err
	}
	if group.ID == "" {
		return ErrInvalidArgument
	}
	text = strings.TrimSpace(e.sanitize.Sanitize(text))
	if text == "" {
		return ErrInvalidArgument
	}
	member, ok := group.Members[sess.UserID]
	if !ok {
		return ErrNotAMember
	}
	alias := member.Alias
	if alias == "" {
		alias = models.AnonymousAlias
	}

	key, err := e.store.Append(ctx, messagesPath(group.ID), messageDoc(group.ID, alias, text))
	if err != nil {
		return err
	}
	e.log.Debug("message appended",
		zap.String("group_id", group.ID),
		zap.String("key", key),
	)
	return nil
}
