// internal/app/engine/subscriptions.go
package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/veil-chat/veil/internal/app/store/rtstore"
	"github.com/veil-chat/veil/internal/domain/models"
)

// FeedState tracks one subscription target through its lifecycle.
type FeedState int

const (
	FeedUnsubscribed FeedState = iota
	FeedSubscribing
	FeedLive
)

// GroupsFunc receives the session user's group list after every
// groups notification.
type GroupsFunc func(groups []models.Group)

// MessagesFunc receives the ordered log of the selected group after
// every messages notification. groupID is empty when the selection
// was cleared.
type MessagesFunc func(groupID string, messages []models.Message)

// Manager owns the live subscriptions behind one client's view: the
// groups feed, established once per session, and at most one messages
// feed for the currently selected group.
//
// Every notification rebuilds the entire visible collection from the
// delivered snapshot. That is O(collection) work per update, accepted
// in exchange for never drifting from store truth; group rosters and
// chat histories are small.
type Manager struct {
	store rtstore.Store
	log   *zap.Logger

	userID     string
	onGroups   GroupsFunc
	onMessages MessagesFunc

	mu          sync.Mutex
	groupsState FeedState
	groupsSub   rtstore.Subscription
	msgsState   FeedState
	msgsSub     rtstore.Subscription
	selected    string
	allGroups   []models.Group
}

// NewManager creates a manager for one user session. Callbacks are
// invoked from subscription goroutines, serialized per feed.
func NewManager(store rtstore.Store, userID string, onGroups GroupsFunc, onMessages MessagesFunc, logger *zap.Logger) *Manager {
	return &Manager{
		store:      store,
		log:        logger,
		userID:     userID,
		onGroups:   onGroups,
		onMessages: onMessages,
	}
}

// Start establishes the groups feed. It lives until Stop; group
// selection never touches it.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.groupsState != FeedUnsubscribed {
		m.mu.Unlock()
		return nil
	}
	m.groupsState = FeedSubscribing
	m.mu.Unlock()

	sub, err := m.store.Subscribe(ctx, groupsRoot, func(snap rtstore.Doc) {
		groups := decodeGroups(snap)

		m.mu.Lock()
		m.allGroups = groups
		m.mu.Unlock()

		m.onGroups(filterMember(groups, m.userID))
	})
	if err != nil {
		m.mu.Lock()
		m.groupsState = FeedUnsubscribed
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.groupsSub = sub
	m.groupsState = FeedLive
	m.mu.Unlock()
	return nil
}

// Groups returns the latest full groups snapshot, including groups
// the user has not joined. Join-code resolution runs against this, so
// it is only as fresh as the last notification.
func (m *Manager) Groups() []models.Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allGroups
}

// Select retargets the messages feed to groupID, or clears it when
// groupID is empty. The previous feed is disposed before the new
// subscription is established, so there is no window in which
// messages from two groups interleave.
func (m *Manager) Select(ctx context.Context, groupID string) error {
	m.mu.Lock()
	if m.selected == groupID && m.msgsState != FeedUnsubscribed {
		m.mu.Unlock()
		return nil
	}
	prev := m.msgsSub
	m.msgsSub = nil
	m.msgsState = FeedUnsubscribed
	m.selected = groupID
	m.mu.Unlock()

	if prev != nil {
		prev.Dispose()
	}
	if groupID == "" {
		m.onMessages("", nil)
		return nil
	}

	m.mu.Lock()
	m.msgsState = FeedSubscribing
	m.mu.Unlock()

	sub, err := m.store.Subscribe(ctx, messagesPath(groupID), func(snap rtstore.Doc) {
		// A notification racing a later Select must not leak into the
		// new target's log.
		m.mu.Lock()
		current := m.selected == groupID
		m.mu.Unlock()
		if !current {
			return
		}
		m.onMessages(groupID, decodeMessages(groupID, snap))
	})
	if err != nil {
		m.mu.Lock()
		m.msgsState = FeedUnsubscribed
		m.selected = ""
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	// Selection may have moved on while the subscription was being
	// established; yield to the winner.
	if m.selected != groupID {
		m.mu.Unlock()
		sub.Dispose()
		return nil
	}
	m.msgsSub = sub
	m.msgsState = FeedLive
	m.mu.Unlock()

	m.log.Debug("messages feed live", zap.String("group_id", groupID))
	return nil
}

// Selected returns the currently selected group id, empty when none.
func (m *Manager) Selected() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

// Stop disposes both feeds. Called at session end (logout or
// connection close).
func (m *Manager) Stop() {
	m.mu.Lock()
	groups, msgs := m.groupsSub, m.msgsSub
	m.groupsSub, m.msgsSub = nil, nil
	m.groupsState, m.msgsState = FeedUnsubscribed, FeedUnsubscribed
	m.selected = ""
	m.mu.Unlock()

	if msgs != nil {
		msgs.Dispose()
	}
	if groups != nil {
		groups.Dispose()
	}
}

func filterMember(groups []models.Group, userID string) []models.Group {
	out := make([]models.Group, 0, len(groups))
	for _, g := range groups {
		if g.HasMember(userID) {
			out = append(out, g)
		}
	}
	return out
}
