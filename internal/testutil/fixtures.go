package testutil

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/veil-chat/veil/internal/app/store/rtstore"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures seeds realtime store state for tests. Documents are
// written through the store's own Write/Append paths so fixtures see
// exactly what production code would.
type Fixtures struct {
	store rtstore.Store
	t     *testing.T
	seq   int
}

// NewFixtures creates a Fixtures instance over the given store.
func NewFixtures(t *testing.T, store rtstore.Store) *Fixtures {
	t.Helper()
	return &Fixtures{store: store, t: t}
}

// Store returns the underlying store for direct access in tests.
func (f *Fixtures) Store() rtstore.Store {
	return f.store
}

// CreateGroup writes a group document and returns its ID. The admin
// is seeded as the first member under the "<name> (Admin)" alias,
// mirroring what group creation produces.
func (f *Fixtures) CreateGroup(ctx context.Context, name, adminID, adminName string) string {
	f.t.Helper()

	f.seq++
	id := f.store.ChildID()
	doc := rtstore.Doc{
		"name":        name,
		"admin_id":    adminID,
		"join_code":   fmt.Sprintf("TEST%04d", f.seq),
		"shared_link": fmt.Sprintf("GROUP-%06d", f.seq),
		"created_at":  rtstore.ServerTimestamp,
		"members": rtstore.Doc{
			adminID: rtstore.Doc{
				"user_id": adminID,
				"alias":   adminName + " (Admin)",
			},
		},
	}
	if err := f.store.Write(ctx, "groups/"+id, doc); err != nil {
		f.t.Fatalf("failed to create test group: %v", err)
	}
	return id
}

// AddMember writes a membership entry for userID under the given alias.
func (f *Fixtures) AddMember(ctx context.Context, groupID, userID, alias string) {
	f.t.Helper()

	path := fmt.Sprintf("groups/%s/members/%s", groupID, userID)
	doc := rtstore.Doc{"user_id": userID, "alias": alias}
	if err := f.store.Write(ctx, path, doc); err != nil {
		f.t.Fatalf("failed to add test member: %v", err)
	}
}

// AddMessage appends a message to the group's log and returns its key.
func (f *Fixtures) AddMessage(ctx context.Context, groupID, alias, content string) string {
	f.t.Helper()

	doc := rtstore.Doc{
		"group_id":  groupID,
		"alias":     alias,
		"content":   content,
		"timestamp": rtstore.ServerTimestamp,
	}
	key, err := f.store.Append(ctx, "messages/"+groupID, doc)
	if err != nil {
		f.t.Fatalf("failed to add test message: %v", err)
	}
	return key
}
