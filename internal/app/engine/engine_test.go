package engine_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/veil-chat/veil/internal/app/engine"
	"github.com/veil-chat/veil/internal/app/store/rtstore"
	"github.com/veil-chat/veil/internal/app/store/rtstore/memstore"
	"github.com/veil-chat/veil/internal/domain/models"
)

// recordingStore wraps a store and counts mutations, so gating tests
// can assert that a denied operation wrote nothing.
type recordingStore struct {
	rtstore.Store

	mu     sync.Mutex
	writes int
}

func (r *recordingStore) Write(ctx context.Context, path string, doc rtstore.Doc) error {
	r.mu.Lock()
	r.writes++
	r.mu.Unlock()
	return r.Store.Write(ctx, path, doc)
}

func (r *recordingStore) Append(ctx context.Context, path string, doc rtstore.Doc) (string, error) {
	r.mu.Lock()
	r.writes++
	r.mu.Unlock()
	return r.Store.Append(ctx, path, doc)
}

func (r *recordingStore) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func adminSession(id, name string) engine.Session {
	return engine.Session{
		UserID:      id,
		DisplayName: name,
		IsAdmin:     true,
		Verified:    func() bool { return true },
	}
}

func memberSession(id, name string) engine.Session {
	return engine.Session{
		UserID:      id,
		DisplayName: name,
		Verified:    func() bool { return true },
	}
}

func TestCreateGroupSeedsAdminMember(t *testing.T) {
	store := memstore.New()
	eng := engine.New(store, zap.NewNop())
	ctx := context.Background()

	group, err := eng.CreateGroup(ctx, adminSession("admin1", "Dana"), "Book Club")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if group.AdminID != "admin1" {
		t.Errorf("admin id: got %q, want %q", group.AdminID, "admin1")
	}
	member, ok := group.Members["admin1"]
	if !ok {
		t.Fatal("admin missing from members")
	}
	if member.Alias != "Dana (Admin)" {
		t.Errorf("admin alias: got %q, want %q", member.Alias, "Dana (Admin)")
	}
	if len(group.JoinCode) != engine.JoinCodeLength {
		t.Errorf("join code length: got %d, want %d", len(group.JoinCode), engine.JoinCodeLength)
	}

	// The group is immediately observable with the member in place.
	got, err := eng.Group(ctx, group.ID)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !got.HasMember("admin1") {
		t.Error("stored group missing admin member")
	}
	if got.CreatedAt.IsZero() {
		t.Error("stored group has no creation timestamp")
	}
}

func TestCreateGroupRequiresAdmin(t *testing.T) {
	eng := engine.New(memstore.New(), zap.NewNop())

	_, err := eng.CreateGroup(context.Background(), memberSession("u1", "Sam"), "Book Club")
	if !errors.Is(err, engine.ErrPermissionDenied) {
		t.Errorf("got %v, want ErrPermissionDenied", err)
	}
}

func TestCreateGroupRejectsEmptyName(t *testing.T) {
	eng := engine.New(memstore.New(), zap.NewNop())

	for _, name := range []string{"", "   ", "<b></b>"} {
		if _, err := eng.CreateGroup(context.Background(), adminSession("a1", "Dana"), name); !errors.Is(err, engine.ErrInvalidArgument) {
			t.Errorf("name %q: got %v, want ErrInvalidArgument", name, err)
		}
	}
}

func TestCreateGroupStripsMarkup(t *testing.T) {
	eng := engine.New(memstore.New(), zap.NewNop())

	group, err := eng.CreateGroup(context.Background(), adminSession("a1", "Dana"), "<b>Book Club</b>")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if group.Name != "Book Club" {
		t.Errorf("name: got %q, want %q", group.Name, "Book Club")
	}
}

func TestGateBlocksUnverifiedWithoutWrites(t *testing.T) {
	store := &recordingStore{Store: memstore.New()}
	eng := engine.New(store, zap.NewNop())
	ctx := context.Background()

	unverified := engine.Session{
		UserID:      "u1",
		DisplayName: "Sam",
		IsAdmin:     true,
		Verified:    func() bool { return false },
	}

	if _, err := eng.CreateGroup(ctx, unverified, "Book Club"); !errors.Is(err, engine.ErrPermissionDenied) {
		t.Errorf("create: got %v, want ErrPermissionDenied", err)
	}
	if _, err := eng.JoinGroup(ctx, unverified, models.Group{ID: "g1"}); !errors.Is(err, engine.ErrPermissionDenied) {
		t.Errorf("join: got %v, want ErrPermissionDenied", err)
	}
	if err := eng.SendMessage(ctx, unverified, models.Group{ID: "g1"}, "hi"); !errors.Is(err, engine.ErrPermissionDenied) {
		t.Errorf("send: got %v, want ErrPermissionDenied", err)
	}

	if n := store.writeCount(); n != 0 {
		t.Errorf("denied operations wrote %d times", n)
	}
}

func TestGateReadsLiveVerifiedState(t *testing.T) {
	eng := engine.New(memstore.New(), zap.NewNop())
	ctx := context.Background()

	verified := false
	sess := engine.Session{
		UserID:      "a1",
		DisplayName: "Dana",
		IsAdmin:     true,
		Verified:    func() bool { return verified },
	}

	if _, err := eng.CreateGroup(ctx, sess, "Book Club"); !errors.Is(err, engine.ErrPermissionDenied) {
		t.Fatalf("before verification: got %v, want ErrPermissionDenied", err)
	}

	verified = true
	if _, err := eng.CreateGroup(ctx, sess, "Book Club"); err != nil {
		t.Fatalf("after verification: %v", err)
	}
}

func TestJoinGroupAssignsRandomAlias(t *testing.T) {
	store := memstore.New()
	eng := engine.New(store, zap.NewNop())
	ctx := context.Background()

	group, err := eng.CreateGroup(ctx, adminSession("a1", "Dana"), "Book Club")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	member, err := eng.JoinGroup(ctx, memberSession("u1", "Sam"), group)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if member.UserID != "u1" {
		t.Errorf("member user id: got %q, want %q", member.UserID, "u1")
	}
	if ok, _ := regexp.MatchString(`^User \d{1,3}$`, member.Alias); !ok {
		t.Errorf("alias %q does not match the generated form", member.Alias)
	}

	got, err := eng.Group(ctx, group.ID)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !got.HasMember("u1") {
		t.Error("joined member not in stored group")
	}
	if !got.HasMember("a1") {
		t.Error("admin member lost by join")
	}
}

func TestJoinGroupAlreadyMember(t *testing.T) {
	store := memstore.New()
	eng := engine.New(store, zap.NewNop())
	ctx := context.Background()

	group, err := eng.CreateGroup(ctx, adminSession("a1", "Dana"), "Book Club")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := eng.JoinGroup(ctx, adminSession("a1", "Dana"), group); !errors.Is(err, engine.ErrAlreadyMember) {
		t.Errorf("got %v, want ErrAlreadyMember", err)
	}
}

func TestConcurrentJoinsBothLand(t *testing.T) {
	store := memstore.New()
	eng := engine.New(store, zap.NewNop())
	ctx := context.Background()

	group, err := eng.CreateGroup(ctx, adminSession("a1", "Dana"), "Book Club")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	for _, uid := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			if _, err := eng.JoinGroup(ctx, memberSession(uid, uid), group); err != nil {
				t.Errorf("join %s: %v", uid, err)
			}
		}(uid)
	}
	wg.Wait()

	got, err := eng.Group(ctx, group.ID)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	for _, uid := range []string{"a1", "u1", "u2"} {
		if !got.HasMember(uid) {
			t.Errorf("member %s missing after concurrent joins", uid)
		}
	}
}

func TestResolveJoinTarget(t *testing.T) {
	eng := engine.New(memstore.New(), zap.NewNop())

	groups := []models.Group{
		{ID: "g1", JoinCode: "ABCD1234", SharedLink: "GROUP-111222"},
		{ID: "g2", JoinCode: "WXYZ9876", SharedLink: "GROUP-333444"},
	}

	cases := []struct {
		name    string
		code    string
		wantID  string
		wantErr error
	}{
		{"exact join code", "ABCD1234", "g1", nil},
		{"case-insensitive join code", "abcd1234", "g1", nil},
		{"padded input", "  WXYZ9876 ", "g2", nil},
		{"shared link", "GROUP-333444", "g2", nil},
		{"shared link is case sensitive", "group-333444", "", engine.ErrNotFound},
		{"unknown code", "NOPE0000", "", engine.ErrNotFound},
		{"empty code", "   ", "", engine.ErrInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := eng.ResolveJoinTarget(groups, tc.code)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("got %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got.ID != tc.wantID {
				t.Errorf("group: got %q, want %q", got.ID, tc.wantID)
			}
		})
	}
}

func TestSendMessageRequiresMembership(t *testing.T) {
	store := memstore.New()
	eng := engine.New(store, zap.NewNop())
	ctx := context.Background()

	group, err := eng.CreateGroup(ctx, adminSession("a1", "Dana"), "Book Club")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := eng.SendMessage(ctx, memberSession("outsider", "Eve"), group, "hi"); !errors.Is(err, engine.ErrNotAMember) {
		t.Errorf("got %v, want ErrNotAMember", err)
	}
}

func TestSendMessageAnonymousFallback(t *testing.T) {
	store := memstore.New()
	eng := engine.New(store, zap.NewNop())
	ctx := context.Background()

	// Membership entry present but with no alias yet, as during
	// propagation of a concurrent join.
	group := models.Group{
		ID: store.ChildID(),
		Members: map[string]models.Member{
			"u1": {UserID: "u1"},
		},
	}

	if err := eng.SendMessage(ctx, memberSession("u1", "Sam"), group, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	snap, err := rtstore.ReadOnce(ctx, store, "messages/"+group.ID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(snap) != 1 {
		t.Fatalf("message count: got %d, want 1", len(snap))
	}
	for _, v := range snap {
		doc := v.(rtstore.Doc)
		if doc["alias"] != models.AnonymousAlias {
			t.Errorf("alias: got %v, want %q", doc["alias"], models.AnonymousAlias)
		}
	}
}

func TestMessagesOrderedByTimestampThenKey(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	store := memstore.NewWithClock(func() time.Time { return now })
	eng := engine.New(store, zap.NewNop())
	ctx := context.Background()

	group, err := eng.CreateGroup(ctx, adminSession("a1", "Dana"), "Book Club")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sess := adminSession("a1", "Dana")

	// Two messages inside the same logical instant, then one later.
	if err := eng.SendMessage(ctx, sess, group, "first"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := eng.SendMessage(ctx, sess, group, "second"); err != nil {
		t.Fatalf("send: %v", err)
	}
	now = base.Add(time.Second)
	if err := eng.SendMessage(ctx, sess, group, "third"); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs, err := eng.Messages(ctx, sess, group.ID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	want := []string{"first", "second", "third"}
	if len(msgs) != len(want) {
		t.Fatalf("message count: got %d, want %d", len(msgs), len(want))
	}
	for i, content := range want {
		if msgs[i].Content != content {
			t.Errorf("position %d: got %q, want %q", i, msgs[i].Content, content)
		}
	}
}

func TestMessagesRequiresMembership(t *testing.T) {
	store := memstore.New()
	eng := engine.New(store, zap.NewNop())
	ctx := context.Background()

	group, err := eng.CreateGroup(ctx, adminSession("a1", "Dana"), "Book Club")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := eng.Messages(ctx, memberSession("outsider", "Eve"), group.ID); !errors.Is(err, engine.ErrNotAMember) {
		t.Errorf("got %v, want ErrNotAMember", err)
	}
}

func TestGroupsForFiltersByMembership(t *testing.T) {
	store := memstore.New()
	eng := engine.New(store, zap.NewNop())
	ctx := context.Background()

	mine, err := eng.CreateGroup(ctx, adminSession("a1", "Dana"), "Mine")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := eng.CreateGroup(ctx, adminSession("a2", "Riley"), "Theirs"); err != nil {
		t.Fatalf("create: %v", err)
	}

	groups, err := eng.GroupsFor(ctx, adminSession("a1", "Dana"))
	if err != nil {
		t.Fatalf("groups for: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != mine.ID {
		t.Errorf("got %d groups, want only %q", len(groups), mine.ID)
	}
}
