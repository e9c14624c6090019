package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/veil-chat/veil/internal/app/store/rtstore"
	"github.com/veil-chat/veil/internal/app/store/rtstore/redisstore"
)

func newTestStore(t *testing.T) *redisstore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.New(client, zap.NewNop())
}

func TestWriteAndReadBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := rtstore.Doc{
		"name":       "Book Club",
		"created_at": rtstore.ServerTimestamp,
	}
	if err := s.Write(ctx, "groups/g1", doc); err != nil {
		t.Fatalf("write: %v", err)
	}

	snap, err := rtstore.ReadOnce(ctx, s, "groups/g1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if snap["name"] != "Book Club" {
		t.Errorf("name: got %v, want %q", snap["name"], "Book Club")
	}
	if _, ok := snap["created_at"].(time.Time); !ok {
		t.Errorf("created_at not resolved to a time: %T", snap["created_at"])
	}
}

func TestChildPathWriteOverridesParentCopy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	parent := rtstore.Doc{
		"name": "Book Club",
		"members": rtstore.Doc{
			"u1": rtstore.Doc{"alias": "User 1"},
		},
	}
	if err := s.Write(ctx, "groups/g1", parent); err != nil {
		t.Fatalf("write parent: %v", err)
	}
	if err := s.Write(ctx, "groups/g1/members/u2", rtstore.Doc{"alias": "User 2"}); err != nil {
		t.Fatalf("write member: %v", err)
	}

	snap, err := rtstore.ReadOnce(ctx, s, "groups/g1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	members, _ := snap["members"].(rtstore.Doc)
	if members == nil {
		t.Fatalf("members missing: %v", snap)
	}
	if _, ok := members["u1"]; !ok {
		t.Error("member embedded in parent doc lost")
	}
	if _, ok := members["u2"]; !ok {
		t.Error("member written at child path lost")
	}
}

func TestAppendedChildrenAssembleUnderPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	keys := make([]string, 0, 3)
	for _, content := range []string{"one", "two", "three"} {
		key, err := s.Append(ctx, "messages/g1", rtstore.Doc{"content": content})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		keys = append(keys, key)
	}
	for i := 1; i < len(keys); i++ {
		if keys[i] <= keys[i-1] {
			t.Errorf("key %q not after %q", keys[i], keys[i-1])
		}
	}

	snap, err := rtstore.ReadOnce(ctx, s, "messages/g1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(snap) != 3 {
		t.Fatalf("snapshot size: got %d, want 3", len(snap))
	}
	for _, key := range keys {
		if _, ok := snap[key].(rtstore.Doc); !ok {
			t.Errorf("message %q missing from snapshot", key)
		}
	}
}

func TestSubscribeSeesLaterWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch := make(chan rtstore.Doc, 8)
	sub, err := s.Subscribe(ctx, "groups", func(snap rtstore.Doc) { ch <- snap })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Dispose()

	// Initial snapshot (empty store).
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	if err := s.Write(ctx, "groups/g1", rtstore.Doc{"name": "Book Club"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if g1, ok := snap["g1"].(rtstore.Doc); ok && g1["name"] == "Book Club" {
				return
			}
		case <-deadline:
			t.Fatal("change never delivered")
		}
	}
}

func TestUnrelatedPathDoesNotWake(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch := make(chan rtstore.Doc, 8)
	sub, err := s.Subscribe(ctx, "messages/g1", func(snap rtstore.Doc) { ch <- snap })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Dispose()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	if _, err := s.Append(ctx, "messages/g2", rtstore.Doc{"content": "elsewhere"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	select {
	case snap := <-ch:
		t.Errorf("unrelated change delivered: %v", snap)
	case <-time.After(200 * time.Millisecond):
	}
}
