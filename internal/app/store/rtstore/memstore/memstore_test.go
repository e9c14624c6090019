package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/veil-chat/veil/internal/app/store/rtstore"
	"github.com/veil-chat/veil/internal/app/store/rtstore/memstore"
)

func waitSnap(t *testing.T, ch <-chan rtstore.Doc) rtstore.Doc {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	if err := s.Write(ctx, "groups/g1", rtstore.Doc{"name": "Book Club"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	ch := make(chan rtstore.Doc, 8)
	sub, err := s.Subscribe(ctx, "groups/g1", func(snap rtstore.Doc) { ch <- snap })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Dispose()

	snap := waitSnap(t, ch)
	if snap["name"] != "Book Club" {
		t.Errorf("name: got %v, want %q", snap["name"], "Book Club")
	}
}

func TestAppendKeysAllocationOrdered(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	var prev string
	for i := 0; i < 10; i++ {
		key, err := s.Append(ctx, "messages/g1", rtstore.Doc{"content": "hi"})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if prev != "" && key <= prev {
			t.Fatalf("key %q not after %q", key, prev)
		}
		prev = key
	}
}

func TestServerTimestampResolvedByClock(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := memstore.NewWithClock(func() time.Time { return fixed })
	ctx := context.Background()

	if err := s.Write(ctx, "groups/g1", rtstore.Doc{"created_at": rtstore.ServerTimestamp}); err != nil {
		t.Fatalf("write: %v", err)
	}

	ch := make(chan rtstore.Doc, 1)
	sub, err := s.Subscribe(ctx, "groups/g1", func(snap rtstore.Doc) { ch <- snap })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Dispose()

	snap := waitSnap(t, ch)
	got, ok := snap["created_at"].(time.Time)
	if !ok || !got.Equal(fixed) {
		t.Errorf("created_at: got %v, want %v", snap["created_at"], fixed)
	}
}

func TestDescendantWriteNotifiesAncestorSubscription(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	ch := make(chan rtstore.Doc, 8)
	sub, err := s.Subscribe(ctx, "groups", func(snap rtstore.Doc) { ch <- snap })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Dispose()

	waitSnap(t, ch) // initial empty snapshot

	if err := s.Write(ctx, "groups/g1/members/u1", rtstore.Doc{"alias": "User 7"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	snap := waitSnap(t, ch)
	g1, _ := snap["g1"].(rtstore.Doc)
	members, _ := g1["members"].(rtstore.Doc)
	u1, _ := members["u1"].(rtstore.Doc)
	if u1 == nil || u1["alias"] != "User 7" {
		t.Errorf("snapshot missing nested member: %v", snap)
	}
}

func TestAncestorWriteNotifiesDescendantSubscription(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	ch := make(chan rtstore.Doc, 8)
	sub, err := s.Subscribe(ctx, "groups/g1/members/u1", func(snap rtstore.Doc) { ch <- snap })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Dispose()

	waitSnap(t, ch)

	full := rtstore.Doc{
		"name": "Book Club",
		"members": rtstore.Doc{
			"u1": rtstore.Doc{"alias": "User 3"},
		},
	}
	if err := s.Write(ctx, "groups/g1", full); err != nil {
		t.Fatalf("write: %v", err)
	}

	snap := waitSnap(t, ch)
	if snap["alias"] != "User 3" {
		t.Errorf("alias: got %v, want %q", snap["alias"], "User 3")
	}
}

func TestConcurrentMemberWritesBothSurvive(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	done := make(chan struct{}, 2)
	go func() {
		_ = s.Write(ctx, "groups/g1/members/u1", rtstore.Doc{"alias": "User 1"})
		done <- struct{}{}
	}()
	go func() {
		_ = s.Write(ctx, "groups/g1/members/u2", rtstore.Doc{"alias": "User 2"})
		done <- struct{}{}
	}()
	<-done
	<-done

	ch := make(chan rtstore.Doc, 1)
	sub, err := s.Subscribe(ctx, "groups/g1/members", func(snap rtstore.Doc) { ch <- snap })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Dispose()

	snap := waitSnap(t, ch)
	if _, ok := snap["u1"]; !ok {
		t.Error("u1 missing after concurrent writes")
	}
	if _, ok := snap["u2"]; !ok {
		t.Error("u2 missing after concurrent writes")
	}
}

func TestDisposeStopsDeliveries(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	ch := make(chan rtstore.Doc, 8)
	sub, err := s.Subscribe(ctx, "groups", func(snap rtstore.Doc) { ch <- snap })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitSnap(t, ch)

	sub.Dispose()

	if err := s.Write(ctx, "groups/g1", rtstore.Doc{"name": "after"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case snap := <-ch:
		t.Errorf("delivery after dispose: %v", snap)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscriptionIsolation(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	g1 := make(chan rtstore.Doc, 8)
	sub1, err := s.Subscribe(ctx, "messages/g1", func(snap rtstore.Doc) { g1 <- snap })
	if err != nil {
		t.Fatalf("subscribe g1: %v", err)
	}
	defer sub1.Dispose()
	waitSnap(t, g1)

	if _, err := s.Append(ctx, "messages/g2", rtstore.Doc{"content": "other room"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	select {
	case snap := <-g1:
		t.Errorf("g1 subscription saw g2 traffic: %v", snap)
	case <-time.After(100 * time.Millisecond):
	}
}
