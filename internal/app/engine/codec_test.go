package engine

import (
	"testing"
	"time"

	"github.com/veil-chat/veil/internal/app/store/rtstore"
)

func TestDecodeGroupsSortsAndSkipsMalformed(t *testing.T) {
	early := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	snap := rtstore.Doc{
		"g-late": rtstore.Doc{
			"name":       "Late",
			"admin_id":   "a1",
			"created_at": late,
		},
		"g-early": rtstore.Doc{
			"name":       "Early",
			"admin_id":   "a1",
			"created_at": early,
		},
		"g-b": rtstore.Doc{"name": "Tie B", "created_at": early},
		"g-a": rtstore.Doc{"name": "Tie A", "created_at": early},
		// A non-document child must not poison the listing.
		"junk": "not a group",
	}

	groups := decodeGroups(snap)
	if len(groups) != 4 {
		t.Fatalf("group count: got %d, want 4", len(groups))
	}

	// Ties on created_at break by id; g-early shares the instant with
	// the tie pair, so the full expected order is by (time, id).
	wantOrder := []string{"g-a", "g-b", "g-early", "g-late"}
	for i, id := range wantOrder {
		if groups[i].ID != id {
			t.Errorf("position %d: got %q, want %q", i, groups[i].ID, id)
		}
	}
}

func TestDecodeGroupMembers(t *testing.T) {
	doc := rtstore.Doc{
		"name":        "Book Club",
		"admin_id":    "a1",
		"join_code":   "ABCD1234",
		"shared_link": "GROUP-123456",
		"members": rtstore.Doc{
			"a1":   rtstore.Doc{"user_id": "a1", "alias": "Dana (Admin)"},
			"u1":   rtstore.Doc{"user_id": "u1", "alias": "User 42"},
			"junk": "not a member",
		},
	}

	g := decodeGroup("g1", doc)
	if g.Name != "Book Club" || g.AdminID != "a1" {
		t.Errorf("decoded header wrong: %+v", g)
	}
	if len(g.Members) != 2 {
		t.Fatalf("member count: got %d, want 2", len(g.Members))
	}
	if g.Members["u1"].Alias != "User 42" {
		t.Errorf("alias: got %q, want %q", g.Members["u1"].Alias, "User 42")
	}
}

func TestDecodeMessagesOrdersByTimestampThenKey(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	snap := rtstore.Doc{
		// Same instant: key order decides.
		"k2": rtstore.Doc{"alias": "A", "content": "second", "timestamp": base},
		"k1": rtstore.Doc{"alias": "A", "content": "first", "timestamp": base},
		// Earlier timestamp wins over later key.
		"k9": rtstore.Doc{"alias": "B", "content": "zeroth", "timestamp": base.Add(-time.Minute)},
		"k3": rtstore.Doc{"alias": "B", "content": "third", "timestamp": base.Add(time.Minute)},
	}

	msgs := decodeMessages("g1", snap)
	want := []string{"zeroth", "first", "second", "third"}
	if len(msgs) != len(want) {
		t.Fatalf("message count: got %d, want %d", len(msgs), len(want))
	}
	for i, content := range want {
		if msgs[i].Content != content {
			t.Errorf("position %d: got %q, want %q", i, msgs[i].Content, content)
		}
	}
	for _, m := range msgs {
		if m.GroupID != "g1" {
			t.Errorf("group id: got %q, want %q", m.GroupID, "g1")
		}
	}
}

func TestPathHelpers(t *testing.T) {
	if got := groupPath("g1"); got != "groups/g1" {
		t.Errorf("group path: got %q", got)
	}
	if got := memberPath("g1", "u1"); got != "groups/g1/members/u1" {
		t.Errorf("member path: got %q", got)
	}
	if got := messagesPath("g1"); got != "messages/g1" {
		t.Errorf("messages path: got %q", got)
	}
}
