// internal/domain/models/group.go
package models

import (
	"strings"
	"time"
)

// Group is a chat group as read back from the realtime store. Every
// Group value held in memory is a cache of the store document at
// groups/<ID>; the next subscription notification replaces it
// wholesale.
//
// Invariant: AdminID is a key in Members from the moment the group is
// written. Creation writes the admin member inside the same document,
// so no observer ever sees a group without its creator.
type Group struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	AdminID    string            `json:"admin_id"`
	JoinCode   string            `json:"join_code"`
	SharedLink string            `json:"shared_link"`
	Members    map[string]Member `json:"members"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Member is one entry in a group's membership map. Alias is assigned
// once, at join or at creation for the admin, and never mutated;
// messages sent under an alias stay attributed to it forever.
type Member struct {
	UserID string `json:"user_id"`
	Alias  string `json:"alias"`
}

// HasMember reports whether userID is in the membership map.
func (g Group) HasMember(userID string) bool {
	_, ok := g.Members[userID]
	return ok
}

// MatchesCode reports whether code identifies this group, either as
// the join code (case-insensitive) or the shared link (exact).
func (g Group) MatchesCode(code string) bool {
	return strings.EqualFold(code, g.JoinCode) || code == g.SharedLink
}
