// internal/domain/models/message.go
package models

import "time"

// AnonymousAlias is the sender label used when a message is sent
// before the sender's membership write has propagated to the local
// snapshot. Messaging stays available during that lag instead of
// rejecting the send.
const AnonymousAlias = "Anonymous"

// Message is one immutable entry in a group's append-only log. The ID
// is the store-assigned push key and Timestamp is the store's clock at
// write time, so the pair (Timestamp, ID) totally orders the log for
// one group regardless of sender clock skew.
//
// Alias is copied from the sender's membership entry at send time.
// The denormalization is deliberate: history stays readable even if
// membership data changes later, and it is safe because aliases are
// immutable once assigned.
type Message struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	Alias     string    `json:"alias"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Before reports whether m sorts ahead of other in the log order:
// server timestamp ascending, store key ascending on ties. Two
// messages can share a timestamp at the same logical millisecond, so
// the key tiebreak is what makes the order total.
func (m Message) Before(other Message) bool {
	if !m.Timestamp.Equal(other.Timestamp) {
		return m.Timestamp.Before(other.Timestamp)
	}
	return m.ID < other.ID
}
