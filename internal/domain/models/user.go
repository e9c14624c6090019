// internal/domain/models/user.go
package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AdminMarker is the substring of an email address that makes the
// account an admin. Admin status is derived, never stored, so a user
// record can never disagree with its own email.
const AdminMarker = "admin"

// User is an account in the identity layer. The realtime engine never
// reads this struct directly; it only sees the opaque user ID and the
// live verified flag carried on an engine session.
//
// DisplayName is fixed at signup. It seeds the admin alias when the
// user creates a group and is never updated afterward, even if the
// user later signs in with different profile data.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	DisplayName  string             `bson:"display_name" json:"display_name"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	Verified     bool               `bson:"verified" json:"verified"`
	VerifiedAt   *time.Time         `bson:"verified_at,omitempty" json:"verified_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// IsAdmin reports whether the account may create groups.
func (u User) IsAdmin() bool {
	return strings.Contains(strings.ToLower(u.Email), AdminMarker)
}
