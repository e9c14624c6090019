// internal/app/engine/session.go
package engine

// Session carries the identity a caller acts under. It is passed
// explicitly into every operation; the engine never reads ambient
// process state.
type Session struct {
	// UserID is the identity provider's stable opaque identifier.
	UserID string

	// DisplayName seeds the admin alias on group creation. It is
	// fixed at signup.
	DisplayName string

	// IsAdmin grants group creation.
	IsAdmin bool

	// Verified reads the live verification flag. It is a function,
	// not a bool captured at login, because verification can complete
	// out-of-band (the email link in another tab) between sign-in and
	// the call; the gate must see the current state.
	Verified func() bool
}

// gate is the session gate: one synchronous predicate check in front
// of every mutating operation. On failure nothing is written.
func (e *Engine) gate(sess Session) error {
	if sess.UserID == "" || sess.Verified == nil || !sess.Verified() {
		return ErrPermissionDenied
	}
	return nil
}
