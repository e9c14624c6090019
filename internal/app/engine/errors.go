// internal/app/engine/errors.go
package engine

import "errors"

// The operation error taxonomy. Every failure is scoped to the single
// user action that raised it: callers surface one notice and leave
// prior state (selection, history) untouched. None of these are
// retried automatically.
var (
	// ErrPermissionDenied: the session user is not verified, or not an
	// admin where admin is required.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidArgument: empty name, empty message text, empty code,
	// or no group selected.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound: a join code or shared link resolved to nothing.
	ErrNotFound = errors.New("group not found")

	// ErrAlreadyMember is the idempotent short-circuit on join. It is
	// a user-facing "already joined" outcome, not a failure to retry.
	ErrAlreadyMember = errors.New("already a member of this group")

	// ErrNotAMember guards the send path so a message is never
	// mis-authored; the UI normally prevents reaching it.
	ErrNotAMember = errors.New("not a member of this group")
)
