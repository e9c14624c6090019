// Package normalize provides canonical forms for user-entered
// identity fields, applied before storage and lookup so that
// comparisons never depend on how the user typed the value.
package normalize

import "strings"

// Email lowercases and trims an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims a display name, preserving case.
func Name(s string) string {
	return strings.TrimSpace(s)
}
