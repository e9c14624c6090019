// Package timeouts centralizes the context deadlines used for
// database lookups, so individual call sites don't invent their own.
package timeouts

import "time"

// Ping covers health checks and connectivity verification.
func Ping() time.Duration { return 2 * time.Second }

// Short covers single-document lookups on an indexed key.
func Short() time.Duration { return 3 * time.Second }

// Medium covers multi-document reads and writes.
func Medium() time.Duration { return 10 * time.Second }
