// internal/app/system/limits/limits.go
package limits

// Request body size limits.
// These limits help prevent memory exhaustion from oversized requests.
const (
	// MaxJSONBody is the maximum size for JSON API request bodies.
	// The largest legitimate payload is a chat message.
	MaxJSONBody = 64 << 10 // 64 KB
)
