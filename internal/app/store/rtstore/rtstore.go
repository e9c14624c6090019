// internal/app/store/rtstore/rtstore.go

// Package rtstore defines the contract for the shared key-path
// document store that backs the realtime engine.
//
// The store is organized as a tree of slash-separated paths
// ("groups/<id>/members/<uid>"). Three write primitives exist: a full
// atomic overwrite of the document at a path, used only for brand-new
// documents and single-field child paths; a push-style append that
// returns a monotonically sortable key; and nothing else. There is
// no read-modify-write of whole documents; every mutation is scoped
// to its own path, so concurrent writers never clobber each other.
//
// Reads are push-based. Subscribe delivers the current snapshot at a
// path immediately and again after every change at or below it. A
// snapshot is the complete subtree (full-replace semantics, not a
// diff); consumers rebuild their view from it each time and therefore
// never drift from store truth.
//
// Three backends implement the contract: memstore (in-process, used by
// tests and dev mode), redisstore (Redis keyspace plus pub/sub
// invalidation), and mongostore (MongoDB change streams, the
// production default).
package rtstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrUnavailable is surfaced when the backend cannot be reached. Live
// subscriptions do not surface it to consumers; backends resubscribe
// internally with replay. One-shot operations return it to the caller,
// who treats it as a single failed user action, never a retry loop.
var ErrUnavailable = errors.New("rtstore: store unavailable")

// Doc is a document snapshot: nested Docs at interior paths, and
// string, bool, numeric, or time.Time values at the leaves. Backends
// normalize their native date encodings to time.Time before delivery.
type Doc = map[string]any

// serverTimestamp is the write-time clock marker.
type serverTimestamp struct{}

// ServerTimestamp marks a field to be resolved to the store's own
// clock when the write commits. Callers never stamp wall time
// themselves; all ordering derives from the store clock so sender
// clock skew cannot reorder a log.
var ServerTimestamp = serverTimestamp{}

// SnapshotFunc receives snapshots for a subscribed path. A nil Doc
// means nothing exists at the path. Calls for one subscription are
// serialized; a slow consumer sees coalesced snapshots (latest wins),
// never interleaved ones.
type SnapshotFunc func(snapshot Doc)

// Subscription is a live change feed for one path.
type Subscription interface {
	// Dispose stops delivery. It is safe to call more than once.
	// No snapshot is delivered after Dispose returns.
	Dispose()
}

// Store is the backing document store.
type Store interface {
	// ChildID allocates a fresh unique child key. Keys from one store
	// sort in allocation order, which is what makes them usable as the
	// tiebreak in message ordering.
	ChildID() string

	// Write atomically replaces the document at path. Parents are
	// created as needed. Writing the same path with the same value
	// twice is safe and must not disturb sibling paths.
	Write(ctx context.Context, path string, doc Doc) error

	// Append pushes doc under path with a store-allocated key and
	// returns that key.
	Append(ctx context.Context, path string, doc Doc) (string, error)

	// Subscribe registers fn for the path. fn is invoked once with the
	// current snapshot before Subscribe returns delivery control to
	// the caller, then after every change at or below path.
	Subscribe(ctx context.Context, path string, fn SnapshotFunc) (Subscription, error)
}

// Join builds a store path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Within reports whether path is at or below root.
func Within(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+"/")
}

// ResolveTimestamps returns a deep copy of doc with every
// ServerTimestamp marker replaced by now. Backends whose native store
// stamps time itself (mongostore) use TimestampPaths instead.
func ResolveTimestamps(doc Doc, now time.Time) Doc {
	out := make(Doc, len(doc))
	for k, v := range doc {
		switch val := v.(type) {
		case serverTimestamp:
			out[k] = now
		case Doc:
			out[k] = ResolveTimestamps(val, now)
		default:
			out[k] = v
		}
	}
	return out
}

// TimestampPaths returns the dotted field paths of every
// ServerTimestamp marker in doc, for backends that translate markers
// into their own server-side clock primitive.
func TimestampPaths(doc Doc) []string {
	var paths []string
	walkTimestamps(doc, "", &paths)
	return paths
}

func walkTimestamps(doc Doc, prefix string, paths *[]string) {
	for k, v := range doc {
		field := k
		if prefix != "" {
			field = prefix + "." + k
		}
		switch val := v.(type) {
		case serverTimestamp:
			*paths = append(*paths, field)
		case Doc:
			walkTimestamps(val, field, paths)
		}
	}
}

// StripTimestamps returns a deep copy of doc with ServerTimestamp
// markers removed, leaving the fields for the backend to stamp.
func StripTimestamps(doc Doc) Doc {
	out := make(Doc, len(doc))
	for k, v := range doc {
		switch val := v.(type) {
		case serverTimestamp:
			// stamped by the backend
		case Doc:
			out[k] = StripTimestamps(val)
		default:
			out[k] = v
		}
	}
	return out
}

// Clone deep-copies a snapshot so subscribers can hold it without
// aliasing store internals.
func Clone(doc Doc) Doc {
	if doc == nil {
		return nil
	}
	out := make(Doc, len(doc))
	for k, v := range doc {
		if child, ok := v.(Doc); ok {
			out[k] = Clone(child)
		} else {
			out[k] = v
		}
	}
	return out
}

// ReadOnce fetches the current snapshot at path by subscribing for a
// single delivery. It exists for request/response callers (the HTTP
// mutation handlers) that need a point-in-time view; live consumers
// hold a real subscription instead.
func ReadOnce(ctx context.Context, s Store, path string) (Doc, error) {
	ch := make(chan Doc, 1)
	var once sync.Once
	sub, err := s.Subscribe(ctx, path, func(snap Doc) {
		once.Do(func() { ch <- snap })
	})
	if err != nil {
		return nil, err
	}
	defer sub.Dispose()

	select {
	case snap := <-ch:
		return snap, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
