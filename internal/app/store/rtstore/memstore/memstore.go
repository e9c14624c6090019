// internal/app/store/rtstore/memstore/memstore.go

// Package memstore is the in-process rtstore backend. It is the
// reference for adapter semantics: engine tests run against it, and
// dev mode uses it so the service comes up with no external backends.
package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/veil-chat/veil/internal/app/store/rtstore"
)

// Store is a single-process document tree with push-based
// subscriptions. All mutations happen under one mutex; deliveries are
// decoupled from writers through per-subscription queues so a slow
// consumer can never block a write.
type Store struct {
	mu      sync.Mutex
	root    rtstore.Doc
	subs    map[*subscription]struct{}
	nextKey uint64
	clock   func() time.Time
}

// New creates an empty store using the wall clock for server
// timestamps.
func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty store with an injected clock. Tests
// inject fixed or stepped clocks to pin down ordering behavior,
// including distinct messages sharing one logical millisecond.
func NewWithClock(clock func() time.Time) *Store {
	return &Store{
		root:  rtstore.Doc{},
		subs:  make(map[*subscription]struct{}),
		clock: clock,
	}
}

// ChildID allocates the next push key. Keys are zero-padded so their
// lexicographic order equals allocation order.
func (s *Store) ChildID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextKey++
	return fmt.Sprintf("k%018d", s.nextKey)
}

// Write replaces the document at path, creating parents as needed,
// and notifies every subscription whose root is an ancestor or
// descendant of path.
func (s *Store) Write(ctx context.Context, path string, doc rtstore.Doc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resolved := rtstore.ResolveTimestamps(doc, s.clock().UTC())

	s.mu.Lock()
	s.setLocked(path, resolved)
	s.notifyLocked(path)
	s.mu.Unlock()
	return nil
}

// Append pushes doc under path with a fresh key.
func (s *Store) Append(ctx context.Context, path string, doc rtstore.Doc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resolved := rtstore.ResolveTimestamps(doc, s.clock().UTC())

	s.mu.Lock()
	s.nextKey++
	key := fmt.Sprintf("k%018d", s.nextKey)
	s.setLocked(path+"/"+key, resolved)
	s.notifyLocked(path + "/" + key)
	s.mu.Unlock()
	return key, nil
}

// Subscribe registers fn for path. The current snapshot is delivered
// before any change notification; deliveries for one subscription are
// serialized and coalesced (latest snapshot wins under backlog).
//
// Dispose must not be called from inside fn.
func (s *Store) Subscribe(ctx context.Context, path string, fn rtstore.SnapshotFunc) (rtstore.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &subscription{
		store: s,
		path:  path,
		fn:    fn,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	sub.offer(rtstore.Clone(s.atLocked(path)))
	s.mu.Unlock()

	go sub.run()
	return sub, nil
}

// setLocked installs doc at path, creating intermediate documents.
// A nil doc deletes the path.
func (s *Store) setLocked(path string, doc rtstore.Doc) {
	segments := strings.Split(path, "/")
	node := s.root
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(rtstore.Doc)
		if !ok {
			child = rtstore.Doc{}
			node[seg] = child
		}
		node = child
	}
	last := segments[len(segments)-1]
	if doc == nil {
		delete(node, last)
		return
	}
	node[last] = doc
}

// atLocked returns the document at path, or nil.
func (s *Store) atLocked(path string) rtstore.Doc {
	node := s.root
	for _, seg := range strings.Split(path, "/") {
		child, ok := node[seg].(rtstore.Doc)
		if !ok {
			return nil
		}
		node = child
	}
	return node
}

// notifyLocked queues fresh snapshots for every subscription affected
// by a change at path: those watching the changed subtree and those
// watching any ancestor of it.
func (s *Store) notifyLocked(path string) {
	for sub := range s.subs {
		if rtstore.Within(path, sub.path) || rtstore.Within(sub.path, path) {
			sub.offer(rtstore.Clone(s.atLocked(sub.path)))
		}
	}
}

func (s *Store) remove(sub *subscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

type subscription struct {
	store *Store
	path  string
	fn    rtstore.SnapshotFunc

	mu      sync.Mutex
	pending rtstore.Doc
	queued  bool

	wake    chan struct{}
	done    chan struct{}
	dispose sync.Once

	// deliver is held while fn runs, so Dispose can wait out an
	// in-flight callback before returning.
	deliver sync.Mutex
}

func (sub *subscription) offer(snap rtstore.Doc) {
	sub.mu.Lock()
	sub.pending = snap
	sub.queued = true
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscription) run() {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.wake:
		}
		for {
			sub.mu.Lock()
			if !sub.queued {
				sub.mu.Unlock()
				break
			}
			snap := sub.pending
			sub.pending = nil
			sub.queued = false
			sub.mu.Unlock()

			sub.deliver.Lock()
			select {
			case <-sub.done:
				sub.deliver.Unlock()
				return
			default:
			}
			sub.fn(snap)
			sub.deliver.Unlock()
		}
	}
}

// Dispose detaches the subscription. When it returns, no further
// snapshot will be delivered.
func (sub *subscription) Dispose() {
	sub.dispose.Do(func() {
		sub.store.remove(sub)
		close(sub.done)
		// Wait for any callback already running.
		sub.deliver.Lock()
		defer sub.deliver.Unlock()
	})
}
