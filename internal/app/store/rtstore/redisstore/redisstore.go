// internal/app/store/rtstore/redisstore/redisstore.go

// Package redisstore implements rtstore on Redis. Documents live as
// JSON strings under "doc:<path>" keys; change notification rides a
// single pub/sub channel carrying the changed path, and every
// subscriber reassembles its snapshot from the keyspace on each
// notification (full-replace, no diffing).
package redisstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/veil-chat/veil/internal/app/store/rtstore"
)

const (
	keyPrefix     = "doc:"
	changeChannel = "rtstore:changes"

	// tsField wraps time values inside the JSON encoding, since JSON
	// has no native date type.
	tsField = "$ts"
)

// Store is a Redis-backed rtstore. All instances pointed at the same
// Redis see each other's writes and notifications, which is what makes
// this backend usable across more than one process.
type Store struct {
	client *redis.Client
	log    *zap.Logger

	mu   sync.Mutex
	subs map[*subscription]struct{}
	seq  uint64
}

// New creates a store on client. The caller owns the client's
// lifecycle.
func New(client *redis.Client, logger *zap.Logger) *Store {
	return &Store{
		client: client,
		log:    logger,
		subs:   make(map[*subscription]struct{}),
	}
}

// ChildID allocates a push key: millisecond clock, a process-local
// sequence, and random tail. Keys sort by allocation time, with the
// sequence keeping one process strictly monotonic inside a
// millisecond.
func (s *Store) ChildID() string {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	var tail [4]byte
	_, _ = rand.Read(tail[:])
	return fmt.Sprintf("%013x%06x%s", time.Now().UnixMilli(), seq&0xffffff, hex.EncodeToString(tail[:]))
}

// Write replaces the document at path and publishes the change.
// Server timestamps resolve against the Redis server clock, not the
// caller's, so all writers share one ordering clock.
func (s *Store) Write(ctx context.Context, path string, doc rtstore.Doc) error {
	now, err := s.client.Time(ctx).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", rtstore.ErrUnavailable, err)
	}
	resolved := rtstore.ResolveTimestamps(doc, now.UTC())

	raw, err := json.Marshal(encodeValue(resolved))
	if err != nil {
		return fmt.Errorf("redisstore: encode %s: %w", path, err)
	}
	if err := s.client.Set(ctx, keyPrefix+path, raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", rtstore.ErrUnavailable, err)
	}
	if err := s.client.Publish(ctx, changeChannel, path).Err(); err != nil {
		return fmt.Errorf("%w: %v", rtstore.ErrUnavailable, err)
	}
	return nil
}

// Append pushes doc under path with a fresh key.
func (s *Store) Append(ctx context.Context, path string, doc rtstore.Doc) (string, error) {
	key := s.ChildID()
	if err := s.Write(ctx, path+"/"+key, doc); err != nil {
		return "", err
	}
	return key, nil
}

// Subscribe registers fn for path. Each subscription runs its own
// pub/sub receiver; a lost connection is retried with replay because
// every notification triggers a full keyspace reread rather than
// applying a delta.
func (s *Store) Subscribe(ctx context.Context, path string, fn rtstore.SnapshotFunc) (rtstore.Subscription, error) {
	pubsub := s.client.Subscribe(ctx, changeChannel)
	// Force the SUBSCRIBE round trip so no notification published
	// after this point is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: %v", rtstore.ErrUnavailable, err)
	}

	sub := &subscription{
		store:  s,
		path:   path,
		fn:     fn,
		pubsub: pubsub,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	snap, err := s.snapshot(ctx, path)
	if err != nil {
		sub.Dispose()
		return nil, err
	}
	fn(snap)

	go sub.receive()
	go sub.deliver()
	return sub, nil
}

// snapshot assembles the subtree at path: values embedded in ancestor
// documents first, then the document at the path itself, then
// descendant documents, each layer overriding the previous. Child-path
// writes therefore always win over the stale copy inside a parent
// document, which is what makes concurrent member adds commutative.
func (s *Store) snapshot(ctx context.Context, path string) (rtstore.Doc, error) {
	root := rtstore.Doc{}
	found := false

	segs := strings.Split(path, "/")
	for i := 1; i < len(segs); i++ {
		ancestor := strings.Join(segs[:i], "/")
		doc, ok, err := s.get(ctx, ancestor)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if embedded, ok := dig(doc, segs[i:]); ok {
			merge(root, embedded)
			found = true
		}
	}

	if doc, ok, err := s.get(ctx, path); err != nil {
		return nil, err
	} else if ok {
		merge(root, doc)
		found = true
	}

	iter := s.client.Scan(ctx, 0, keyPrefix+path+"/*", 0).Iterator()
	for iter.Next(ctx) {
		rel := strings.TrimPrefix(iter.Val(), keyPrefix+path+"/")
		doc, ok, err := s.get(ctx, path+"/"+rel)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		setAt(root, strings.Split(rel, "/"), doc)
		found = true
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", rtstore.ErrUnavailable, err)
	}

	if !found {
		return nil, nil
	}
	return root, nil
}

func (s *Store) get(ctx context.Context, path string) (rtstore.Doc, bool, error) {
	raw, err := s.client.Get(ctx, keyPrefix+path).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", rtstore.ErrUnavailable, err)
	}
	var generic map[string]any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil, false, fmt.Errorf("redisstore: decode %s: %w", path, err)
	}
	doc, _ := decodeValue(generic).(rtstore.Doc)
	return doc, true, nil
}

func (s *Store) remove(sub *subscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

type subscription struct {
	store  *Store
	path   string
	fn     rtstore.SnapshotFunc
	pubsub *redis.PubSub

	wake    chan struct{}
	done    chan struct{}
	dispose sync.Once
	flight  sync.Mutex
}

// receive turns relevant change notifications into wakeups. Multiple
// notifications between deliveries collapse into one reread.
func (sub *subscription) receive() {
	ch := sub.pubsub.Channel()
	for msg := range ch {
		changed := msg.Payload
		if !rtstore.Within(changed, sub.path) && !rtstore.Within(sub.path, changed) {
			continue
		}
		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
}

func (sub *subscription) deliver() {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.wake:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		snap, err := sub.store.snapshot(ctx, sub.path)
		cancel()
		if err != nil {
			sub.store.log.Warn("snapshot reread failed, keeping last view",
				zap.String("path", sub.path), zap.Error(err))
			continue
		}
		sub.flight.Lock()
		select {
		case <-sub.done:
			sub.flight.Unlock()
			return
		default:
		}
		sub.fn(snap)
		sub.flight.Unlock()
	}
}

// Dispose detaches the subscription and closes its pub/sub receiver.
func (sub *subscription) Dispose() {
	sub.dispose.Do(func() {
		sub.store.remove(sub)
		close(sub.done)
		_ = sub.pubsub.Close()
		// Wait for an in-flight callback.
		sub.flight.Lock()
		defer sub.flight.Unlock()
	})
}

// encodeValue maps a Doc onto plain JSON types, wrapping time values
// so they survive the round trip.
func encodeValue(v any) any {
	switch val := v.(type) {
	case rtstore.Doc:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = encodeValue(child)
		}
		return out
	case time.Time:
		return map[string]any{tsField: val.UTC().Format(time.RFC3339Nano)}
	default:
		return v
	}
}

func decodeValue(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if raw, ok := m[tsField].(string); ok && len(m) == 1 {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return ts
		}
	}
	out := make(rtstore.Doc, len(m))
	for k, child := range m {
		out[k] = decodeValue(child)
	}
	return out
}

// dig walks doc down the given segments.
func dig(doc rtstore.Doc, segs []string) (rtstore.Doc, bool) {
	node := doc
	for _, seg := range segs {
		child, ok := node[seg].(rtstore.Doc)
		if !ok {
			return nil, false
		}
		node = child
	}
	return node, true
}

// merge copies src into dst, recursing where both sides are documents.
func merge(dst, src rtstore.Doc) {
	for k, v := range src {
		if sv, ok := v.(rtstore.Doc); ok {
			if dv, ok := dst[k].(rtstore.Doc); ok {
				merge(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
}

// setAt installs doc at the relative segments, creating intermediates.
func setAt(root rtstore.Doc, segs []string, doc rtstore.Doc) {
	node := root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg].(rtstore.Doc)
		if !ok {
			child = rtstore.Doc{}
			node[seg] = child
		}
		node = child
	}
	last := segs[len(segs)-1]
	if existing, ok := node[last].(rtstore.Doc); ok {
		merge(existing, doc)
		return
	}
	node[last] = doc
}
