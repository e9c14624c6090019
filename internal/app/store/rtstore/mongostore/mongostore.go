// internal/app/store/rtstore/mongostore/mongostore.go

// Package mongostore implements rtstore on MongoDB. Each written path
// is one document in the rtdocs collection, keyed by the path string;
// server timestamps come from $currentDate so ordering always uses the
// Mongo server clock; and change notification uses a single change
// stream per Store, fanned out to subscriptions.
//
// Change streams require a replica set (a single-node replica set is
// fine for development).
package mongostore

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/veil-chat/veil/internal/app/store/rtstore"
)

const collectionName = "rtdocs"

// watchRetryDelay is the pause before reopening a failed change
// stream. Reopening replays from the resume token, so subscribers
// miss nothing; they just see it late.
const watchRetryDelay = 2 * time.Second

// Store is a MongoDB-backed rtstore.
type Store struct {
	c   *mongo.Collection
	log *zap.Logger

	mu       sync.Mutex
	subs     map[*subscription]struct{}
	watching bool
	stop     context.CancelFunc
}

// New creates a store on db. The change stream is opened lazily on
// the first subscription.
func New(db *mongo.Database, logger *zap.Logger) *Store {
	return &Store{
		c:    db.Collection(collectionName),
		log:  logger,
		subs: make(map[*subscription]struct{}),
	}
}

// ChildID allocates a push key. ObjectIDs lead with a second-level
// timestamp and a process counter, so keys sort in allocation order.
func (s *Store) ChildID() string {
	return primitive.NewObjectID().Hex()
}

// Write upserts the document at path. ServerTimestamp markers become
// $currentDate fields, stamped by the Mongo server at commit time.
func (s *Store) Write(ctx context.Context, path string, doc rtstore.Doc) error {
	set := bson.M{"doc": toBSON(rtstore.StripTimestamps(doc))}
	update := bson.M{"$set": set}

	if tsPaths := rtstore.TimestampPaths(doc); len(tsPaths) > 0 {
		current := bson.M{}
		for _, p := range tsPaths {
			current["doc."+p] = true
		}
		update["$currentDate"] = current
	}

	opts := options.Update().SetUpsert(true)
	if _, err := s.c.UpdateOne(ctx, bson.M{"_id": path}, update, opts); err != nil {
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

// Subscribe registers fn for path and ensures the collection watcher
// is running.
func (s *Store) Subscribe(ctx context.Context, path string, fn rtstore.SnapshotFunc) (rtstore.Subscription, error) {
	sub := &subscription{
		store: s,
		path:  path,
		fn:    fn,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	if !s.watching {
		watchCtx, cancel := context.WithCancel(context.Background())
		s.stop = cancel
		s.watching = true
		go s.watch(watchCtx)
	}
	s.mu.Unlock()

	snap, err := s.snapshot(ctx, path)
	if err != nil {
		sub.Dispose()
		return nil, err
	}
	fn(snap)

	go sub.deliver()
	return sub, nil
}

// Close stops the collection watcher. In-flight subscriptions stop
// receiving updates; callers dispose them independently.
func (s *Store) Close() {
	s.mu.Lock()
	if s.stop != nil {
		s.stop()
	}
	s.watching = false
	s.mu.Unlock()
}

// watch runs the change stream and wakes affected subscriptions. The
// stream is reopened from its resume token after any error.
func (s *Store) watch(ctx context.Context) {
	var resume bson.Raw
	for ctx.Err() == nil {
		opts := options.ChangeStream()
		if resume != nil {
			opts.SetResumeAfter(resume)
		}
		stream, err := s.c.Watch(ctx, mongo.Pipeline{}, opts)
		if err != nil {
			s.log.Warn("change stream open failed", zap.Error(err))
			sleep(ctx, watchRetryDelay)
			continue
		}
		for stream.Next(ctx) {
			resume = stream.ResumeToken()
			var event struct {
				DocumentKey struct {
					ID string `bson:"_id"`
				} `bson:"documentKey"`
			}
			if err := stream.Decode(&event); err != nil {
				continue
			}
			s.fanout(event.DocumentKey.ID)
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			s.log.Warn("change stream interrupted, resuming", zap.Error(err))
		}
		_ = stream.Close(context.Background())
		sleep(ctx, watchRetryDelay)
	}
}

func (s *Store) fanout(changed string) {
	s.mu.Lock()
	for sub := range s.subs {
		if rtstore.Within(changed, sub.path) || rtstore.Within(sub.path, changed) {
			select {
			case sub.wake <- struct{}{}:
			default:
			}
		}
	}
	s.mu.Unlock()
}

// snapshot assembles the subtree at path from ancestor documents, the
// exact document, and descendant documents, in that override order.
func (s *Store) snapshot(ctx context.Context, path string) (rtstore.Doc, error) {
	root := rtstore.Doc{}
	found := false

	segs := strings.Split(path, "/")
	var ancestors []string
	for i := 1; i < len(segs); i++ {
		ancestors = append(ancestors, strings.Join(segs[:i], "/"))
	}
	if len(ancestors) > 0 {
		cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ancestors}})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", rtstore.ErrUnavailable, err)
		}
		docs, err := drain(ctx, cur)
		if err != nil {
			return nil, err
		}
		// Closest ancestor last, so deeper documents override.
		for i := 1; i < len(segs); i++ {
			ancestor := strings.Join(segs[:i], "/")
			doc, ok := docs[ancestor]
			if !ok {
				continue
			}
			if embedded, ok := dig(doc, segs[i:]); ok {
				merge(root, embedded)
				found = true
			}
		}
	}

	pattern := "^" + regexp.QuoteMeta(path) + "(/|$)"
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$regex": pattern}})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rtstore.ErrUnavailable, err)
	}
	docs, err := drain(ctx, cur)
	if err != nil {
		return nil, err
	}
	if doc, ok := docs[path]; ok {
		merge(root, doc)
		found = true
	}
	for id, doc := range docs {
		if id == path {
			continue
		}
		rel := strings.TrimPrefix(id, path+"/")
		setAt(root, strings.Split(rel, "/"), doc)
		found = true
	}

	if !found {
		return nil, nil
	}
	return root, nil
}

func drain(ctx context.Context, cur *mongo.Cursor) (map[string]rtstore.Doc, error) {
	defer cur.Close(ctx)
	out := make(map[string]rtstore.Doc)
	for cur.Next(ctx) {
		var row struct {
			ID  string `bson:"_id"`
			Doc bson.M `bson:"doc"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, fmt.Errorf("mongostore: decode %s: %w", row.ID, err)
		}
		doc, _ := fromBSON(row.Doc).(rtstore.Doc)
		out[row.ID] = doc
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", rtstore.ErrUnavailable, err)
	}
	return out, nil
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

	wake    chan struct{}
	done    chan struct{}
	dispose sync.Once
	flight  sync.Mutex
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

// Dispose detaches the subscription.
func (sub *subscription) Dispose() {
	sub.dispose.Do(func() {
		sub.store.remove(sub)
		close(sub.done)
		sub.flight.Lock()
		defer sub.flight.Unlock()
	})
}

// toBSON converts a Doc into bson.M for storage.
func toBSON(v any) any {
	switch val := v.(type) {
	case rtstore.Doc:
		out := bson.M{}
		for k, child := range val {
			out[k] = toBSON(child)
		}
		return out
	default:
		return v
	}
}

// fromBSON normalizes decoded BSON back into Doc form, with dates as
// time.Time.
func fromBSON(v any) any {
	switch val := v.(type) {
	case bson.M:
		out := make(rtstore.Doc, len(val))
		for k, child := range val {
			out[k] = fromBSON(child)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC()
	default:
		return v
	}
}

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

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
