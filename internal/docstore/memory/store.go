// Package memory is an in-process docstore.Store. It backs tests and the
// single-process CLI mode, and it honours the same atomicity and live query
// ordering guarantees as the SurrealDB store.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/nfrund/classhub/internal/docstore"
)

// Store keeps collections in maps guarded by a single mutex. Every commit is
// therefore serialized, which is what makes UpdateIf a true compare-and-swap.
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]docstore.Document
	subs        map[string]*subscription
	closed      bool
	logger      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]docstore.Document),
		subs:        make(map[string]*subscription),
		logger:      slog.Default().With("service", "docstore.memory"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ docstore.Store = (*Store)(nil)

// change records one document transition for live query fan-out.
type change struct {
	collection string
	before     docstore.Document
	after      docstore.Document
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, collection, key string, doc docstore.Document, merge bool) error {
	return s.Commit(ctx, docstore.NewBatch().Set(collection, key, doc, merge))
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, key string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, docstore.ErrClosed
	}
	doc, ok := s.collections[collection][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", docstore.ErrNotFound, collection, key)
	}
	return doc.Clone(), nil
}

// Delete implements docstore.Store.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}
	before, ok := s.collections[collection][key]
	if !ok {
		return nil
	}
	delete(s.collections[collection], key)
	s.notifyLocked([]change{{collection: collection, before: before}})
	return nil
}

// Find implements docstore.Store.
func (s *Store) Find(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, docstore.ErrClosed
	}
	return s.resultLocked(q), nil
}

// Commit implements docstore.Store. Operations are staged against an overlay and
// only published once every precondition has held.
func (s *Store) Commit(ctx context.Context, b *docstore.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}

	type ref struct{ collection, key string }
	staged := make(map[ref]docstore.Document)
	order := make([]ref, 0, b.Len())
	current := func(r ref) (docstore.Document, bool) {
		if d, ok := staged[r]; ok {
			return d, true
		}
		d, ok := s.collections[r.collection][r.key]
		return d, ok
	}

	for i, op := range b.Ops() {
		r := ref{op.Collection, op.Key}
		existing, exists := current(r)

		var next docstore.Document
		switch op.Kind {
		case docstore.OpCreate:
			if exists {
				return fmt.Errorf("%w: op %d: %s:%s", docstore.ErrAlreadyExists, i, op.Collection, op.Key)
			}
			next = normalized(op.Doc)
		case docstore.OpSet:
			if op.Merge && exists {
				next = merged(existing, op.Doc)
			} else {
				next = normalized(op.Doc)
			}
		case docstore.OpUpdateIf:
			if !exists {
				return fmt.Errorf("%w: op %d: %s:%s does not exist", docstore.ErrPreconditionFailed, i, op.Collection, op.Key)
			}
			if docstore.Compare(existing[op.Field], op.Expected) != 0 {
				return fmt.Errorf("%w: op %d: %s:%s %s=%v", docstore.ErrPreconditionFailed, i, op.Collection, op.Key, op.Field, existing[op.Field])
			}
			next = merged(existing, op.Doc)
		default:
			return fmt.Errorf("%w: op %d: unknown kind %v", docstore.ErrInvalidInput, i, op.Kind)
		}
		next[docstore.KeyField] = op.Key

		if _, seen := staged[r]; !seen {
			order = append(order, r)
		}
		staged[r] = next
	}

	changes := make([]change, 0, len(order))
	for _, r := range order {
		coll := s.collections[r.collection]
		if coll == nil {
			coll = make(map[string]docstore.Document)
			s.collections[r.collection] = coll
		}
		before := coll[r.key]
		coll[r.key] = staged[r]
		changes = append(changes, change{collection: r.collection, before: before, after: staged[r]})
	}
	s.notifyLocked(changes)
	return nil
}

// Watch implements docstore.Store.
func (s *Store) Watch(ctx context.Context, q docstore.Query, h docstore.Handler) (docstore.Subscription, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: handler cannot be nil", docstore.ErrInvalidInput)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, docstore.ErrClosed
	}

	sub := &subscription{
		id:    uuid.NewString(),
		query: q,
		store: s,
	}
	sub.dispatch = docstore.NewDispatcher(h, s.logger.With("subID", sub.id))
	s.subs[sub.id] = sub
	sub.enqueue(docstore.Snapshot{Docs: s.resultLocked(q), Initial: true})

	// Cancelling the caller's context releases the subscription as well.
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.dispatch.Done():
		}
	}()

	s.logger.Debug("Live query registered", "subID", sub.id, "query", q.String())
	return sub, nil
}

// Close implements docstore.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

// Len returns the number of documents in collection.
func (s *Store) Len(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collection])
}

func (s *Store) resultLocked(q docstore.Query) []docstore.Document {
	coll := s.collections[q.Collection]
	docs := make([]docstore.Document, 0, len(coll))
	for _, d := range coll {
		docs = append(docs, d.Clone())
	}
	return q.Apply(docs)
}

// notifyLocked enqueues a fresh snapshot for every subscription whose result set
// the changes touch. Enqueueing under the store lock keeps snapshots in commit order.
func (s *Store) notifyLocked(changes []change) {
	for _, sub := range s.subs {
		for _, c := range changes {
			if c.collection != sub.query.Collection {
				continue
			}
			if (c.before != nil && sub.query.Matches(c.before)) || (c.after != nil && sub.query.Matches(c.after)) {
				sub.enqueue(docstore.Snapshot{Docs: s.resultLocked(sub.query)})
				break
			}
		}
	}
}

func (s *Store) removeSub(id string) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

func normalized(doc docstore.Document) docstore.Document {
	out := make(docstore.Document, len(doc)+1)
	for k, v := range doc {
		out[k] = docstore.Normalize(v)
	}
	return out
}

func merged(base, changes docstore.Document) docstore.Document {
	out := base.Clone()
	for k, v := range changes {
		out[k] = docstore.Normalize(v)
	}
	return out
}
