// Package docstore defines the document store contract the presence and
// messaging core depends on: keyed upserts, filtered live queries and atomic
// conditional batches.
package docstore

import "context"

// Document is a single stored record. Keys are field names; KeyField carries the
// document key on every read.
type Document map[string]any

// KeyField is the field under which reads expose a document's key.
const KeyField = "id"

// Key returns the document key, or "" when absent.
func (d Document) Key() string {
	k, _ := d[KeyField].(string)
	return k
}

// Clone returns a shallow copy of d.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Snapshot is the full result set of a live query at one point in time.
type Snapshot struct {
	// Docs is ordered by the query's OrderBy.
	Docs []Document
	// Initial is true for the replay delivered when the subscription starts.
	Initial bool
}

// Handler is invoked once per snapshot. Invocations for one subscription are
// serialized and arrive in commit order.
type Handler func(ctx context.Context, snap Snapshot)

// Subscription is a live query registration. Close is idempotent.
type Subscription interface {
	ID() string
	Close() error
}

// Store is the document store contract.
type Store interface {
	// Set upserts doc under key. With merge the given fields are merged into an
	// existing document; otherwise the document is replaced.
	Set(ctx context.Context, collection, key string, doc Document, merge bool) error

	// Get returns the document stored under key or ErrNotFound.
	Get(ctx context.Context, collection, key string) (Document, error)

	// Delete removes the document stored under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, collection, key string) error

	// Find runs a one-shot query.
	Find(ctx context.Context, q Query) ([]Document, error)

	// Watch starts a live query. The handler first receives the current result
	// set (Initial=true) and then one full snapshot per matching change.
	Watch(ctx context.Context, q Query, h Handler) (Subscription, error)

	// Commit applies every operation of the batch atomically or none of them.
	Commit(ctx context.Context, b *Batch) error

	// Close releases the store and all of its subscriptions.
	Close() error
}
