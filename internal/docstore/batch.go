package docstore

import "fmt"

// OpKind identifies a batch operation.
type OpKind int

const (
	// OpCreate inserts a document and fails with ErrAlreadyExists if the key is taken.
	OpCreate OpKind = iota
	// OpSet upserts a document.
	OpSet
	// OpUpdateIf merges changes into an existing document only if Field currently
	// equals Expected; otherwise the batch fails with ErrPreconditionFailed.
	OpUpdateIf
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpSet:
		return "set"
	case OpUpdateIf:
		return "update_if"
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// Op is one write of a Batch.
type Op struct {
	Kind       OpKind
	Collection string
	Key        string
	Doc        Document
	Merge      bool
	Field      string
	Expected   any
}

// Batch groups writes that must commit atomically.
type Batch struct {
	ops []Op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Create queues an insert.
func (b *Batch) Create(collection, key string, doc Document) *Batch {
	b.ops = append(b.ops, Op{Kind: OpCreate, Collection: collection, Key: key, Doc: doc})
	return b
}

// Set queues an upsert.
func (b *Batch) Set(collection, key string, doc Document, merge bool) *Batch {
	b.ops = append(b.ops, Op{Kind: OpSet, Collection: collection, Key: key, Doc: doc, Merge: merge})
	return b
}

// UpdateIf queues a conditional merge, the compare-and-swap primitive.
func (b *Batch) UpdateIf(collection, key, field string, expected any, changes Document) *Batch {
	b.ops = append(b.ops, Op{
		Kind:       OpUpdateIf,
		Collection: collection,
		Key:        key,
		Doc:        changes,
		Merge:      true,
		Field:      field,
		Expected:   expected,
	})
	return b
}

// Ops returns the queued operations in order.
func (b *Batch) Ops() []Op {
	return b.ops
}

// Len returns the number of queued operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Validate checks every operation's names and payload.
func (b *Batch) Validate() error {
	if b == nil || len(b.ops) == 0 {
		return fmt.Errorf("%w: empty batch", ErrInvalidInput)
	}
	for i, op := range b.ops {
		if !ValidIdent(op.Collection) {
			return fmt.Errorf("%w: op %d: collection %q", ErrInvalidInput, i, op.Collection)
		}
		if op.Key == "" {
			return fmt.Errorf("%w: op %d: empty key", ErrInvalidInput, i)
		}
		if op.Doc == nil {
			return fmt.Errorf("%w: op %d: nil document", ErrInvalidInput, i)
		}
		if op.Kind == OpUpdateIf && !ValidIdent(op.Field) {
			return fmt.Errorf("%w: op %d: field %q", ErrInvalidInput, i, op.Field)
		}
	}
	return nil
}
