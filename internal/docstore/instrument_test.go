package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type observation struct {
	op, collection string
	failed         bool
}

type recordingObserver struct {
	mu  sync.Mutex
	obs []observation
}

func (r *recordingObserver) ObserveStoreOperation(op, collection string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, observation{op, collection, err != nil})
}

// stubStore fails every call with err.
type stubStore struct {
	Store
	err error
}

func (s stubStore) Set(context.Context, string, string, Document, bool) error { return s.err }
func (s stubStore) Get(context.Context, string, string) (Document, error)     { return nil, s.err }
func (s stubStore) Find(context.Context, Query) ([]Document, error)           { return nil, s.err }
func (s stubStore) Commit(context.Context, *Batch) error                      { return s.err }

func TestInstrument(t *testing.T) {
	rec := &recordingObserver{}
	boom := errors.New("boom")
	s := Instrument(stubStore{err: boom}, rec)
	ctx := context.Background()

	assert.ErrorIs(t, s.Set(ctx, "user_presence", "u1", Document{}, true), boom)
	_, _ = s.Get(ctx, "user_presence", "u1")
	_, _ = s.Find(ctx, From("chat_message"))
	_ = s.Commit(ctx, NewBatch().Create("chat_message", "m1", Document{}))

	assert.Equal(t, []observation{
		{"set", "user_presence", true},
		{"get", "user_presence", true},
		{"find", "chat_message", true},
		{"commit", "chat_message", true},
	}, rec.obs)
}

func TestInstrument_NilObserver(t *testing.T) {
	inner := stubStore{}
	assert.Equal(t, Store(inner), Instrument(inner, nil))
}
