package docstore

import (
	"context"
	"time"
)

// Observer receives the duration and outcome of every store call.
type Observer interface {
	ObserveStoreOperation(operation, collection string, d time.Duration, err error)
}

type instrumented struct {
	Store
	obs Observer
}

// Instrument wraps s so that every call is reported to obs.
func Instrument(s Store, obs Observer) Store {
	if obs == nil {
		return s
	}
	return &instrumented{Store: s, obs: obs}
}

func (i *instrumented) observe(op, collection string, start time.Time, err error) {
	i.obs.ObserveStoreOperation(op, collection, time.Since(start), err)
}

func (i *instrumented) Set(ctx context.Context, collection, key string, doc Document, merge bool) error {
	start := time.Now()
	err := i.Store.Set(ctx, collection, key, doc, merge)
	i.observe("set", collection, start, err)
	return err
}

func (i *instrumented) Get(ctx context.Context, collection, key string) (Document, error) {
	start := time.Now()
	doc, err := i.Store.Get(ctx, collection, key)
	i.observe("get", collection, start, err)
	return doc, err
}

func (i *instrumented) Delete(ctx context.Context, collection, key string) error {
	start := time.Now()
	err := i.Store.Delete(ctx, collection, key)
	i.observe("delete", collection, start, err)
	return err
}

func (i *instrumented) Find(ctx context.Context, q Query) ([]Document, error) {
	start := time.Now()
	docs, err := i.Store.Find(ctx, q)
	i.observe("find", q.Collection, start, err)
	return docs, err
}

func (i *instrumented) Watch(ctx context.Context, q Query, h Handler) (Subscription, error) {
	start := time.Now()
	sub, err := i.Store.Watch(ctx, q, h)
	i.observe("watch", q.Collection, start, err)
	return sub, err
}

func (i *instrumented) Commit(ctx context.Context, b *Batch) error {
	start := time.Now()
	err := i.Store.Commit(ctx, b)
	collection := "batch"
	if b != nil && b.Len() > 0 {
		collection = b.Ops()[0].Collection
	}
	i.observe("commit", collection, start, err)
	return err
}
