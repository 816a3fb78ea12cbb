// Package deferred holds messages until their recipient comes online and
// delivers each of them at most once.
package deferred

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nfrund/classhub/internal/docstore"
	"github.com/nfrund/classhub/internal/domain"
	"github.com/nfrund/classhub/internal/presence"
)

// ListFunc receives the full current list on every change.
type ListFunc func(ctx context.Context, msgs []domain.DeferredMessage)

// Queue schedules deferred messages and lists them per sender. Status is only
// ever advanced by the Engine.
type Queue struct {
	store  docstore.Store
	opts   options
	logger *slog.Logger
}

// NewQueue creates a queue over store.
func NewQueue(store docstore.Store, opts ...Option) *Queue {
	o := newOptions(opts)
	return &Queue{store: store, opts: o, logger: o.logger}
}

type scheduleRequest struct {
	SenderID domain.UserIdentity `validate:"notblank"`
	TargetID domain.UserIdentity `validate:"notblank"`
	Text     string              `validate:"notblank"`
}

// Schedule persists a pending message from sender to target. The target must
// have a presence record and must not be the sender.
func (q *Queue) Schedule(ctx context.Context, sender domain.Sender, target domain.UserIdentity, text string) (*domain.DeferredMessage, error) {
	req := scheduleRequest{
		SenderID: sender.UID,
		TargetID: domain.UserIdentity(strings.TrimSpace(string(target))),
		Text:     strings.TrimSpace(text),
	}
	if err := domain.Validate(req); err != nil {
		return nil, err
	}
	if req.TargetID == sender.UID {
		return nil, fmt.Errorf("%w: cannot schedule a message to yourself", domain.ErrValidation)
	}

	doc, err := q.store.Get(ctx, domain.CollectionPresence, string(req.TargetID))
	if errors.Is(err, docstore.ErrNotFound) {
		// An unknown target is bad input as well as a missing record.
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, domain.StoreError("unknown schedule target "+string(req.TargetID), err))
	}
	if err != nil {
		return nil, domain.StoreError("schedule target lookup", err)
	}
	targetRec, err := presence.DecodeRecord(doc)
	if err != nil {
		return nil, err
	}

	dm := &domain.DeferredMessage{
		ID:                     q.opts.newID(),
		SenderID:               sender.UID,
		ScheduledByDisplayName: sender.DisplayName,
		TargetUserID:           req.TargetID,
		TargetDisplayName:      targetRec.DisplayName,
		MessageText:            req.Text,
		Status:                 domain.DeferredPending,
		CreatedAt:              q.opts.clock.Now().UTC(),
	}
	rec, err := docstore.Encode(dm)
	if err != nil {
		return nil, err
	}
	if err := q.store.Commit(ctx, docstore.NewBatch().Create(domain.CollectionDeferred, dm.ID, rec)); err != nil {
		return nil, domain.StoreError("schedule", err)
	}

	q.opts.metrics.RecordScheduled()
	q.logger.Info("Deferred message scheduled",
		"event", "deferred_scheduled",
		"id", dm.ID,
		"sender", dm.SenderID,
		"target", dm.TargetUserID)
	return dm, nil
}

// ListPending returns the sender's pending messages, newest first.
func (q *Queue) ListPending(ctx context.Context, sender domain.UserIdentity) ([]domain.DeferredMessage, error) {
	return q.find(ctx, pendingQuery(sender))
}

// List returns every message the sender scheduled, newest first.
func (q *Queue) List(ctx context.Context, sender domain.UserIdentity) ([]domain.DeferredMessage, error) {
	return q.find(ctx, allQuery(sender))
}

// WatchPending streams the sender's pending messages. The first call replays
// the current set.
func (q *Queue) WatchPending(ctx context.Context, sender domain.UserIdentity, fn ListFunc) (docstore.Subscription, error) {
	return q.watch(ctx, pendingQuery(sender), fn)
}

// Watch streams every message the sender scheduled.
func (q *Queue) Watch(ctx context.Context, sender domain.UserIdentity, fn ListFunc) (docstore.Subscription, error) {
	return q.watch(ctx, allQuery(sender), fn)
}

func (q *Queue) find(ctx context.Context, query docstore.Query) ([]domain.DeferredMessage, error) {
	docs, err := q.store.Find(ctx, query)
	if err != nil {
		return nil, domain.StoreError("list deferred", err)
	}
	return DecodeMessages(docs)
}

func (q *Queue) watch(ctx context.Context, query docstore.Query, fn ListFunc) (docstore.Subscription, error) {
	sub, err := q.store.Watch(ctx, query, func(ctx context.Context, snap docstore.Snapshot) {
		msgs, err := DecodeMessages(snap.Docs)
		if err != nil {
			q.logger.Error("Failed to decode deferred snapshot", "query", query.String(), "error", err)
			return
		}
		fn(ctx, msgs)
	})
	if err != nil {
		return nil, domain.StoreError("watch deferred", err)
	}
	return sub, nil
}

func allQuery(sender domain.UserIdentity) docstore.Query {
	return docstore.From(domain.CollectionDeferred).
		Eq("senderId", string(sender)).
		Order("createdAt", true)
}

func pendingQuery(sender domain.UserIdentity) docstore.Query {
	return allQuery(sender).Eq("status", string(domain.DeferredPending))
}

// DecodeMessages converts stored documents into DeferredMessages.
func DecodeMessages(docs []docstore.Document) ([]domain.DeferredMessage, error) {
	out := make([]domain.DeferredMessage, 0, len(docs))
	for _, doc := range docs {
		dm, err := docstore.Decode[domain.DeferredMessage](doc)
		if err != nil {
			return nil, err
		}
		if dm.ID == "" {
			dm.ID = doc.Key()
		}
		out = append(out, dm)
	}
	return out, nil
}
