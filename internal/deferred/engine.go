package deferred

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/classhub/internal/conversation"
	"github.com/nfrund/classhub/internal/docstore"
	"github.com/nfrund/classhub/internal/domain"
	"github.com/nfrund/classhub/internal/presence"
	"github.com/nfrund/classhub/internal/pubsub"
)

// DeliveredIDPrefix prefixes the key of every message appended by delivery.
// The key doubles as an idempotency key.
const DeliveredIDPrefix = "deferred-"

// Engine delivers the session user's pending messages when their targets come
// online. Any number of engines for the same sender may run at once; each
// message is delivered at most once because delivery is a conditional batch
// against the persisted status.
type Engine struct {
	store  docstore.Store
	queue  *Queue
	sender domain.Sender
	opts   options
	logger *slog.Logger

	mu       sync.Mutex
	pending  map[string]domain.DeferredMessage
	presence map[domain.UserIdentity]domain.PresenceRecord
	subs     []docstore.Subscription
	started  bool
	// epoch is bumped by Stop so a Start still subscribing can tell it was
	// cancelled.
	epoch uint64
}

// NewEngine creates an engine for sender. Nothing runs until Start.
func NewEngine(store docstore.Store, sender domain.Sender, opts ...Option) *Engine {
	o := newOptions(opts)
	return &Engine{
		store:    store,
		queue:    &Queue{store: store, opts: o, logger: o.logger},
		sender:   sender,
		opts:     o,
		logger:   o.logger.With("sender", sender.UID),
		pending:  make(map[string]domain.DeferredMessage),
		presence: make(map[domain.UserIdentity]domain.PresenceRecord),
	}
}

// Start subscribes to the sender's pending messages and to every presence
// record. Each snapshot of either triggers an evaluation.
func (e *Engine) Start(ctx context.Context) error {
	if err := domain.Validate(e.sender); err != nil {
		return err
	}

	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	epoch := e.epoch
	e.mu.Unlock()

	pendingSub, err := e.queue.WatchPending(ctx, e.sender.UID, func(ctx context.Context, msgs []domain.DeferredMessage) {
		if !e.live(epoch) {
			return
		}
		if _, err := e.HandlePending(ctx, msgs); err != nil {
			e.logger.Warn("Deferred evaluation failed", "trigger", "pending", "error", err)
		}
	})
	if err != nil {
		e.abortStart(epoch)
		return err
	}

	presenceSub, err := e.store.Watch(ctx, docstore.From(domain.CollectionPresence), func(ctx context.Context, snap docstore.Snapshot) {
		if !e.live(epoch) {
			return
		}
		recs, err := presence.DecodeRecords(snap.Docs)
		if err != nil {
			e.logger.Error("Failed to decode presence snapshot", "error", err)
			return
		}
		if _, err := e.HandlePresence(ctx, recs); err != nil {
			e.logger.Warn("Deferred evaluation failed", "trigger", "presence", "error", err)
		}
	})
	if err != nil {
		_ = pendingSub.Close()
		e.abortStart(epoch)
		return domain.StoreError("watch presence", err)
	}

	e.mu.Lock()
	if e.epoch != epoch {
		// Stopped while subscribing.
		e.mu.Unlock()
		_ = pendingSub.Close()
		_ = presenceSub.Close()
		return nil
	}
	e.subs = []docstore.Subscription{pendingSub, presenceSub}
	e.mu.Unlock()

	e.logger.Info("Delivery engine started", "event", "deferred_engine_started")
	return nil
}

// Stop releases both subscriptions. A Start that is still subscribing is
// cancelled as well.
func (e *Engine) Stop() {
	e.mu.Lock()
	subs := e.subs
	e.subs = nil
	e.started = false
	e.epoch++
	e.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	if len(subs) > 0 {
		e.logger.Info("Delivery engine stopped", "event", "deferred_engine_stopped")
	}
}

// live reports whether no Stop happened since the Start that captured epoch.
func (e *Engine) live(epoch uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch == epoch
}

func (e *Engine) abortStart(epoch uint64) {
	e.mu.Lock()
	if e.epoch == epoch {
		e.started = false
	}
	e.mu.Unlock()
}

// HandlePresence replaces the known presence set and evaluates. It returns
// the number of messages this call delivered.
func (e *Engine) HandlePresence(ctx context.Context, recs []domain.PresenceRecord) (int, error) {
	next := make(map[domain.UserIdentity]domain.PresenceRecord, len(recs))
	for _, r := range recs {
		next[r.UID] = r
	}
	e.mu.Lock()
	e.presence = next
	e.mu.Unlock()
	return e.Evaluate(ctx)
}

// HandlePending replaces the known pending set and evaluates. Messages that
// are not pending or not owned by the sender are ignored.
func (e *Engine) HandlePending(ctx context.Context, msgs []domain.DeferredMessage) (int, error) {
	next := make(map[string]domain.DeferredMessage, len(msgs))
	for _, dm := range msgs {
		if dm.Pending() && dm.SenderID == e.sender.UID {
			next[dm.ID] = dm
		}
	}
	e.mu.Lock()
	e.pending = next
	e.mu.Unlock()
	e.opts.metrics.SetPending(len(next))
	return e.Evaluate(ctx)
}

// Evaluate delivers every pending message whose target is effectively online
// now. Liveness is recomputed on every call.
func (e *Engine) Evaluate(ctx context.Context) (int, error) {
	now := e.opts.clock.Now()

	e.mu.Lock()
	var due []domain.DeferredMessage
	for _, dm := range e.pending {
		rec, ok := e.presence[dm.TargetUserID]
		if ok && presence.IsEffectivelyOnline(rec, now, e.opts.window) {
			due = append(due, dm)
		}
	}
	e.mu.Unlock()

	var (
		delivered int
		errs      []error
	)
	for _, dm := range due {
		ok, err := e.Deliver(ctx, dm)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			delivered++
		}
	}
	return delivered, errors.Join(errs...)
}

// Deliver appends dm to the sender/target conversation and marks it sent in
// one atomic batch. It reports false with a nil error when the message was
// already delivered, by this engine or any other.
func (e *Engine) Deliver(ctx context.Context, dm domain.DeferredMessage) (bool, error) {
	if !dm.Pending() {
		return false, nil
	}
	if dm.SenderID != e.sender.UID {
		return false, fmt.Errorf("%w: deferred message %s belongs to %s", domain.ErrForbidden, dm.ID, dm.SenderID)
	}

	now := e.opts.clock.Now().UTC()
	msg := e.deliveredMessage(dm, now)
	msgDoc, err := docstore.Encode(msg)
	if err != nil {
		return false, err
	}

	batch := docstore.NewBatch().
		UpdateIf(domain.CollectionDeferred, dm.ID, "status", string(domain.DeferredPending), docstore.Document{
			"status": string(domain.DeferredSent),
			"sentAt": docstore.FormatTime(now),
		}).
		Create(domain.CollectionMessages, msg.ID, msgDoc)

	err = e.store.Commit(ctx, batch)
	switch {
	case docstore.IsConflict(err):
		e.forget(dm.ID)
		e.opts.metrics.RecordConflict()
		e.logger.Debug("Deferred message already delivered",
			"event", "deferred_delivery_conflict",
			"id", dm.ID,
			"error", fmt.Errorf("%w: %w", domain.ErrDeliveryConflict, err))
		return false, nil
	case err != nil:
		e.opts.metrics.RecordDeliveryError()
		e.logger.Error("Deferred delivery failed", "event", "deferred_delivery_failure", "id", dm.ID, "error", err)
		return false, domain.StoreError("deliver deferred", err)
	}

	e.forget(dm.ID)
	e.opts.metrics.RecordDelivered(now.Sub(dm.CreatedAt))
	e.logger.Info("Deferred message delivered",
		"event", "deferred_delivered",
		"id", dm.ID,
		"target", dm.TargetUserID,
		"chat_id", msg.ChatID)
	e.announce(ctx, dm, msg)
	return true, nil
}

func (e *Engine) deliveredMessage(dm domain.DeferredMessage, now time.Time) domain.Message {
	senderName := e.sender.DisplayName
	if senderName == "" {
		senderName = dm.ScheduledByDisplayName
	}
	return domain.Message{
		ID:                  DeliveredIDPrefix + dm.ID,
		ChatID:              conversation.DeriveKey(dm.SenderID, dm.TargetUserID),
		SenderID:            dm.SenderID,
		SenderDisplayName:   senderName,
		ReceiverID:          dm.TargetUserID,
		ReceiverDisplayName: dm.TargetDisplayName,
		Text:                dm.DeliveredText(),
		MessageType:         domain.MessageTypeText,
		Timestamp:           now,
		IsRead:              false,
		DeferredID:          dm.ID,
	}
}

func (e *Engine) announce(ctx context.Context, dm domain.DeferredMessage, msg domain.Message) {
	if e.opts.publisher == nil {
		return
	}
	name := dm.TargetDisplayName
	if name == "" {
		name = string(dm.TargetUserID)
	}
	payload := Delivered{
		DeferredID:        dm.ID,
		MessageID:         msg.ID,
		ChatID:            msg.ChatID,
		SenderID:          dm.SenderID,
		TargetUserID:      dm.TargetUserID,
		TargetDisplayName: dm.TargetDisplayName,
		Text:              dm.MessageText,
		SentAt:            msg.Timestamp,
		Notice:            fmt.Sprintf("Your scheduled message to %s was sent when they came online.", name),
	}
	if err := pubsub.Publish(ctx, e.opts.publisher, EventMessageDelivered, string(dm.SenderID), payload); err != nil {
		e.logger.Warn("Failed to publish delivery", "id", dm.ID, "error", err)
	}
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}
