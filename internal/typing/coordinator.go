// Package typing publishes the local user's typing flag per conversation and
// reads back the peer's.
package typing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nfrund/classhub/internal/docstore"
	"github.com/nfrund/classhub/internal/domain"
	"github.com/nfrund/classhub/internal/metrics"
)

// DefaultIdle is how long after the last keystroke the flag is cleared.
const DefaultIdle = 3 * time.Second

type options struct {
	clock   clockwork.Clock
	idle    time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Coordinator.
type Option func(*options)

// WithClock sets the time source for timestamps and the idle timer.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithIdle sets the idle timeout.
func WithIdle(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idle = d
		}
	}
}

// WithMetrics counts typing writes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

type entry struct {
	chatID domain.ConversationKey
	uid    domain.UserIdentity
	timer  clockwork.Timer
	gen    uint64

	// typing is the flag last handed to a write. written is the flag the
	// store last accepted. seq numbers writes; only the newest is applied.
	typing  bool
	written bool
	seq     uint64
	// wmu serializes store writes for this entry. Never taken under
	// Coordinator.mu.
	wmu sync.Mutex
}

// pendingWrite is a write decided under Coordinator.mu and performed after
// it is released.
type pendingWrite struct {
	e        *entry
	seq      uint64
	isTyping bool
}

// Coordinator debounces local input into typing flag writes.
type Coordinator struct {
	store  docstore.Store
	opts   options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
}

// NewCoordinator creates a coordinator. Close it on teardown.
func NewCoordinator(store docstore.Store, opts ...Option) *Coordinator {
	o := options{
		clock:  clockwork.NewRealClock(),
		idle:   DefaultIdle,
		logger: slog.Default().With("service", "typing"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:   store,
		opts:    o,
		logger:  o.logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
	}
}

func validate(chatID domain.ConversationKey, uid domain.UserIdentity) error {
	if strings.TrimSpace(string(chatID)) == "" || strings.TrimSpace(string(uid)) == "" {
		return fmt.Errorf("%w: chat id and user id are required", domain.ErrValidation)
	}
	return nil
}

// SetTyping writes the flag immediately.
func (c *Coordinator) SetTyping(ctx context.Context, chatID domain.ConversationKey, uid domain.UserIdentity, isTyping bool) error {
	if err := validate(chatID, uid); err != nil {
		return err
	}
	c.mu.Lock()
	e := c.entryLocked(chatID, uid)
	if !isTyping {
		c.stopTimerLocked(e)
	}
	w := c.beginWriteLocked(e, isTyping)
	c.mu.Unlock()
	return c.write(ctx, w)
}

// InputChanged reacts to the local input box. Non-empty input marks the user
// typing and restarts the idle timer; empty input clears the flag at once.
func (c *Coordinator) InputChanged(ctx context.Context, chatID domain.ConversationKey, uid domain.UserIdentity, text string) error {
	if err := validate(chatID, uid); err != nil {
		return err
	}
	c.mu.Lock()
	e := c.entryLocked(chatID, uid)

	if strings.TrimSpace(text) == "" {
		c.stopTimerLocked(e)
		if !e.typing {
			c.mu.Unlock()
			return nil
		}
		w := c.beginWriteLocked(e, false)
		c.mu.Unlock()
		return c.write(ctx, w)
	}

	c.stopTimerLocked(e)
	e.gen++
	gen := e.gen
	key := domain.TypingKey(chatID, uid)
	e.timer = c.opts.clock.AfterFunc(c.opts.idle, func() {
		c.expire(key, gen)
	})

	if e.typing {
		c.mu.Unlock()
		return nil
	}
	w := c.beginWriteLocked(e, true)
	c.mu.Unlock()
	return c.write(ctx, w)
}

func (c *Coordinator) expire(key string, gen uint64) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || e.gen != gen || e.timer == nil {
		c.mu.Unlock()
		return
	}
	e.timer = nil
	if !e.typing || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	w := c.beginWriteLocked(e, false)
	c.mu.Unlock()
	if err := c.write(c.ctx, w); err != nil {
		c.logger.Warn("Failed to clear typing flag", "chat_id", e.chatID, "uid", e.uid, "error", err)
	}
}

// Stop clears the flag for one conversation and forgets its timer. Call it when
// the user leaves the conversation.
func (c *Coordinator) Stop(ctx context.Context, chatID domain.ConversationKey, uid domain.UserIdentity) error {
	key := domain.TypingKey(chatID, uid)
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	c.stopTimerLocked(e)
	if !e.typing {
		delete(c.entries, key)
		c.mu.Unlock()
		return nil
	}
	w := c.beginWriteLocked(e, false)
	c.mu.Unlock()

	err := c.write(ctx, w)

	// The entry stays registered while its write is in flight so a new
	// keystroke reuses it and its write order.
	c.mu.Lock()
	if c.entries[key] == e && e.seq == w.seq && !e.typing && e.timer == nil {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return err
}

// Close cancels every pending timer. Flags are left as they are; readers
// tolerate a stale flag.
func (c *Coordinator) Close() {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		c.stopTimerLocked(e)
		delete(c.entries, key)
	}
}

// WatchPeer streams whether peer is typing in chatID. A missing record reads
// as not typing.
func (c *Coordinator) WatchPeer(ctx context.Context, chatID domain.ConversationKey, peer domain.UserIdentity, fn func(ctx context.Context, typing bool)) (docstore.Subscription, error) {
	if err := validate(chatID, peer); err != nil {
		return nil, err
	}
	q := docstore.From(domain.CollectionTyping).
		Eq("chatId", string(chatID)).
		Eq("userId", string(peer))
	sub, err := c.store.Watch(ctx, q, func(ctx context.Context, snap docstore.Snapshot) {
		typing := false
		if len(snap.Docs) > 0 {
			typing, _ = snap.Docs[0]["isTyping"].(bool)
		}
		fn(ctx, typing)
	})
	if err != nil {
		return nil, domain.StoreError("watch typing", err)
	}
	return sub, nil
}

func (c *Coordinator) entryLocked(chatID domain.ConversationKey, uid domain.UserIdentity) *entry {
	key := domain.TypingKey(chatID, uid)
	e, ok := c.entries[key]
	if !ok {
		e = &entry{chatID: chatID, uid: uid}
		c.entries[key] = e
	}
	return e
}

func (c *Coordinator) stopTimerLocked(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (c *Coordinator) beginWriteLocked(e *entry, isTyping bool) pendingWrite {
	e.seq++
	e.typing = isTyping
	return pendingWrite{e: e, seq: e.seq, isTyping: isTyping}
}

// write performs w unless a newer write for the same entry has been decided,
// in which case that one carries the current flag. On failure the entry falls
// back to the last accepted flag so the next input retries.
func (c *Coordinator) write(ctx context.Context, w pendingWrite) error {
	e := w.e
	e.wmu.Lock()
	defer e.wmu.Unlock()

	c.mu.Lock()
	superseded := e.seq != w.seq
	c.mu.Unlock()
	if superseded {
		return nil
	}

	doc, err := docstore.Encode(domain.TypingStatus{
		ChatID:    e.chatID,
		UserID:    e.uid,
		IsTyping:  w.isTyping,
		Timestamp: c.opts.clock.Now(),
	})
	if err == nil {
		err = c.store.Set(ctx, domain.CollectionTyping, domain.TypingKey(e.chatID, e.uid), doc, false)
		if err != nil {
			err = domain.StoreError("set typing", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if e.seq == w.seq {
			e.typing = e.written
		}
		return err
	}
	e.written = w.isTyping
	c.opts.metrics.RecordTypingWrite(w.isTyping)
	return nil
}
