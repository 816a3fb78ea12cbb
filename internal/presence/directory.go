package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/nfrund/classhub/internal/docstore"
	"github.com/nfrund/classhub/internal/domain"
	"github.com/nfrund/classhub/internal/pubsub"
)

// Directory keeps a live view of every presence record. Liveness is always
// evaluated against the clock at call time.
type Directory struct {
	store  docstore.Store
	opts   options
	logger *slog.Logger

	mu      sync.RWMutex
	records map[domain.UserIdentity]domain.PresenceRecord
	online  map[domain.UserIdentity]bool
	loaded  bool
	primed  bool
	sub     docstore.Subscription
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDirectory creates a directory. Call Start for live updates or Refresh for
// a one-shot read.
func NewDirectory(store docstore.Store, opts ...Option) *Directory {
	o := newOptions(opts)
	return &Directory{
		store:   store,
		opts:    o,
		logger:  o.logger,
		records: make(map[domain.UserIdentity]domain.PresenceRecord),
		online:  make(map[domain.UserIdentity]bool),
	}
}

// Start subscribes to the presence collection and re-evaluates liveness every
// heartbeat so stale users are announced offline even without a write.
func (d *Directory) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sub != nil {
		return nil
	}

	sub, err := d.store.Watch(ctx, docstore.From(domain.CollectionPresence), func(ctx context.Context, snap docstore.Snapshot) {
		recs, err := DecodeRecords(snap.Docs)
		if err != nil {
			d.logger.Error("Failed to decode presence snapshot", "error", err)
			return
		}
		d.replace(ctx, recs)
	})
	if err != nil {
		return domain.StoreError("presence watch", err)
	}
	d.sub = sub

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.sweep(loopCtx, d.done)
	return nil
}

// Stop releases the subscription.
func (d *Directory) Stop() {
	d.mu.Lock()
	sub, cancel, done := d.sub, d.cancel, d.done
	d.sub, d.cancel, d.done = nil, nil, nil
	d.mu.Unlock()

	if sub == nil {
		return
	}
	_ = sub.Close()
	cancel()
	<-done
}

// Refresh replaces the view with a one-shot read of the collection.
func (d *Directory) Refresh(ctx context.Context) error {
	docs, err := d.store.Find(ctx, docstore.From(domain.CollectionPresence))
	if err != nil {
		return domain.StoreError("presence refresh", err)
	}
	recs, err := DecodeRecords(docs)
	if err != nil {
		return err
	}
	d.replace(ctx, recs)
	return nil
}

func (d *Directory) sweep(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := d.opts.clock.NewTicker(d.opts.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			d.evaluate(ctx)
		}
	}
}

func (d *Directory) replace(ctx context.Context, recs []domain.PresenceRecord) {
	d.mu.Lock()
	d.records = make(map[domain.UserIdentity]domain.PresenceRecord, len(recs))
	for _, r := range recs {
		d.records[r.UID] = r
	}
	d.loaded = true
	d.mu.Unlock()
	d.evaluate(ctx)
}

// evaluate recomputes liveness and publishes transitions. The first
// evaluation after a load only records a baseline.
func (d *Directory) evaluate(ctx context.Context) {
	now := d.opts.clock.Now()

	d.mu.Lock()
	if !d.loaded {
		d.mu.Unlock()
		return
	}
	var wentOnline, wentOffline []domain.PresenceRecord
	next := make(map[domain.UserIdentity]bool, len(d.records))
	for uid, rec := range d.records {
		on := IsEffectivelyOnline(rec, now, d.opts.window)
		if on {
			next[uid] = true
		}
		if d.primed && on != d.online[uid] {
			if on {
				wentOnline = append(wentOnline, rec)
			} else {
				wentOffline = append(wentOffline, rec)
			}
		}
	}
	if d.primed {
		for uid := range d.online {
			if _, still := d.records[uid]; !still {
				wentOffline = append(wentOffline, domain.PresenceRecord{UID: uid})
			}
		}
	}
	d.online = next
	d.primed = true
	d.mu.Unlock()

	d.opts.metrics.SetOnlineUsers(len(next))
	d.announce(ctx, EventUserOnline, wentOnline)
	d.announce(ctx, EventUserOffline, wentOffline)
}

func (d *Directory) announce(ctx context.Context, event pubsub.Event[StatusChange], recs []domain.PresenceRecord) {
	for _, rec := range recs {
		d.logger.Debug("Presence transition", "event", event.Name(), "uid", rec.UID)
		if d.opts.publisher == nil {
			continue
		}
		change := StatusChange{UID: rec.UID, DisplayName: rec.DisplayName, LastActive: rec.LastActive}
		if err := pubsub.Publish(ctx, d.opts.publisher, event, string(rec.UID), change); err != nil {
			d.logger.Warn("Failed to publish presence transition", "event", event.Name(), "uid", rec.UID, "error", err)
		}
	}
}

// Online reports whether uid is effectively online right now.
func (d *Directory) Online(uid domain.UserIdentity) bool {
	d.mu.RLock()
	rec, ok := d.records[uid]
	d.mu.RUnlock()
	return ok && IsEffectivelyOnline(rec, d.opts.clock.Now(), d.opts.window)
}

// OnlineUsers lists the effectively online users, sorted by display name.
func (d *Directory) OnlineUsers() []domain.PresenceRecord {
	now := d.opts.clock.Now()
	return d.list(func(rec domain.PresenceRecord) bool {
		return IsEffectivelyOnline(rec, now, d.opts.window)
	})
}

// Users lists every user with a display name except exclude, sorted by
// display name.
func (d *Directory) Users(exclude domain.UserIdentity) []domain.PresenceRecord {
	return d.list(func(rec domain.PresenceRecord) bool {
		return rec.UID != exclude && rec.DisplayName != ""
	})
}

// Search filters Users by a case-insensitive substring of the display name.
// An empty term matches everyone.
func (d *Directory) Search(term string, exclude domain.UserIdentity) []domain.PresenceRecord {
	term = strings.TrimSpace(term)
	if term == "" {
		return d.Users(exclude)
	}
	// Casers are stateful, so each search gets its own.
	fold := cases.Fold()
	needle := fold.String(term)
	return d.list(func(rec domain.PresenceRecord) bool {
		return rec.UID != exclude && rec.DisplayName != "" &&
			strings.Contains(fold.String(rec.DisplayName), needle)
	})
}

// Lookup reads one record straight from the store.
func (d *Directory) Lookup(ctx context.Context, uid domain.UserIdentity) (domain.PresenceRecord, error) {
	if strings.TrimSpace(string(uid)) == "" {
		return domain.PresenceRecord{}, fmt.Errorf("%w: uid is required", domain.ErrValidation)
	}
	doc, err := d.store.Get(ctx, domain.CollectionPresence, string(uid))
	if err != nil {
		return domain.PresenceRecord{}, domain.StoreError("presence lookup", err)
	}
	return DecodeRecord(doc)
}

func (d *Directory) list(keep func(domain.PresenceRecord) bool) []domain.PresenceRecord {
	d.mu.RLock()
	out := make([]domain.PresenceRecord, 0, len(d.records))
	for _, rec := range d.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].UID < out[j].UID
	})
	return out
}

// DecodeRecord converts a stored document into a PresenceRecord. The document
// key stands in for a missing uid field.
func DecodeRecord(doc docstore.Document) (domain.PresenceRecord, error) {
	rec, err := docstore.Decode[domain.PresenceRecord](doc)
	if err != nil {
		return domain.PresenceRecord{}, err
	}
	if rec.UID == "" {
		rec.UID = domain.UserIdentity(doc.Key())
	}
	return rec, nil
}

// DecodeRecords decodes a snapshot.
func DecodeRecords(docs []docstore.Document) ([]domain.PresenceRecord, error) {
	out := make([]domain.PresenceRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := DecodeRecord(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
