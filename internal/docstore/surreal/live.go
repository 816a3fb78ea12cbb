package surreal

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/nfrund/classhub/internal/docstore"
)

type subscription struct {
	id       string
	query    docstore.Query
	store    *Store
	dispatch *docstore.Dispatcher

	db          *surrealdb.DB
	liveQueryID string
	once        sync.Once

	find func(ctx context.Context, q docstore.Query) ([]docstore.Document, error)
	// mu serializes refreshes so snapshots are enqueued in read order.
	mu   sync.Mutex
	last []docstore.Document
}

func (s *subscription) ID() string { return s.id }

// Watch implements docstore.Store.
func (s *Store) Watch(ctx context.Context, q docstore.Query, h docstore.Handler) (docstore.Subscription, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: handler cannot be nil", docstore.ErrInvalidInput)
	}
	initial, err := s.Find(ctx, q)
	if err != nil {
		return nil, err
	}

	sub := &subscription{
		id:    uuid.NewString(),
		query: q,
		store: s,
		last:  initial,
		find:  s.Find,
	}
	sub.dispatch = docstore.NewDispatcher(h, s.logger.With("subID", sub.id))
	sub.dispatch.Enqueue(docstore.Snapshot{Docs: initial, Initial: true})

	err = s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		s.logger.Info("Creating live query subscription", "subID", sub.id, "query", q.String())

		results, err := surrealdb.Query[any](ctx, db, liveStatement(q.Collection), nil)
		if err != nil {
			return fmt.Errorf("failed to execute live query: %w", err)
		}
		if results == nil || len(*results) == 0 {
			return fmt.Errorf("live query returned no results")
		}
		result := (*results)[0]
		if result.Status != "OK" {
			return fmt.Errorf("live query failed with status: %s", result.Status)
		}

		liveID, err := liveQueryID(result.Result)
		if err != nil {
			return err
		}

		notifications, err := db.LiveNotifications(liveID)
		if err != nil {
			return fmt.Errorf("failed to get notification channel: %w", err)
		}
		sub.db = db
		sub.liveQueryID = liveID
		go sub.listen(notifications)
		return nil
	})
	if err != nil {
		sub.dispatch.Close()
		return nil, classify(err, "failed to start live query", liveStatement(q.Collection))
	}
	// Writes that landed between the initial read and LIVE registration
	// produce no notification, so read once more.
	sub.refresh()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = sub.Close()
		return nil, docstore.ErrClosed
	}
	s.subs[sub.id] = sub
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.dispatch.Done():
		}
	}()

	s.logger.Info("Live query established", "subID", sub.id, "liveQueryID", sub.liveQueryID)
	return sub, nil
}

func liveQueryID(v any) (string, error) {
	var id string
	switch x := v.(type) {
	case string:
		id = x
	case models.UUID:
		id = x.String()
	case map[string]any:
		switch inner := x["id"].(type) {
		case string:
			id = inner
		case models.UUID:
			id = inner.String()
		default:
			return "", fmt.Errorf("live query result map does not contain 'id' field: %+v", x)
		}
	default:
		return "", fmt.Errorf("unexpected live query result type: %T", v)
	}
	if id == "" {
		return "", fmt.Errorf("live query returned empty UUID")
	}
	return id, nil
}

// listen re-reads the query after every notification and forwards the snapshot
// when the result set differs from the last one delivered.
func (s *subscription) listen(notifications <-chan connection.Notification) {
	logger := s.store.logger.With("subID", s.id)
	for {
		select {
		case <-s.dispatch.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				logger.Debug("Live query notification channel closed")
				return
			}
			switch n.Action {
			case connection.CreateAction, connection.UpdateAction, connection.DeleteAction:
			default:
				logger.Warn("Unknown notification action", "action", n.Action)
				continue
			}
			s.refresh()
		}
	}
}

func (s *subscription) refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.store.queryTimeout)
	defer cancel()
	docs, err := s.find(ctx, s.query)
	if err != nil {
		s.store.logger.Warn("Failed to refresh live query", "subID", s.id, "error", err)
		return
	}
	if reflect.DeepEqual(docs, s.last) {
		return
	}
	s.last = docs
	s.dispatch.Enqueue(docstore.Snapshot{Docs: docs})
}

// Close stops delivery, then releases the notification channel and kills the
// live query on the server.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.dispatch.Close()

		s.store.mu.Lock()
		delete(s.store.subs, s.id)
		s.store.mu.Unlock()

		if s.db == nil || s.liveQueryID == "" {
			return
		}
		if err := s.db.CloseLiveNotifications(s.liveQueryID); err != nil {
			s.store.logger.Warn("Failed to close live notifications", "error", err, "liveQueryID", s.liveQueryID)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		params := map[string]any{"liveQueryID": s.liveQueryID}
		if _, err := surrealdb.Query[any](ctx, s.db, "KILL $liveQueryID", params); err != nil {
			s.store.logger.Warn("Failed to kill live query", "error", err, "liveQueryID", s.liveQueryID)
			return
		}
		s.store.logger.Debug("Live query subscription removed", "liveQueryID", s.liveQueryID)
	})
	return nil
}
