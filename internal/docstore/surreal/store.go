// Package surreal implements docstore.Store on SurrealDB. Live queries use
// LIVE SELECT notifications as a change signal and re-read the query so every
// handler call still receives a complete, ordered snapshot.
package surreal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/nfrund/classhub/internal/config"
	"github.com/nfrund/classhub/internal/docstore"
)

// Store is a docstore.Store backed by a managed SurrealDB connection.
type Store struct {
	conn           *Connection
	queryTimeout   time.Duration
	executeTimeout time.Duration
	logger         *slog.Logger

	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool
}

var _ docstore.Store = (*Store)(nil)

// New wraps an established connection.
func New(conn *Connection, cfg config.Provider) (*Store, error) {
	if conn == nil {
		return nil, NewDBError(docstore.ErrInvalidInput, "connection cannot be nil")
	}
	if cfg.GetDBQueryTimeout() <= 0 {
		return nil, NewDBError(docstore.ErrInvalidInput, "DB_QUERY_TIMEOUT must be a positive duration")
	}
	if cfg.GetDBExecuteTimeout() <= 0 {
		return nil, NewDBError(docstore.ErrInvalidInput, "DB_EXECUTE_TIMEOUT must be a positive duration")
	}
	return &Store{
		conn:           conn,
		queryTimeout:   cfg.GetDBQueryTimeout(),
		executeTimeout: cfg.GetDBExecuteTimeout(),
		logger:         slog.Default().With("service", "docstore.surreal"),
		subs:           make(map[string]*subscription),
	}, nil
}

// Open connects using cfg, starts health monitoring and returns the store.
func Open(ctx context.Context, cfg config.Provider) (*Store, error) {
	conn := NewConnection(cfg)
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	conn.StartMonitoring()
	s, err := New(conn, cfg)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}
	return nil
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, collection, key string, doc docstore.Document, merge bool) error {
	if err := checkTarget(collection, key); err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("%w: nil document", docstore.ErrInvalidInput)
	}
	return s.execute(ctx, setStatement(collection, key, doc, merge), "set operation failed")
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, key string) (docstore.Document, error) {
	if err := checkTarget(collection, key); err != nil {
		return nil, err
	}
	rows, err := s.rows(ctx, getStatement(collection, key), "get operation failed")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s:%s", docstore.ErrNotFound, collection, key)
	}
	return fromRow(rows[0]), nil
}

// Delete implements docstore.Store.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	if err := checkTarget(collection, key); err != nil {
		return err
	}
	return s.execute(ctx, deleteStatement(collection, key), "delete operation failed")
}

// Find implements docstore.Store. Rows are passed through Query.Apply so ordering
// ties break exactly as in the in-memory store.
func (s *Store) Find(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.rows(ctx, selectStatement(q), "find operation failed")
	if err != nil {
		return nil, err
	}
	docs := make([]docstore.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, fromRow(r))
	}
	return q.Apply(docs), nil
}

// Commit implements docstore.Store.
func (s *Store) Commit(ctx context.Context, b *docstore.Batch) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return s.execute(ctx, batchStatement(b), "batch commit failed")
}

// Close releases every subscription and the connection.
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.conn.Close(ctx)
}

func (s *Store) rows(ctx context.Context, st statement, op string) ([]map[string]any, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	ctx, cancel := timeoutFromContext(ctx, s.queryTimeout, ContextKeyQueryTimeout)
	defer cancel()

	var out []map[string]any
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		results, err := surrealdb.Query[[]map[string]any](ctx, db, st.sql, st.params)
		if err != nil {
			return err
		}
		if results == nil || len(*results) == 0 {
			return nil
		}
		res := (*results)[len(*results)-1]
		if res.Status != "OK" {
			return fmt.Errorf("query failed with status: %s", res.Status)
		}
		out = res.Result
		return nil
	})
	if err != nil {
		return nil, classify(err, op, st.sql)
	}
	return out, nil
}

func (s *Store) execute(ctx context.Context, st statement, op string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	ctx, cancel := timeoutFromContext(ctx, s.executeTimeout, ContextKeyExecuteTimeout)
	defer cancel()

	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		results, err := surrealdb.Query[any](ctx, db, st.sql, st.params)
		if err != nil {
			return err
		}
		if results == nil {
			return nil
		}
		for i, res := range *results {
			if res.Status != "OK" {
				return fmt.Errorf("statement %d failed with status %s: %v", i, res.Status, res.Result)
			}
		}
		return nil
	})
	return classify(err, op, st.sql)
}

func checkTarget(collection, key string) error {
	if !docstore.ValidIdent(collection) {
		return fmt.Errorf("%w: collection %q", docstore.ErrInvalidInput, collection)
	}
	if key == "" {
		return fmt.Errorf("%w: empty key", docstore.ErrInvalidInput)
	}
	return nil
}

// fromRow converts a SurrealDB row into a Document, turning the record id back
// into the plain key.
func fromRow(row map[string]any) docstore.Document {
	doc := make(docstore.Document, len(row))
	for k, v := range row {
		if k == docstore.KeyField {
			doc[k] = recordKey(v)
			continue
		}
		doc[k] = docstore.Normalize(v)
	}
	return doc
}

func recordKey(v any) string {
	switch id := v.(type) {
	case models.RecordID:
		return fmt.Sprint(id.ID)
	case *models.RecordID:
		if id != nil {
			return fmt.Sprint(id.ID)
		}
	case string:
		if _, key, ok := strings.Cut(id, ":"); ok {
			return strings.Trim(key, "⟨⟩`")
		}
		return id
	}
	return fmt.Sprint(v)
}
