package memory

import (
	"sync"

	"github.com/nfrund/classhub/internal/docstore"
)

type subscription struct {
	id       string
	query    docstore.Query
	store    *Store
	dispatch *docstore.Dispatcher
	once     sync.Once
}

func (s *subscription) ID() string { return s.id }

// Close stops delivery. Snapshots still queued are dropped.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.dispatch.Close()
		s.store.removeSub(s.id)
		s.store.logger.Debug("Live query subscription removed", "subID", s.id)
	})
	return nil
}

func (s *subscription) enqueue(snap docstore.Snapshot) {
	s.dispatch.Enqueue(snap)
}
