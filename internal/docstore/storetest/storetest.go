// Package storetest holds the behavioural suite every docstore.Store
// implementation must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/nfrund/classhub/internal/docstore"
)

// Factory returns a fresh, empty store and a cleanup func.
type Factory func() (docstore.Store, func())

// Suite exercises the docstore.Store contract.
type Suite struct {
	suite.Suite
	New Factory

	store   docstore.Store
	cleanup func()
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSuite returns a suite that builds stores with f.
func NewSuite(f Factory) *Suite {
	return &Suite{New: f}
}

func (s *Suite) SetupTest() {
	s.store, s.cleanup = s.New()
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 30*time.Second)
}

func (s *Suite) TearDownTest() {
	s.cancel()
	s.Require().NoError(s.store.Close())
	if s.cleanup != nil {
		s.cleanup()
	}
}

// recorder collects snapshots delivered to a live query handler.
type recorder struct {
	mu    sync.Mutex
	snaps []docstore.Snapshot
}

func (r *recorder) handle(_ context.Context, snap docstore.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *recorder) last() (docstore.Snapshot, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return docstore.Snapshot{}, 0
	}
	return r.snaps[len(r.snaps)-1], len(r.snaps)
}

func keysOf(docs []docstore.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Key())
	}
	return out
}

func (s *Suite) TestSetGetReplace() {
	require := s.Require()
	require.NoError(s.store.Set(s.ctx, "user_presence", "u1", docstore.Document{"displayName": "Ana", "isOnline": true}, false))

	doc, err := s.store.Get(s.ctx, "user_presence", "u1")
	require.NoError(err)
	s.Equal("u1", doc.Key())
	s.Equal("Ana", doc["displayName"])
	s.Equal(true, doc["isOnline"])

	require.NoError(s.store.Set(s.ctx, "user_presence", "u1", docstore.Document{"isOnline": false}, false))
	doc, err = s.store.Get(s.ctx, "user_presence", "u1")
	require.NoError(err)
	s.Equal(false, doc["isOnline"])
	s.NotContains(doc, "displayName", "replace drops fields that were not written")
}

func (s *Suite) TestSetMerge() {
	require := s.Require()
	require.NoError(s.store.Set(s.ctx, "user_presence", "u1", docstore.Document{"displayName": "Ana", "isOnline": true}, false))
	require.NoError(s.store.Set(s.ctx, "user_presence", "u1", docstore.Document{"isOnline": false}, true))

	doc, err := s.store.Get(s.ctx, "user_presence", "u1")
	require.NoError(err)
	s.Equal("Ana", doc["displayName"])
	s.Equal(false, doc["isOnline"])
}

func (s *Suite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, "user_presence", "nobody")
	s.ErrorIs(err, docstore.ErrNotFound)
}

func (s *Suite) TestDelete() {
	require := s.Require()
	require.NoError(s.store.Set(s.ctx, "typing_status", "c_u1", docstore.Document{"isTyping": true}, false))
	require.NoError(s.store.Delete(s.ctx, "typing_status", "c_u1"))
	_, err := s.store.Get(s.ctx, "typing_status", "c_u1")
	s.ErrorIs(err, docstore.ErrNotFound)
	s.NoError(s.store.Delete(s.ctx, "typing_status", "c_u1"), "deleting twice is fine")
}

func (s *Suite) TestFindFilterOrderLimit() {
	require := s.Require()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		chat := "a_b"
		if i%2 == 1 {
			chat = "a_c"
		}
		require.NoError(s.store.Set(s.ctx, "chat_message", fmt.Sprintf("m%d", i), docstore.Document{
			"chatId":    chat,
			"timestamp": docstore.FormatTime(base.Add(time.Duration(5-i) * time.Second)),
		}, false))
	}

	docs, err := s.store.Find(s.ctx, docstore.From("chat_message").Eq("chatId", "a_b").Order("timestamp", false))
	require.NoError(err)
	s.Equal([]string{"m4", "m2", "m0"}, keysOf(docs))

	docs, err = s.store.Find(s.ctx, docstore.From("chat_message").Order("timestamp", true).Take(2))
	require.NoError(err)
	s.Equal([]string{"m0", "m1"}, keysOf(docs))
}

func (s *Suite) TestFindRejectsBadIdentifiers() {
	_, err := s.store.Find(s.ctx, docstore.From("chat;message"))
	s.ErrorIs(err, docstore.ErrInvalidInput)
}

func (s *Suite) TestCommitCreateConflict() {
	require := s.Require()
	require.NoError(s.store.Commit(s.ctx, docstore.NewBatch().Create("chat_message", "deferred-1", docstore.Document{"text": "hi"})))

	err := s.store.Commit(s.ctx, docstore.NewBatch().Create("chat_message", "deferred-1", docstore.Document{"text": "again"}))
	s.True(docstore.IsConflict(err))

	doc, err := s.store.Get(s.ctx, "chat_message", "deferred-1")
	require.NoError(err)
	s.Equal("hi", doc["text"])
}

func (s *Suite) TestCommitUpdateIfIsAllOrNothing() {
	require := s.Require()
	require.NoError(s.store.Set(s.ctx, "scheduled_message", "d1", docstore.Document{"status": "sent"}, false))

	b := docstore.NewBatch().
		UpdateIf("scheduled_message", "d1", "status", "pending", docstore.Document{"status": "sent", "sentAt": "x"}).
		Create("chat_message", "deferred-d1", docstore.Document{"text": "hi"})
	err := s.store.Commit(s.ctx, b)
	s.ErrorIs(err, docstore.ErrPreconditionFailed)

	_, err = s.store.Get(s.ctx, "chat_message", "deferred-d1")
	s.ErrorIs(err, docstore.ErrNotFound, "a failed precondition must not leave partial writes")
}

func (s *Suite) TestCommitUpdateIfMissingDocument() {
	err := s.store.Commit(s.ctx, docstore.NewBatch().
		UpdateIf("scheduled_message", "ghost", "status", "pending", docstore.Document{"status": "sent"}))
	s.ErrorIs(err, docstore.ErrPreconditionFailed)
}

func (s *Suite) TestCommitUpdateIfRace() {
	require := s.Require()
	require.NoError(s.store.Set(s.ctx, "scheduled_message", "d1", docstore.Document{"status": "pending"}, false))

	const workers = 8
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Commit(s.ctx, docstore.NewBatch().
				UpdateIf("scheduled_message", "d1", "status", "pending", docstore.Document{"status": "sent"}).
				Create("chat_message", "deferred-d1", docstore.Document{"text": "hi"}))
			switch {
			case err == nil:
				wins.Add(1)
			case docstore.IsConflict(err):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(workers-1), conflicts.Load())
}

func (s *Suite) TestWatchInitialAndUpdates() {
	require := s.Require()
	require.NoError(s.store.Set(s.ctx, "user_presence", "u1", docstore.Document{"isOnline": true}, false))

	rec := &recorder{}
	sub, err := s.store.Watch(s.ctx, docstore.From("user_presence").Eq("isOnline", true), rec.handle)
	require.NoError(err)
	defer sub.Close()
	s.NotEmpty(sub.ID())

	s.Eventually(func() bool {
		snap, n := rec.last()
		return n == 1 && snap.Initial && len(snap.Docs) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(s.store.Set(s.ctx, "user_presence", "u2", docstore.Document{"isOnline": true}, false))
	s.Eventually(func() bool {
		snap, _ := rec.last()
		return !snap.Initial && len(snap.Docs) == 2
	}, 5*time.Second, 10*time.Millisecond)

	// Leaving the filter is still a change to the result set.
	require.NoError(s.store.Set(s.ctx, "user_presence", "u1", docstore.Document{"isOnline": false}, true))
	s.Eventually(func() bool {
		snap, _ := rec.last()
		return len(snap.Docs) == 1 && snap.Docs[0].Key() == "u2"
	}, 5*time.Second, 10*time.Millisecond)
}

func (s *Suite) TestWatchStopsAfterClose() {
	require := s.Require()
	rec := &recorder{}
	sub, err := s.store.Watch(s.ctx, docstore.From("typing_status"), rec.handle)
	require.NoError(err)
	s.Eventually(func() bool { _, n := rec.last(); return n == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(sub.Close())
	require.NoError(sub.Close(), "close is idempotent")
	require.NoError(s.store.Set(s.ctx, "typing_status", "k", docstore.Document{"isTyping": true}, false))

	s.Never(func() bool { _, n := rec.last(); return n > 1 }, 300*time.Millisecond, 20*time.Millisecond)
}

func (s *Suite) TestWatchHandlerMayWrite() {
	require := s.Require()
	var once sync.Once
	done := make(chan struct{})
	sub, err := s.store.Watch(s.ctx, docstore.From("user_presence"), func(ctx context.Context, snap docstore.Snapshot) {
		if snap.Initial {
			return
		}
		once.Do(func() {
			_ = s.store.Set(ctx, "chat_message", "echo", docstore.Document{"text": "seen"}, false)
			close(done)
		})
	})
	require.NoError(err)
	defer sub.Close()

	require.NoError(s.store.Set(s.ctx, "user_presence", "u1", docstore.Document{"isOnline": true}, false))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.FailNow("handler never ran")
	}
	doc, err := s.store.Get(s.ctx, "chat_message", "echo")
	require.NoError(err)
	s.Equal("seen", doc["text"])
}
