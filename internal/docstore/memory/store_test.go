package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/nfrund/classhub/internal/docstore"
	"github.com/nfrund/classhub/internal/docstore/storetest"
)

func TestStoreContract(t *testing.T) {
	suite.Run(t, storetest.NewSuite(func() (docstore.Store, func()) {
		return New(), nil
	}))
}

func TestWatch_SnapshotsArriveInCommitOrder(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	var mu sync.Mutex
	var seen []float64
	sub, err := s.Watch(ctx, docstore.From("counter"), func(_ context.Context, snap docstore.Snapshot) {
		if snap.Initial {
			return
		}
		mu.Lock()
		seen = append(seen, snap.Docs[0]["n"].(float64))
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Close()

	const writes = 50
	for i := 1; i <= writes; i++ {
		require.NoError(t, s.Set(ctx, "counter", "c", docstore.Document{"n": i}, false))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == writes
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, n := range seen {
		assert.Equal(t, float64(i+1), n)
	}
}

func TestWatch_IgnoresOtherCollections(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	var mu sync.Mutex
	calls := 0
	sub, err := s.Watch(ctx, docstore.From("chat_message").Eq("chatId", "a_b"), func(context.Context, docstore.Snapshot) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, s.Set(ctx, "group_message", "g1", docstore.Document{"chatId": "a_b"}, false))
	require.NoError(t, s.Set(ctx, "chat_message", "m1", docstore.Document{"chatId": "a_c"}, false))

	assert.Never(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 1
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func TestWatch_ContextCancelReleases(t *testing.T) {
	s := New()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.Watch(ctx, docstore.From("typing_status"), func(context.Context, docstore.Snapshot) {})
	require.NoError(t, err)

	cancel()
	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.subs) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestClosedStore(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	ctx := context.Background()
	assert.ErrorIs(t, s.Set(ctx, "c", "k", docstore.Document{}, false), docstore.ErrClosed)
	_, err := s.Get(ctx, "c", "k")
	assert.ErrorIs(t, err, docstore.ErrClosed)
	_, err = s.Watch(ctx, docstore.From("c"), func(context.Context, docstore.Snapshot) {})
	assert.ErrorIs(t, err, docstore.ErrClosed)
}

func TestCommit_NormalizesValues(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	type status string
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	require.NoError(t, s.Set(ctx, "scheduled_message", "d1", docstore.Document{"status": status("pending"), "n": 3, "at": at}, false))

	doc, err := s.Get(ctx, "scheduled_message", "d1")
	require.NoError(t, err)
	assert.Equal(t, "pending", doc["status"])
	assert.Equal(t, float64(3), doc["n"])
	assert.Equal(t, "2026-05-01T11:00:00.000000000Z", doc["at"])
	assert.Equal(t, 1, s.Len("scheduled_message"))
}
