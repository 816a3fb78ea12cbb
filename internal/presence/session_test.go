package presence

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/classhub/internal/docstore"
	"github.com/nfrund/classhub/internal/docstore/memory"
	"github.com/nfrund/classhub/internal/domain"
	"github.com/nfrund/classhub/internal/metrics"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func readRecord(t *testing.T, s docstore.Store, uid string) domain.PresenceRecord {
	t.Helper()
	doc, err := s.Get(context.Background(), domain.CollectionPresence, uid)
	require.NoError(t, err)
	rec, err := DecodeRecord(doc)
	require.NoError(t, err)
	return rec
}

func TestSession_StartMarksOnline(t *testing.T) {
	store := memory.New()
	defer store.Close()
	clock := clockwork.NewFakeClockAt(start)
	ctx := context.Background()

	s := NewSession(store, "alice", " Alice ", WithClock(clock))
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	rec := readRecord(t, store, "alice")
	assert.Equal(t, domain.UserIdentity("alice"), rec.UID)
	assert.Equal(t, "Alice", rec.DisplayName)
	assert.True(t, rec.IsOnline)
	assert.True(t, rec.LastActive.Equal(start))

	// A second Start is a no-op.
	require.NoError(t, s.Start(ctx))
}

func TestSession_StartRequiresUID(t *testing.T) {
	store := memory.New()
	defer store.Close()

	err := NewSession(store, " ", "Nobody").Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, store.Len(domain.CollectionPresence))
}

func TestSession_HeartbeatAdvancesLastActive(t *testing.T) {
	store := memory.New()
	defer store.Close()
	clock := clockwork.NewFakeClockAt(start)
	ctx := context.Background()
	m := metrics.NewWithRegistry(prometheus.NewRegistry(), nil)

	s := NewSession(store, "alice", "Alice", WithClock(clock), WithHeartbeat(15*time.Second), WithMetrics(m))
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	for i := 1; i <= 3; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(15 * time.Second)
		want := start.Add(time.Duration(i) * 15 * time.Second)
		assert.Eventually(t, func() bool {
			return readRecord(t, store, "alice").LastActive.Equal(want)
		}, time.Second, 5*time.Millisecond, "beat %d", i)
	}

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.PresenceHeartbeatsTotal.WithLabelValues("ok")) == 3
	}, time.Second, 5*time.Millisecond)

	// Heartbeats never touch the display name.
	assert.Equal(t, "Alice", readRecord(t, store, "alice").DisplayName)
}

func TestSession_StopMarksOffline(t *testing.T) {
	store := memory.New()
	defer store.Close()
	clock := clockwork.NewFakeClockAt(start)
	ctx := context.Background()

	s := NewSession(store, "alice", "Alice", WithClock(clock))
	require.NoError(t, s.Start(ctx))

	clock.Advance(5 * time.Second)
	require.NoError(t, s.Stop(ctx))

	rec := readRecord(t, store, "alice")
	assert.False(t, rec.IsOnline)
	assert.True(t, rec.LastActive.Equal(start.Add(5*time.Second)))
	assert.Equal(t, "Alice", rec.DisplayName)

	// Stop is idempotent and a stopped session writes nothing more.
	require.NoError(t, s.Stop(ctx))
	clock.Advance(time.Minute)
	assert.False(t, readRecord(t, store, "alice").IsOnline)
}

func TestSession_SetDisplayName(t *testing.T) {
	store := memory.New()
	defer store.Close()
	ctx := context.Background()

	s := NewSession(store, "alice", "Alice", WithClock(clockwork.NewFakeClockAt(start)))
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	require.NoError(t, s.SetDisplayName(ctx, "  Alice Liddell "))
	assert.Equal(t, "Alice Liddell", readRecord(t, store, "alice").DisplayName)

	err := s.SetDisplayName(ctx, "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "Alice Liddell", readRecord(t, store, "alice").DisplayName)
}

// flakyStore fails Set while failing is set.
type flakyStore struct {
	docstore.Store
	failing atomic.Bool
	calls   atomic.Int32
}

func (f *flakyStore) Set(ctx context.Context, collection, key string, doc docstore.Document, merge bool) error {
	f.calls.Add(1)
	if f.failing.Load() {
		return errors.New("connection reset")
	}
	return f.Store.Set(ctx, collection, key, doc, merge)
}

func TestSession_FailedHeartbeatIsRetriedNextTick(t *testing.T) {
	inner := memory.New()
	defer inner.Close()
	store := &flakyStore{Store: inner}
	clock := clockwork.NewFakeClockAt(start)
	ctx := context.Background()

	s := NewSession(store, "alice", "Alice", WithClock(clock), WithHeartbeat(15*time.Second))
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	store.failing.Store(true)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(15 * time.Second)
	assert.Eventually(t, func() bool { return store.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, readRecord(t, inner, "alice").LastActive.Equal(start))

	store.failing.Store(false)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(15 * time.Second)
	assert.Eventually(t, func() bool {
		return readRecord(t, inner, "alice").LastActive.Equal(start.Add(30 * time.Second))
	}, time.Second, 5*time.Millisecond)
}

func TestSession_HeartbeatErrorMapsToStoreUnavailable(t *testing.T) {
	inner := memory.New()
	defer inner.Close()
	store := &flakyStore{Store: inner}
	store.failing.Store(true)

	err := NewSession(store, "alice", "Alice").Heartbeat(context.Background())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
