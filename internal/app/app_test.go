package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/classhub/internal/config"
	"github.com/nfrund/classhub/internal/deferred"
	"github.com/nfrund/classhub/internal/domain"
	"github.com/nfrund/classhub/internal/pubsub"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.FromEnv(func(k string) string {
		if k == "STORE_DRIVER" {
			return config.DriverMemory
		}
		return ""
	})
	require.NoError(t, cfg.Validate())
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestApp_SharesOneStore(t *testing.T) {
	a := newTestApp(t)
	defer a.Shutdown(context.Background())

	s1, err := a.Store()
	require.NoError(t, err)
	s2, err := a.Store()
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	q1, err := a.Queue()
	require.NoError(t, err)
	q2, err := a.Queue()
	require.NoError(t, err)
	assert.Same(t, q1, q2)
}

func TestApp_ScheduleAndDeliverEndToEnd(t *testing.T) {
	a := newTestApp(t)
	defer a.Shutdown(context.Background())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bob, err := a.NewSession("bob", "Bob")
	require.NoError(t, err)
	require.NoError(t, bob.Start(ctx))
	require.NoError(t, bob.Stop(ctx))

	queue, err := a.Queue()
	require.NoError(t, err)
	dm, err := queue.Schedule(ctx, domain.Sender{UID: "alice", DisplayName: "Alice"}, "bob", "See you at 5")
	require.NoError(t, err)

	bus, err := a.Bus()
	require.NoError(t, err)
	delivered := make(chan deferred.Delivered, 1)
	require.NoError(t, pubsub.Subscribe(ctx, bus, deferred.EventMessageDelivered, func(_ context.Context, d deferred.Delivered) error {
		delivered <- d
		return nil
	}))

	engine, err := a.NewEngine(domain.Sender{UID: "alice", DisplayName: "Alice"})
	require.NoError(t, err)
	require.NoError(t, engine.Start(ctx))
	defer engine.Stop()

	require.NoError(t, bob.Start(ctx))
	defer bob.Stop(ctx)

	select {
	case d := <-delivered:
		assert.Equal(t, dm.ID, d.DeferredID)
	case <-time.After(3 * time.Second):
		t.Fatal("message was not delivered")
	}

	svc, err := a.Messaging()
	require.NoError(t, err)
	msgs, err := svc.Conversation(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "AI-Scheduled: See you at 5", msgs[0].Text)
}

func TestApp_MetricsHandler(t *testing.T) {
	a := newTestApp(t)
	defer a.Shutdown(context.Background())
	ctx := context.Background()

	svc, err := a.Messaging()
	require.NoError(t, err)
	_, err = svc.SendGroup(ctx, domain.Sender{UID: "alice"}, "physics", "hello")
	require.NoError(t, err)

	handler, err := a.MetricsHandler()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `classhub_messages_sent_total{kind="group"} 1`)
	assert.Contains(t, body, `classhub_store_operation_duration_seconds_count{collection="group_message",operation="commit"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestApp_ShutdownClosesStore(t *testing.T) {
	a := newTestApp(t)
	store, err := a.Store()
	require.NoError(t, err)
	_, err = a.Typing()
	require.NoError(t, err)
	_, err = a.Directory()
	require.NoError(t, err)

	require.NoError(t, a.Shutdown(context.Background()))
	_, err = store.Get(context.Background(), domain.CollectionPresence, "alice")
	assert.Error(t, err)
}
