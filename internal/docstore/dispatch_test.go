package docstore

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDispatcher_DeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []int
	d := NewDispatcher(func(_ context.Context, snap Snapshot) {
		mu.Lock()
		got = append(got, len(snap.Docs))
		mu.Unlock()
	}, slog.Default())
	defer d.Close()

	for i := 0; i < 20; i++ {
		d.Enqueue(Snapshot{Docs: make([]Document, i)})
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 20
	}, 2*time.Second, 5*time.Millisecond)
	for i, n := range got {
		assert.Equal(t, i, n)
	}
}

func TestDispatcher_SurvivesPanicAndCloseFromHandler(t *testing.T) {
	calls := make(chan int, 4)
	var d *Dispatcher
	d = NewDispatcher(func(ctx context.Context, snap Snapshot) {
		calls <- len(snap.Docs)
		switch len(snap.Docs) {
		case 0:
			panic("boom")
		case 1:
			d.Close()
			assert.Error(t, ctx.Err())
		}
	}, slog.Default())

	d.Enqueue(Snapshot{})
	d.Enqueue(Snapshot{Docs: []Document{{}}})
	assert.Equal(t, 0, <-calls)
	assert.Equal(t, 1, <-calls)

	<-d.Done()
	d.Enqueue(Snapshot{Docs: []Document{{}, {}}})
	select {
	case n := <-calls:
		t.Fatalf("unexpected delivery after close: %d", n)
	case <-time.After(100 * time.Millisecond):
	}
}
