package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestMetrics() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry(), nil)
}

func TestNewWithRegistry_RegistersEverything(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, nil)

	m.RecordScheduled()
	m.RecordDelivered(2 * time.Second)
	m.RecordConflict()
	m.RecordDeliveryError()
	m.SetPending(3)
	m.RecordHeartbeat(nil)
	m.SetOnlineUsers(2)
	m.RecordTypingWrite(true)
	m.RecordMessageSent("direct")
	m.RecordMessageRead()
	m.ObserveStoreOperation("commit", "scheduled_message", time.Millisecond, errors.New("x"))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 13)
}

func TestDeferredCounters(t *testing.T) {
	m := getTestMetrics()

	m.RecordScheduled()
	m.RecordScheduled()
	m.RecordDelivered(90 * time.Second)
	m.RecordConflict()
	m.SetPending(1)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.DeferredScheduledTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DeferredDeliveredTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DeferredConflictsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DeferredPending))
	assert.Equal(t, 1, testutil.CollectAndCount(m.DeferredDeliveryDelay))
}

func TestLabelledCounters(t *testing.T) {
	m := getTestMetrics()

	m.RecordHeartbeat(nil)
	m.RecordHeartbeat(errors.New("store down"))
	m.RecordHeartbeat(nil)
	m.RecordTypingWrite(false)
	m.RecordMessageSent("file")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.PresenceHeartbeatsTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PresenceHeartbeatsTotal.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TypingWritesTotal.WithLabelValues("idle")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesSentTotal.WithLabelValues("file")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordScheduled()
		m.RecordDelivered(time.Second)
		m.ObserveStoreOperation("get", "user_presence", time.Millisecond, nil)
	})
}

func TestSafeExecuteRecoversPanics(t *testing.T) {
	m := getTestMetrics()
	assert.NotPanics(t, func() {
		m.safeExecute("boom", func() { panic("collector exploded") })
	})
}
