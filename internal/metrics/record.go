package metrics

import "time"

// RecordScheduled counts a newly scheduled deferred message.
func (m *Metrics) RecordScheduled() {
	m.safeExecute("RecordScheduled", func() {
		m.DeferredScheduledTotal.Inc()
	})
}

// RecordDelivered counts a delivery and observes how long the message waited.
func (m *Metrics) RecordDelivered(waited time.Duration) {
	m.safeExecute("RecordDelivered", func() {
		m.DeferredDeliveredTotal.Inc()
		if waited >= 0 {
			m.DeferredDeliveryDelay.Observe(waited.Seconds())
		}
	})
}

// RecordConflict counts a delivery lost to a concurrent deliverer.
func (m *Metrics) RecordConflict() {
	m.safeExecute("RecordConflict", func() {
		m.DeferredConflictsTotal.Inc()
	})
}

// RecordDeliveryError counts a failed delivery attempt.
func (m *Metrics) RecordDeliveryError() {
	m.safeExecute("RecordDeliveryError", func() {
		m.DeferredErrorsTotal.Inc()
	})
}

// SetPending sets the pending gauge.
func (m *Metrics) SetPending(n int) {
	m.safeExecute("SetPending", func() {
		m.DeferredPending.Set(float64(n))
	})
}

// RecordHeartbeat counts a heartbeat write by outcome.
func (m *Metrics) RecordHeartbeat(err error) {
	m.safeExecute("RecordHeartbeat", func() {
		m.PresenceHeartbeatsTotal.WithLabelValues(result(err)).Inc()
	})
}

// SetOnlineUsers sets the online users gauge.
func (m *Metrics) SetOnlineUsers(n int) {
	m.safeExecute("SetOnlineUsers", func() {
		m.PresenceOnlineUsers.Set(float64(n))
	})
}

// RecordTypingWrite counts a typing indicator write.
func (m *Metrics) RecordTypingWrite(isTyping bool) {
	m.safeExecute("RecordTypingWrite", func() {
		state := "idle"
		if isTyping {
			state = "typing"
		}
		m.TypingWritesTotal.WithLabelValues(state).Inc()
	})
}

// RecordMessageSent counts a sent message by kind (direct, file, group).
func (m *Metrics) RecordMessageSent(kind string) {
	m.safeExecute("RecordMessageSent", func() {
		m.MessagesSentTotal.WithLabelValues(kind).Inc()
	})
}

// RecordMessageRead counts a read receipt.
func (m *Metrics) RecordMessageRead() {
	m.safeExecute("RecordMessageRead", func() {
		m.MessagesReadTotal.Inc()
	})
}

// ObserveStoreOperation records the duration and outcome of a store call.
func (m *Metrics) ObserveStoreOperation(operation, collection string, d time.Duration, err error) {
	m.safeExecute("ObserveStoreOperation", func() {
		m.StoreOperationDuration.WithLabelValues(operation, collection).Observe(d.Seconds())
		if err != nil {
			m.StoreOperationErrors.WithLabelValues(operation, collection).Inc()
		}
	})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
