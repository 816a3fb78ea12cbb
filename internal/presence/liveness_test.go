package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nfrund/classhub/internal/domain"
)

func TestIsEffectivelyOnline(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		rec  domain.PresenceRecord
		want bool
	}{
		{"fresh heartbeat", domain.PresenceRecord{IsOnline: true, LastActive: now.Add(-29 * time.Second)}, true},
		{"heartbeat this instant", domain.PresenceRecord{IsOnline: true, LastActive: now}, true},
		{"stale heartbeat", domain.PresenceRecord{IsOnline: true, LastActive: now.Add(-31 * time.Second)}, false},
		{"exactly the window", domain.PresenceRecord{IsOnline: true, LastActive: now.Add(-30 * time.Second)}, false},
		{"signed out", domain.PresenceRecord{IsOnline: false, LastActive: now}, false},
		{"never active", domain.PresenceRecord{IsOnline: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEffectivelyOnline(tt.rec, now, DefaultWindow))
		})
	}
}
