// Package presence tracks which users are effectively online. Each user's own
// session keeps a heartbeat on its PresenceRecord; everyone else derives
// liveness from that record at read time.
package presence

import (
	"time"

	"github.com/nfrund/classhub/internal/domain"
)

const (
	// DefaultHeartbeat is how often a session refreshes lastActive.
	DefaultHeartbeat = 15 * time.Second

	// DefaultWindow is how recent lastActive must be for a user flagged online
	// to count as online. It tolerates one missed heartbeat.
	DefaultWindow = 30 * time.Second
)

// IsEffectivelyOnline reports whether rec is flagged online and was active
// strictly within window before now. The result depends on now, so callers
// evaluate it at the moment of use instead of caching it.
func IsEffectivelyOnline(rec domain.PresenceRecord, now time.Time, window time.Duration) bool {
	return rec.IsOnline && rec.LastActive.After(now.Add(-window))
}
