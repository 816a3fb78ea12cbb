package presence

import (
	"time"

	"github.com/nfrund/classhub/internal/domain"
	"github.com/nfrund/classhub/internal/pubsub"
)

// StatusChange is the payload of the online and offline events.
type StatusChange struct {
	UID         domain.UserIdentity `json:"uid"`
	DisplayName string              `json:"displayName,omitempty"`
	LastActive  time.Time           `json:"lastActive"`
}

var (
	// EventUserOnline is published when a user becomes effectively online.
	EventUserOnline = pubsub.NewEvent[StatusChange]("presence.user.online", "Published when a user becomes effectively online")

	// EventUserOffline is published when a user signs out or their heartbeat goes stale.
	EventUserOffline = pubsub.NewEvent[StatusChange]("presence.user.offline", "Published when a user signs out or their heartbeat goes stale")
)
