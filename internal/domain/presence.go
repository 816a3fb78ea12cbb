package domain

import "time"

// UserIdentity is the opaque, stable identifier issued by the authentication
// provider. It is the join key across every record in this package.
type UserIdentity string

// String implements fmt.Stringer.
func (u UserIdentity) String() string { return string(u) }

// PresenceRecord is the per-user liveness state. There is exactly one record per
// UID and only that user's own session writes it.
type PresenceRecord struct {
	UID         UserIdentity `json:"uid"`
	DisplayName string       `json:"displayName,omitempty"`
	IsOnline    bool         `json:"isOnline"`
	LastActive  time.Time    `json:"lastActive"`
}

// Sender identifies the session user authoring a message.
type Sender struct {
	UID         UserIdentity `json:"uid" validate:"notblank"`
	DisplayName string       `json:"displayName"`
}
