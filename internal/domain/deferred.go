package domain

import "time"

// DeferredStatus is the delivery state of a DeferredMessage.
type DeferredStatus string

const (
	DeferredPending DeferredStatus = "pending"
	DeferredSent    DeferredStatus = "sent"
)

// DeferredTextPrefix marks the text of messages appended by deferred delivery.
const DeferredTextPrefix = "AI-Scheduled: "

// DeferredMessage is a message authored now and withheld until its target is
// observed effectively online. Status only ever moves from pending to sent.
type DeferredMessage struct {
	ID                     string         `json:"id,omitempty"`
	SenderID               UserIdentity   `json:"senderId"`
	ScheduledByDisplayName string         `json:"scheduledByDisplayName,omitempty"`
	TargetUserID           UserIdentity   `json:"targetUserId"`
	TargetDisplayName      string         `json:"targetUserDisplayName,omitempty"`
	MessageText            string         `json:"messageText"`
	Status                 DeferredStatus `json:"status"`
	CreatedAt              time.Time      `json:"createdAt"`
	SentAt                 *time.Time     `json:"sentAt,omitempty"`
}

// Pending reports whether the message still awaits delivery.
func (d DeferredMessage) Pending() bool {
	return d.Status == DeferredPending
}

// DeliveredText is the text appended to the conversation on delivery.
func (d DeferredMessage) DeliveredText() string {
	return DeferredTextPrefix + d.MessageText
}
