package deferred

import (
	"time"

	"github.com/nfrund/classhub/internal/domain"
	"github.com/nfrund/classhub/internal/pubsub"
)

// Delivered is the payload of EventMessageDelivered.
type Delivered struct {
	DeferredID        string                 `json:"deferredId"`
	MessageID         string                 `json:"messageId"`
	ChatID            domain.ConversationKey `json:"chatId"`
	SenderID          domain.UserIdentity    `json:"senderId"`
	TargetUserID      domain.UserIdentity    `json:"targetUserId"`
	TargetDisplayName string                 `json:"targetUserDisplayName,omitempty"`
	Text              string                 `json:"text"`
	SentAt            time.Time              `json:"sentAt"`
	Notice            string                 `json:"notice"`
}

// EventMessageDelivered is published once per deferred message, by the session
// that won the delivery.
var EventMessageDelivered = pubsub.NewEvent[Delivered]("deferred.message.delivered", "Published when a scheduled message is sent because its recipient came online")
