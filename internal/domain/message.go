package domain

import (
	"strings"
	"time"
)

// ConversationKey is the canonical, order-independent identifier of a two-party
// message stream.
type ConversationKey string

// String implements fmt.Stringer.
func (k ConversationKey) String() string { return string(k) }

// MessageType classifies message payloads.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypePDF   MessageType = "pdf"
	MessageTypeAudio MessageType = "audio"
	MessageTypeFile  MessageType = "file"
)

// MessageTypeFor maps a MIME content type onto a MessageType.
func MessageTypeFor(contentType string) MessageType {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return MessageTypeImage
	case strings.Contains(ct, "pdf"):
		return MessageTypePDF
	case strings.HasPrefix(ct, "audio/"):
		return MessageTypeAudio
	default:
		return MessageTypeFile
	}
}

// Message is a single entry in a direct or group message stream. Exactly one of
// ChatID or GroupID is set. Messages are append-only apart from IsRead.
type Message struct {
	ID                  string          `json:"id,omitempty"`
	ChatID              ConversationKey `json:"chatId,omitempty"`
	GroupID             string          `json:"groupId,omitempty"`
	SenderID            UserIdentity    `json:"senderId" validate:"notblank"`
	SenderDisplayName   string          `json:"senderDisplayName,omitempty"`
	ReceiverID          UserIdentity    `json:"receiverId,omitempty"`
	ReceiverDisplayName string          `json:"receiverDisplayName,omitempty"`
	Text                string          `json:"text" validate:"notblank"`
	MessageType         MessageType     `json:"messageType,omitempty"`
	FileURL             string          `json:"fileUrl,omitempty"`
	Timestamp           time.Time       `json:"timestamp"`
	IsRead              bool            `json:"isRead"`
	// DeferredID links a message to the DeferredMessage that produced it.
	DeferredID string `json:"deferredId,omitempty"`
}

// IsDeferred reports whether the message was appended by deferred delivery.
func (m Message) IsDeferred() bool {
	return m.DeferredID != ""
}
