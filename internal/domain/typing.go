package domain

import "time"

// TypingStatus is the ephemeral typing flag of one user in one conversation.
type TypingStatus struct {
	ChatID    ConversationKey `json:"chatId"`
	UserID    UserIdentity    `json:"userId"`
	IsTyping  bool            `json:"isTyping"`
	Timestamp time.Time       `json:"timestamp"`
}

// TypingKey is the document key of a TypingStatus record.
func TypingKey(chatID ConversationKey, uid UserIdentity) string {
	return string(chatID) + "_" + string(uid)
}
