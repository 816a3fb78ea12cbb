package domain

// Document store collections.
const (
	CollectionPresence      = "user_presence"
	CollectionMessages      = "chat_message"
	CollectionGroupMessages = "group_message"
	CollectionDeferred      = "scheduled_message"
	CollectionTyping        = "typing_status"
)
