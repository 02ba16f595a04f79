package entity

import "time"

// ConversationSummary is the derived per-viewer row shown in the chat list.
// It is recomputed, never stored.
type ConversationSummary struct {
	ConversationID     string    `json:"conversation_id"`
	OtherUserID        string    `json:"other_user_id"`
	OtherUserName      string    `json:"other_user_name"`
	OtherUserAvatar    string    `json:"other_user_avatar,omitempty"`
	LastMessageContent string    `json:"last_message_content"`
	LastMessageTime    time.Time `json:"last_message_time"`
	UnreadCount        int       `json:"unread_count"`
}
