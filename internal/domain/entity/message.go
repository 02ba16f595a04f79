package entity

import (
	"strings"
	"time"
)

const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
	MediaTypeFile  = "file"
)

// ProvisionalPrefix namespaces client-generated message ids so they can never
// collide with ids assigned by the durable store.
const ProvisionalPrefix = "tmp-"

type Message struct {
	ID             string    `json:"id" firestore:"id"`
	ConversationID string    `json:"conversation_id" firestore:"conversationId"`
	SenderID       string    `json:"sender_id" firestore:"senderId"`
	Content        string    `json:"content" firestore:"content"` // empty for media-only messages
	MediaURL       string    `json:"media_url,omitempty" firestore:"mediaUrl,omitempty"`
	MediaType      string    `json:"media_type,omitempty" firestore:"mediaType,omitempty"` // "image", "video", "file"
	Read           bool      `json:"is_read" firestore:"isRead"`
	CreatedAt      time.Time `json:"created_at" firestore:"createdAt"`
}

// Provisional reports whether the message is a not-yet-durable optimistic
// entry awaiting promotion.
func (m *Message) Provisional() bool {
	return strings.HasPrefix(m.ID, ProvisionalPrefix)
}

// Before defines the total order of the rendered list: ascending created-at,
// ties broken by id.
func (m *Message) Before(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}
