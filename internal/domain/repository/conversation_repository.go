package repository

import (
	"context"

	"talentos/internal/domain/entity"
)

type ConversationRepository interface {
	// Create inserts a new conversation. The durable store enforces
	// uniqueness of the unordered participant pair and returns a CONFLICT
	// error when a row for the pair already exists.
	Create(ctx context.Context, conversation *entity.Conversation) error
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	// GetByParticipants matches the pair in either order.
	GetByParticipants(ctx context.Context, userA, userB string) (*entity.Conversation, error)
	ListByParticipant(ctx context.Context, userID string) ([]*entity.Conversation, error)
}

type MessageRepository interface {
	// Create assigns the durable id and timestamp, mutating message in place.
	Create(ctx context.Context, message *entity.Message) error
	// ListByConversation returns all messages ascending by created-at.
	ListByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error)
	Latest(ctx context.Context, conversationID string) (*entity.Message, error)
	// CountUnread counts messages in the conversation not sent by viewerID
	// and not yet read.
	CountUnread(ctx context.Context, conversationID, viewerID string) (int, error)
	// MarkConversationRead flips the read flag on every unread message in the
	// conversation that was not sent by readerID.
	MarkConversationRead(ctx context.Context, conversationID, readerID string) error
}

type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Profile, error)
}
