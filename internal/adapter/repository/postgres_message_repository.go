package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log"

	"github.com/redis/go-redis/v9"

	"talentos/internal/domain/entity"
	"talentos/internal/domain/repository"
	"talentos/internal/infrastructure/realtime"
	"talentos/pkg/errors"
)

type postgresMessageRepository struct {
	db  *sql.DB
	rdb *redis.Client
}

// NewPostgresMessageRepository stores messages in Postgres and publishes
// insert events to the Redis feed, mirroring what a managed backend's
// realtime channel does for its tables.
func NewPostgresMessageRepository(db *sql.DB, rdb *redis.Client) repository.MessageRepository {
	return &postgresMessageRepository{
		db:  db,
		rdb: rdb,
	}
}

func (r *postgresMessageRepository) Create(ctx context.Context, message *entity.Message) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content, media_url, media_type)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))
		RETURNING id, created_at`,
		message.ConversationID, message.SenderID, message.Content, message.MediaURL, message.MediaType,
	).Scan(&message.ID, &message.CreatedAt)
	if err != nil {
		return errors.Internal("Failed to create message", err)
	}
	message.Read = false

	_, err = r.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = $1 WHERE id = $2`,
		message.CreatedAt, message.ConversationID,
	)
	if err != nil {
		log.Printf("Postgres: failed to bump conversation %s updated_at: %v", message.ConversationID, err)
	}

	// The feed is at-most-once; a dropped event is recovered by the
	// subscriber's next resync.
	if err := realtime.PublishMessage(ctx, r.rdb, message); err != nil {
		log.Printf("Postgres: failed to publish insert event for message %s: %v", message.ID, err)
	}

	return nil
}

func (r *postgresMessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender_id, COALESCE(content, ''), COALESCE(media_url, ''), COALESCE(media_type, ''), is_read, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, errors.Internal("Failed to query messages", err)
	}
	defer rows.Close()

	var messages []*entity.Message
	for rows.Next() {
		message := &entity.Message{}
		if err := rows.Scan(
			&message.ID, &message.ConversationID, &message.SenderID,
			&message.Content, &message.MediaURL, &message.MediaType,
			&message.Read, &message.CreatedAt,
		); err != nil {
			return nil, errors.Internal("Failed to scan message row", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal("Failed to iterate messages", err)
	}

	return messages, nil
}

func (r *postgresMessageRepository) Latest(ctx context.Context, conversationID string) (*entity.Message, error) {
	message := &entity.Message{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, sender_id, COALESCE(content, ''), COALESCE(media_url, ''), COALESCE(media_type, ''), is_read, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		conversationID,
	).Scan(
		&message.ID, &message.ConversationID, &message.SenderID,
		&message.Content, &message.MediaURL, &message.MediaType,
		&message.Read, &message.CreatedAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("Message", err)
		}
		return nil, errors.Internal("Failed to get latest message", err)
	}
	return message, nil
}

func (r *postgresMessageRepository) CountUnread(ctx context.Context, conversationID, viewerID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages
		WHERE conversation_id = $1 AND sender_id <> $2 AND NOT is_read`,
		conversationID, viewerID,
	).Scan(&count)
	if err != nil {
		return 0, errors.Internal("Failed to count unread messages", err)
	}
	return count, nil
}

func (r *postgresMessageRepository) MarkConversationRead(ctx context.Context, conversationID, readerID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read = TRUE
		WHERE conversation_id = $1 AND sender_id <> $2 AND NOT is_read`,
		conversationID, readerID,
	)
	if err != nil {
		return errors.Internal("Failed to update message read status", err)
	}
	return nil
}
