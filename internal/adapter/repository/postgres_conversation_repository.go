package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/lib/pq"

	"talentos/internal/domain/entity"
	"talentos/internal/domain/repository"
	"talentos/pkg/errors"
)

const pqUniqueViolation = "23505"

type postgresConversationRepository struct {
	db *sql.DB
}

func NewPostgresConversationRepository(db *sql.DB) repository.ConversationRepository {
	return &postgresConversationRepository{
		db: db,
	}
}

// orderPair returns the participants in canonical storage order, smaller id
// first, to satisfy the ordered_participants constraint.
func orderPair(userA, userB string) (string, string) {
	if userA < userB {
		return userA, userB
	}
	return userB, userA
}

func (r *postgresConversationRepository) Create(ctx context.Context, conversation *entity.Conversation) error {
	first, second := orderPair(conversation.ClientID, conversation.TalentID)
	conversation.ClientID = first
	conversation.TalentID = second

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO conversations (client_id, talent_id)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`,
		first, second,
	).Scan(&conversation.ID, &conversation.CreatedAt, &conversation.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return errors.Conflict("Conversation for this pair already exists", err)
		}
		return errors.Internal("Failed to create conversation", err)
	}

	return nil
}

func (r *postgresConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	conversation := &entity.Conversation{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, client_id, talent_id, created_at, updated_at
		FROM conversations WHERE id = $1`,
		id,
	).Scan(&conversation.ID, &conversation.ClientID, &conversation.TalentID, &conversation.CreatedAt, &conversation.UpdatedAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, errors.Internal("Failed to get conversation", err)
	}
	return conversation, nil
}

func (r *postgresConversationRepository) GetByParticipants(ctx context.Context, userA, userB string) (*entity.Conversation, error) {
	first, second := orderPair(userA, userB)

	conversation := &entity.Conversation{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, client_id, talent_id, created_at, updated_at
		FROM conversations WHERE client_id = $1 AND talent_id = $2`,
		first, second,
	).Scan(&conversation.ID, &conversation.ClientID, &conversation.TalentID, &conversation.CreatedAt, &conversation.UpdatedAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, errors.Internal("Failed to get conversation", err)
	}
	return conversation, nil
}

func (r *postgresConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, client_id, talent_id, created_at, updated_at
		FROM conversations
		WHERE client_id = $1 OR talent_id = $1
		ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, errors.Internal("Failed to list conversations", err)
	}
	defer rows.Close()

	var conversations []*entity.Conversation
	for rows.Next() {
		conversation := &entity.Conversation{}
		if err := rows.Scan(&conversation.ID, &conversation.ClientID, &conversation.TalentID, &conversation.CreatedAt, &conversation.UpdatedAt); err != nil {
			return nil, errors.Internal("Failed to scan conversation row", err)
		}
		conversations = append(conversations, conversation)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal("Failed to iterate conversations", err)
	}

	return conversations, nil
}
