package repository

import (
	"context"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"talentos/internal/domain/entity"
	"talentos/internal/domain/repository"
	"talentos/pkg/errors"
)

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

// pairKey builds the canonical document id for an unordered participant
// pair. Keying the document by the sorted pair is what makes Create fail for
// the second of two racing callers.
func pairKey(userA, userB string) string {
	if userA < userB {
		return userA + "_" + userB
	}
	return userB + "_" + userA
}

func (r *firestoreConversationRepository) Create(ctx context.Context, conversation *entity.Conversation) error {
	conversation.ID = pairKey(conversation.ClientID, conversation.TalentID)

	now := time.Now()
	conversation.CreatedAt = now
	conversation.UpdatedAt = now

	_, err := r.client.Collection("conversations").Doc(conversation.ID).Create(ctx, conversation)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errors.Conflict("Conversation for this pair already exists", err)
		}
		return errors.Internal("Failed to create conversation", err)
	}

	return nil
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.client.Collection("conversations").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, errors.Internal("Failed to get conversation", err)
	}

	var conversation entity.Conversation
	if err := doc.DataTo(&conversation); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}

	return &conversation, nil
}

func (r *firestoreConversationRepository) GetByParticipants(ctx context.Context, userA, userB string) (*entity.Conversation, error) {
	// The canonical doc id makes the unordered lookup a single point read.
	return r.GetByID(ctx, pairKey(userA, userB))
}

func (r *firestoreConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	// No OR predicate in a single query; the participant may be in either
	// slot, so run both and merge.
	var conversations []*entity.Conversation
	for _, field := range []string{"clientId", "talentId"} {
		iter := r.client.Collection("conversations").Where(field, "==", userID).Documents(ctx)
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				log.Printf("Firestore error while listing conversations for user %s: %v", userID, err)
				return nil, errors.Internal("Failed to list conversations", err)
			}

			var conversation entity.Conversation
			if err := doc.DataTo(&conversation); err != nil {
				log.Printf("Error parsing conversation data for user %s: %v", userID, err)
				continue
			}
			conversations = append(conversations, &conversation)
		}
	}

	return conversations, nil
}
