package repository

import (
	"context"
	"log"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"talentos/internal/domain/entity"
	"talentos/internal/domain/repository"
	"talentos/pkg/errors"
)

// Messages live in a flat top-level collection keyed by an auto-generated
// document id, filtered by conversationId. The flat layout lets one snapshot
// listener cover every conversation for the list aggregator.
type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

func (r *firestoreMessageRepository) Create(ctx context.Context, message *entity.Message) error {
	docRef := r.client.Collection("messages").NewDoc()
	message.ID = docRef.ID
	message.Read = false
	message.CreatedAt = time.Now()

	if _, err := docRef.Set(ctx, message); err != nil {
		return errors.Internal("Failed to create message", err)
	}

	// Conversation recency rides on the message write; a failure here does
	// not undo the send.
	_, err := r.client.Collection("conversations").Doc(message.ConversationID).Update(ctx, []firestore.Update{
		{Path: "updatedAt", Value: message.CreatedAt},
	})
	if err != nil {
		log.Printf("Firestore: failed to bump conversation %s updatedAt: %v", message.ConversationID, err)
	}

	return nil
}

func (r *firestoreMessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	query := r.client.Collection("messages").
		Where("conversationId", "==", conversationID).
		OrderBy("createdAt", firestore.Asc)

	iter := query.Documents(ctx)
	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Firestore error while iterating messages for conversation %s: %v", conversationID, err)
			return nil, errors.Internal("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			log.Printf("Error parsing message data for conversation %s: %v", conversationID, err)
			return nil, errors.Internal("Failed to parse message data", err)
		}
		messages = append(messages, &message)
	}

	// Equal timestamps tie-break on id.
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Before(messages[j])
	})

	return messages, nil
}

func (r *firestoreMessageRepository) Latest(ctx context.Context, conversationID string) (*entity.Message, error) {
	query := r.client.Collection("messages").
		Where("conversationId", "==", conversationID).
		OrderBy("createdAt", firestore.Desc).
		Limit(1)

	iter := query.Documents(ctx)
	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, errors.NotFound("Message", nil)
	}
	if err != nil {
		return nil, errors.Internal("Failed to get latest message", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	return &message, nil
}

func (r *firestoreMessageRepository) CountUnread(ctx context.Context, conversationID, viewerID string) (int, error) {
	query := r.client.Collection("messages").
		Where("conversationId", "==", conversationID).
		Where("isRead", "==", false).
		Where("senderId", "!=", viewerID)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		log.Printf("Firestore error while counting unread for conversation %s: %v", conversationID, err)
		return 0, errors.Internal("Failed to count unread messages", err)
	}
	return len(docs), nil
}

func (r *firestoreMessageRepository) MarkConversationRead(ctx context.Context, conversationID, readerID string) error {
	query := r.client.Collection("messages").
		Where("conversationId", "==", conversationID).
		Where("isRead", "==", false).
		Where("senderId", "!=", readerID)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return errors.Internal("Failed to query unread messages", err)
	}

	for _, doc := range docs {
		_, err := doc.Ref.Update(ctx, []firestore.Update{
			{Path: "isRead", Value: true},
		})
		if err != nil {
			return errors.Internal("Failed to update message read status", err)
		}
	}

	return nil
}
