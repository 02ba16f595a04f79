package usecase

import (
	"context"
	"time"

	"talentos/internal/domain/entity"
	"talentos/internal/domain/repository"
	"talentos/pkg/errors"
	"talentos/pkg/logger"
)

// DirectoryUseCase resolves an unordered participant pair to a single
// conversation id, creating the conversation on first contact.
type DirectoryUseCase struct {
	conversationRepo repository.ConversationRepository
	timeout          time.Duration
}

func NewDirectoryUseCase(conversationRepo repository.ConversationRepository, timeout time.Duration) *DirectoryUseCase {
	return &DirectoryUseCase{
		conversationRepo: conversationRepo,
		timeout:          timeout,
	}
}

// ResolveConversation returns the id of the unique conversation between the
// two participants. Two clients racing to create the same pair both converge
// to one id: the loser of the create race re-reads the winner's row.
func (uc *DirectoryUseCase) ResolveConversation(ctx context.Context, partyA, partyB string) (string, error) {
	if partyA == "" || partyB == "" {
		return "", errors.InvalidParticipant("Participant id must not be empty")
	}
	if partyA == partyB {
		return "", errors.InvalidParticipant("Cannot start a conversation with yourself")
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	existing, err := uc.conversationRepo.GetByParticipants(ctx, partyA, partyB)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, "NOT_FOUND") {
		logger.Error("ResolveConversation Error: lookup for pair (%s, %s) failed: %v", partyA, partyB, err)
		return "", err
	}

	conversation := &entity.Conversation{
		ClientID: partyA,
		TalentID: partyB,
	}

	err = uc.conversationRepo.Create(ctx, conversation)
	if err == nil {
		return conversation.ID, nil
	}

	if errors.Is(err, "CONFLICT") {
		// The other participant created the pair first.
		existing, err := uc.conversationRepo.GetByParticipants(ctx, partyA, partyB)
		if err != nil {
			logger.Error("ResolveConversation Error: re-lookup after conflict for pair (%s, %s) failed: %v", partyA, partyB, err)
			return "", err
		}
		return existing.ID, nil
	}

	logger.Error("ResolveConversation Error: create for pair (%s, %s) failed: %v", partyA, partyB, err)
	return "", err
}
