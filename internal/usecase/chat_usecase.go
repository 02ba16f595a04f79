package usecase

import (
	"context"
	"fmt"
	"io"
	"time"

	"talentos/internal/domain/entity"
	"talentos/internal/domain/repository"
	"talentos/internal/infrastructure/ratelimit"
	"talentos/pkg/errors"
	"talentos/pkg/logger"
)

// ChatUseCase is the request/response surface the API layer calls. Live
// conversation views go through Merger and Aggregator instances created by
// the factories below; the one-shot operations here hit the durable store
// directly.
type ChatUseCase struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	profileRepo      repository.ProfileRepository
	feed             repository.MessageFeed
	mediaStore       repository.MediaStore
	directory        *DirectoryUseCase
	rateLimiter      *ratelimit.RateLimiter
	fetchTimeout     time.Duration
	sendTimeout      time.Duration
}

func NewChatUseCase(
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	profileRepo repository.ProfileRepository,
	feed repository.MessageFeed,
	mediaStore repository.MediaStore,
	fetchTimeout, sendTimeout time.Duration,
) *ChatUseCase {
	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine()

	return &ChatUseCase{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		profileRepo:      profileRepo,
		feed:             feed,
		mediaStore:       mediaStore,
		directory:        NewDirectoryUseCase(conversationRepo, fetchTimeout),
		rateLimiter:      rateLimiter,
		fetchTimeout:     fetchTimeout,
		sendTimeout:      sendTimeout,
	}
}

type SendMessageInput struct {
	Content   string
	MediaURL  string // already uploaded via UploadMedia
	MediaType string // "image", "video", "file"
}

// ResolveConversation returns the conversation id for the viewer and the
// other participant, creating the conversation on first contact.
func (uc *ChatUseCase) ResolveConversation(ctx context.Context, viewerID, otherID string) (string, error) {
	allowed, waitTime := uc.rateLimiter.Allow(viewerID, "resolve_conversation")
	if !allowed {
		logger.Warn("ResolveConversation Rate Limited: User %s must wait %v", viewerID, waitTime)
		return "", errors.TooManyRequests("Rate limit exceeded. Please wait before starting another conversation")
	}

	return uc.directory.ResolveConversation(ctx, viewerID, otherID)
}

// ListConversations computes the viewer's summary list once, without a live
// subscription.
func (uc *ChatUseCase) ListConversations(ctx context.Context, viewerID string) ([]*entity.ConversationSummary, error) {
	aggregator := uc.NewAggregator(viewerID)
	if err := aggregator.Refresh(ctx); err != nil {
		return nil, err
	}
	return aggregator.List(), nil
}

// GetMessages returns the full message history of a conversation the viewer
// participates in, ascending by created-at.
func (uc *ChatUseCase) GetMessages(ctx context.Context, viewerID, conversationID string) ([]*entity.Message, error) {
	if _, err := uc.authorizeParticipant(ctx, viewerID, conversationID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, uc.fetchTimeout)
	defer cancel()

	messages, err := uc.messageRepo.ListByConversation(ctx, conversationID)
	if err != nil {
		logger.Error("GetMessages Error: fetch for conversation %s failed: %v", conversationID, err)
		return nil, errors.FetchFailed("Failed to load messages", err)
	}
	return messages, nil
}

// SendMessage performs the stateless send path: the durable insert only. The
// adapters publish the insert event, so every open view converges through
// the push feed.
func (uc *ChatUseCase) SendMessage(ctx context.Context, viewerID, conversationID string, input SendMessageInput) (*entity.Message, error) {
	allowed, waitTime := uc.rateLimiter.Allow(viewerID, "send_message")
	if !allowed {
		logger.Warn("SendMessage Rate Limited: User %s must wait %v", viewerID, waitTime)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before sending another message")
	}

	if input.Content == "" && input.MediaURL == "" {
		return nil, errors.BadRequest("Message must have content or media", nil)
	}

	if _, err := uc.authorizeParticipant(ctx, viewerID, conversationID); err != nil {
		return nil, err
	}

	message := &entity.Message{
		ConversationID: conversationID,
		SenderID:       viewerID,
		Content:        input.Content,
		MediaURL:       input.MediaURL,
		MediaType:      input.MediaType,
		CreatedAt:      time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, uc.sendTimeout)
	defer cancel()

	if err := uc.messageRepo.Create(ctx, message); err != nil {
		logger.Error("SendMessage Error: insert for conversation %s failed: %v", conversationID, err)
		return nil, errors.SendFailed("Failed to send message", err)
	}
	return message, nil
}

// UploadMedia stores a chat attachment and returns its durable URL. Callers
// pass the URL to SendMessage afterwards, keeping the upload strictly before
// the insert.
func (uc *ChatUseCase) UploadMedia(ctx context.Context, viewerID, conversationID, contentType string, file io.Reader) (string, error) {
	if _, err := uc.authorizeParticipant(ctx, viewerID, conversationID); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, uc.sendTimeout)
	defer cancel()

	path := fmt.Sprintf("%s/%d_%s", conversationID, time.Now().UnixNano(), viewerID)
	url, err := uc.mediaStore.Upload(ctx, file, contentType, path)
	if err != nil {
		logger.Error("UploadMedia Error: upload for conversation %s failed: %v", conversationID, err)
		return "", errors.UploadFailed("Failed to upload media", err)
	}
	return url, nil
}

// MarkConversationRead flips the unread messages of the other participant to
// read, fired when the viewer opens the conversation.
func (uc *ChatUseCase) MarkConversationRead(ctx context.Context, viewerID, conversationID string) error {
	if _, err := uc.authorizeParticipant(ctx, viewerID, conversationID); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, uc.sendTimeout)
	defer cancel()

	if err := uc.messageRepo.MarkConversationRead(ctx, conversationID, viewerID); err != nil {
		logger.Error("MarkConversationRead Error: conversation %s, reader %s: %v", conversationID, viewerID, err)
		return err
	}
	return nil
}

// NewMerger builds a live view for one conversation after verifying the
// viewer participates in it.
func (uc *ChatUseCase) NewMerger(ctx context.Context, viewerID, conversationID string) (*Merger, error) {
	if _, err := uc.authorizeParticipant(ctx, viewerID, conversationID); err != nil {
		return nil, err
	}
	return NewMerger(conversationID, viewerID, uc.messageRepo, uc.feed, uc.mediaStore, uc.fetchTimeout, uc.sendTimeout), nil
}

// NewAggregator builds the viewer's live conversation list.
func (uc *ChatUseCase) NewAggregator(viewerID string) *Aggregator {
	return NewAggregator(viewerID, uc.conversationRepo, uc.messageRepo, uc.profileRepo, uc.feed, uc.fetchTimeout)
}

func (uc *ChatUseCase) authorizeParticipant(ctx context.Context, viewerID, conversationID string) (*entity.Conversation, error) {
	conversation, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		logger.Error("authorizeParticipant Error: conversation %s not found: %v", conversationID, err)
		return nil, err
	}
	if !conversation.Involves(viewerID) {
		logger.Error("authorizeParticipant Error: user %s is not a participant in conversation %s", viewerID, conversationID)
		return nil, errors.Forbidden("User is not a participant in this conversation", nil)
	}
	return conversation, nil
}
