package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"talentos/internal/domain/entity"
	"talentos/internal/domain/repository"
	"talentos/pkg/errors"
	"talentos/pkg/logger"
)

// Aggregator maintains the viewer's conversation list: one summary row per
// conversation with the other participant's display info, last message
// preview and unread count, most recently active first. Conversations with
// no messages yet are excluded until a first message exists.
type Aggregator struct {
	viewerID string

	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	profileRepo      repository.ProfileRepository
	feed             repository.MessageFeed
	fetchTimeout     time.Duration

	mu        sync.Mutex
	closed    bool
	summaries []*entity.ConversationSummary
	// conversations the viewer participates in, for filtering the
	// table-wide feed client-side
	conversations map[string]*entity.Conversation
	sub           repository.Subscription
	onChange      func(summaries []*entity.ConversationSummary)
}

func NewAggregator(
	viewerID string,
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	profileRepo repository.ProfileRepository,
	feed repository.MessageFeed,
	fetchTimeout time.Duration,
) *Aggregator {
	return &Aggregator{
		viewerID:         viewerID,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		profileRepo:      profileRepo,
		feed:             feed,
		fetchTimeout:     fetchTimeout,
		conversations:    make(map[string]*entity.Conversation),
	}
}

// SetOnChange registers the observer invoked with a snapshot of the list
// after every recompute. Must be called before Start.
func (a *Aggregator) SetOnChange(fn func(summaries []*entity.ConversationSummary)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = fn
}

// Start fetches the initial list and subscribes to the message feed. A
// subscription failure degrades to a non-live but correct-at-last-fetch
// list rather than failing Start.
func (a *Aggregator) Start(ctx context.Context) error {
	if err := a.Refresh(ctx); err != nil {
		return err
	}

	sub, err := a.feed.SubscribeAll(ctx, a)
	if err != nil {
		logger.Warn("Aggregator Start: subscribe failed for viewer %s, list will not be live: %v", a.viewerID, err)
		return nil
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		sub.Close()
		return nil
	}
	a.sub = sub
	a.mu.Unlock()
	return nil
}

// List returns the current summaries, most recently active first.
func (a *Aggregator) List() []*entity.ConversationSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	snapshot := make([]*entity.ConversationSummary, len(a.summaries))
	copy(snapshot, a.summaries)
	return snapshot
}

// Refresh recomputes every summary row from the durable store.
func (a *Aggregator) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
	defer cancel()

	conversations, err := a.conversationRepo.ListByParticipant(ctx, a.viewerID)
	if err != nil {
		logger.Error("Aggregator Refresh: listing conversations for viewer %s failed: %v", a.viewerID, err)
		return errors.FetchFailed("Failed to load conversations", err)
	}

	byID := make(map[string]*entity.Conversation, len(conversations))
	summaries := make([]*entity.ConversationSummary, 0, len(conversations))
	for _, conversation := range conversations {
		byID[conversation.ID] = conversation
		summary, err := a.buildSummary(ctx, conversation)
		if err != nil {
			return err
		}
		if summary != nil {
			summaries = append(summaries, summary)
		}
	}
	sortSummaries(summaries)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.conversations = byID
	a.summaries = summaries
	notify := a.changeCallbackLocked()
	a.mu.Unlock()
	notify()
	return nil
}

// OnMessage implements repository.FeedHandler. The feed is table-wide;
// events for conversations the viewer is not part of are filtered here. A
// qualifying event recomputes the single affected row and re-sorts.
func (a *Aggregator) OnMessage(message *entity.Message) {
	if message == nil {
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	_, known := a.conversations[message.ConversationID]
	a.mu.Unlock()

	if !known {
		// Possibly a first message in a conversation created since the last
		// fetch; a full refresh picks it up if it involves the viewer.
		if err := a.Refresh(context.Background()); err != nil {
			logger.Error("Aggregator OnMessage: refresh for viewer %s failed: %v", a.viewerID, err)
		}
		return
	}

	a.recomputeRow(message.ConversationID)
}

// OnResync implements repository.FeedHandler. Events may have been dropped
// while disconnected, so every row is recomputed.
func (a *Aggregator) OnResync() {
	if err := a.Refresh(context.Background()); err != nil {
		logger.Error("Aggregator OnResync: refresh for viewer %s failed: %v", a.viewerID, err)
	}
}

// Close tears down the subscription. Idempotent.
func (a *Aggregator) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	sub := a.sub
	a.sub = nil
	a.mu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			logger.Error("Aggregator Close: unsubscribe for viewer %s failed: %v", a.viewerID, err)
		}
	}
	return nil
}

func (a *Aggregator) recomputeRow(conversationID string) {
	a.mu.Lock()
	conversation := a.conversations[conversationID]
	a.mu.Unlock()
	if conversation == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.fetchTimeout)
	defer cancel()

	summary, err := a.buildSummary(ctx, conversation)
	if err != nil {
		logger.Error("Aggregator recomputeRow: summary for conversation %s failed: %v", conversationID, err)
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	replaced := false
	for i, existing := range a.summaries {
		if existing.ConversationID == conversationID {
			if summary == nil {
				a.summaries = append(a.summaries[:i], a.summaries[i+1:]...)
			} else {
				a.summaries[i] = summary
			}
			replaced = true
			break
		}
	}
	if !replaced && summary != nil {
		a.summaries = append(a.summaries, summary)
	}
	sortSummaries(a.summaries)
	notify := a.changeCallbackLocked()
	a.mu.Unlock()
	notify()
}

// buildSummary returns nil (no row) for conversations without messages.
func (a *Aggregator) buildSummary(ctx context.Context, conversation *entity.Conversation) (*entity.ConversationSummary, error) {
	latest, err := a.messageRepo.Latest(ctx, conversation.ID)
	if err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return nil, nil
		}
		return nil, errors.FetchFailed("Failed to load latest message", err)
	}

	unread, err := a.messageRepo.CountUnread(ctx, conversation.ID, a.viewerID)
	if err != nil {
		return nil, errors.FetchFailed("Failed to count unread messages", err)
	}

	otherID := conversation.OtherParticipant(a.viewerID)
	summary := &entity.ConversationSummary{
		ConversationID:     conversation.ID,
		OtherUserID:        otherID,
		LastMessageContent: previewContent(latest),
		LastMessageTime:    latest.CreatedAt,
		UnreadCount:        unread,
	}

	profile, err := a.profileRepo.GetByID(ctx, otherID)
	if err != nil {
		// Display info is cosmetic; the row is still correct without it.
		logger.Warn("Aggregator buildSummary: profile %s not available: %v", otherID, err)
		summary.OtherUserName = otherID
		return summary, nil
	}
	summary.OtherUserName = profile.DisplayName
	summary.OtherUserAvatar = profile.AvatarURL
	return summary, nil
}

func (a *Aggregator) changeCallbackLocked() func() {
	if a.onChange == nil {
		return func() {}
	}
	fn := a.onChange
	snapshot := make([]*entity.ConversationSummary, len(a.summaries))
	copy(snapshot, a.summaries)
	return func() { fn(snapshot) }
}

func sortSummaries(summaries []*entity.ConversationSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastMessageTime.After(summaries[j].LastMessageTime)
	})
}

func previewContent(message *entity.Message) string {
	if message.Content != "" {
		return message.Content
	}
	switch message.MediaType {
	case entity.MediaTypeImage:
		return "[image]"
	case entity.MediaTypeVideo:
		return "[video]"
	case entity.MediaTypeFile:
		return "[file]"
	}
	return ""
}
