package usecase

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"talentos/internal/domain/entity"
	"talentos/internal/domain/repository"
	"talentos/pkg/errors"
)

// memConversationRepo mimics the pair-keyed durable store: one row per
// unordered participant pair, id derived from the sorted pair.
type memConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]*entity.Conversation
	createErr     error
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{
		conversations: make(map[string]*entity.Conversation),
	}
}

func memPairKey(userA, userB string) string {
	if userA < userB {
		return userA + "_" + userB
	}
	return userB + "_" + userA
}

func (r *memConversationRepo) Create(ctx context.Context, conversation *entity.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}

	key := memPairKey(conversation.ClientID, conversation.TalentID)
	if _, exists := r.conversations[key]; exists {
		return errors.Conflict("Conversation already exists for this pair", nil)
	}

	conversation.ID = key
	conversation.CreatedAt = time.Now()
	conversation.UpdatedAt = conversation.CreatedAt
	stored := *conversation
	r.conversations[key] = &stored
	return nil
}

func (r *memConversationRepo) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversation, ok := r.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	copied := *conversation
	return &copied, nil
}

func (r *memConversationRepo) GetByParticipants(ctx context.Context, userA, userB string) (*entity.Conversation, error) {
	return r.GetByID(ctx, memPairKey(userA, userB))
}

func (r *memConversationRepo) ListByParticipant(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*entity.Conversation
	for _, conversation := range r.conversations {
		if conversation.Involves(userID) {
			copied := *conversation
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// memMessageRepo stores messages in memory. When a feed is attached, Create
// publishes the insert event synchronously, the way the Firestore listener
// observes its own writes.
type memMessageRepo struct {
	mu        sync.Mutex
	messages  []*entity.Message
	seq       int
	feed      *memFeed
	createErr error

	// createGate, when set, is received from before each Create proceeds.
	createGate chan struct{}
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{}
}

func (r *memMessageRepo) Create(ctx context.Context, message *entity.Message) error {
	if r.createGate != nil {
		<-r.createGate
	}

	r.mu.Lock()
	if r.createErr != nil {
		r.mu.Unlock()
		return r.createErr
	}

	r.seq++
	message.ID = fmt.Sprintf("msg-%04d", r.seq)
	stored := *message
	r.messages = append(r.messages, &stored)
	feed := r.feed
	r.mu.Unlock()

	if feed != nil {
		event := stored
		feed.publish(&event)
	}
	return nil
}

func (r *memMessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*entity.Message
	for _, message := range r.messages {
		if message.ConversationID == conversationID {
			copied := *message
			result = append(result, &copied)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result, nil
}

func (r *memMessageRepo) Latest(ctx context.Context, conversationID string) (*entity.Message, error) {
	messages, _ := r.ListByConversation(ctx, conversationID)
	if len(messages) == 0 {
		return nil, errors.NotFound("Message", nil)
	}
	return messages[len(messages)-1], nil
}

func (r *memMessageRepo) CountUnread(ctx context.Context, conversationID, viewerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, message := range r.messages {
		if message.ConversationID == conversationID && !message.Read && message.SenderID != viewerID {
			count++
		}
	}
	return count, nil
}

func (r *memMessageRepo) MarkConversationRead(ctx context.Context, conversationID, readerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, message := range r.messages {
		if message.ConversationID == conversationID && message.SenderID != readerID {
			message.Read = true
		}
	}
	return nil
}

// seed inserts a durable message directly, without publishing a feed event.
func (r *memMessageRepo) seed(conversationID, senderID, content string, at time.Time) *entity.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	message := &entity.Message{
		ID:             fmt.Sprintf("msg-%04d", r.seq),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      at,
	}
	r.messages = append(r.messages, message)
	return message
}

// memFeed fans events out to every live subscription, filtered by
// conversation the way the per-conversation channels are.
type memFeed struct {
	mu   sync.Mutex
	subs []*memSubscription

	subscribeErr error
}

type memSubscription struct {
	feed           *memFeed
	conversationID string // empty for table-wide subscriptions
	handler        repository.FeedHandler
	closed         bool
}

func newMemFeed() *memFeed {
	return &memFeed{}
}

func (f *memFeed) Subscribe(ctx context.Context, conversationID string, handler repository.FeedHandler) (repository.Subscription, error) {
	return f.subscribe(conversationID, handler)
}

func (f *memFeed) SubscribeAll(ctx context.Context, handler repository.FeedHandler) (repository.Subscription, error) {
	return f.subscribe("", handler)
}

func (f *memFeed) subscribe(conversationID string, handler repository.FeedHandler) (repository.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}

	sub := &memSubscription{feed: f, conversationID: conversationID, handler: handler}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *memFeed) publish(message *entity.Message) {
	f.mu.Lock()
	subs := make([]*memSubscription, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, sub := range subs {
		f.mu.Lock()
		closed := sub.closed
		f.mu.Unlock()
		if closed {
			continue
		}
		if sub.conversationID == "" || sub.conversationID == message.ConversationID {
			sub.handler.OnMessage(message)
		}
	}
}

func (f *memFeed) resync() {
	f.mu.Lock()
	subs := make([]*memSubscription, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, sub := range subs {
		if !sub.closed {
			sub.handler.OnResync()
		}
	}
}

func (f *memFeed) activeSubscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, sub := range f.subs {
		if !sub.closed {
			count++
		}
	}
	return count
}

func (s *memSubscription) Close() error {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	s.closed = true
	return nil
}

// memProfileRepo serves display info for summary rows.
type memProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*entity.Profile
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{profiles: make(map[string]*entity.Profile)}
}

func (r *memProfileRepo) put(id, name, avatar string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[id] = &entity.Profile{ID: id, DisplayName: name, AvatarURL: avatar}
}

func (r *memProfileRepo) GetByID(ctx context.Context, id string) (*entity.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[id]
	if !ok {
		return nil, errors.NotFound("Profile", nil)
	}
	copied := *profile
	return &copied, nil
}

// memMediaStore records uploads and deletes without touching blob storage.
type memMediaStore struct {
	mu        sync.Mutex
	uploads   []string
	deletes   []string
	uploadErr error
}

func newMemMediaStore() *memMediaStore {
	return &memMediaStore{}
}

func (s *memMediaStore) Upload(ctx context.Context, file io.Reader, contentType, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	if file != nil {
		io.Copy(io.Discard, file)
	}
	url := "https://media.test/" + strings.ReplaceAll(path, " ", "_")
	s.uploads = append(s.uploads, url)
	return url, nil
}

func (s *memMediaStore) Delete(ctx context.Context, fileURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, fileURL)
	return nil
}
