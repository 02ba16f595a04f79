package usecase

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"talentos/internal/domain/entity"
	"talentos/internal/domain/repository"
	"talentos/pkg/errors"
	"talentos/pkg/logger"
)

// MergerState is the lifecycle state of a conversation view, not of any
// individual message.
type MergerState int

const (
	MergerIdle MergerState = iota
	MergerLoading
	MergerLoadFailed
	MergerLive
	MergerClosed
)

func (s MergerState) String() string {
	switch s {
	case MergerIdle:
		return "idle"
	case MergerLoading:
		return "loading"
	case MergerLoadFailed:
		return "load_failed"
	case MergerLive:
		return "live"
	case MergerClosed:
		return "closed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// MediaInput is a pending media attachment for an outgoing message. LocalURL
// is shown while the message is provisional; it is replaced by the durable
// blob URL on promotion.
type MediaInput struct {
	Reader      io.Reader
	ContentType string
	Type        string // entity.MediaTypeImage, MediaTypeVideo or MediaTypeFile
	LocalURL    string
}

type SendInput struct {
	Content string
	Media   *MediaInput

	// PreuploadedURL references media already stored via the upload endpoint;
	// it is attached as-is with no upload step. Mutually exclusive with Media.
	PreuploadedURL  string
	PreuploadedType string
}

// Merger maintains the ordered, duplicate-free message list for one open
// conversation by reconciling three sources: optimistic local sends, durable
// write acknowledgments, and the push feed. All list mutations are serialized
// by one mutex; send completions and feed deliveries arrive on separate
// goroutines.
type Merger struct {
	conversationID string
	viewerID       string

	messageRepo  repository.MessageRepository
	feed         repository.MessageFeed
	mediaStore   repository.MediaStore
	fetchTimeout time.Duration
	sendTimeout  time.Duration

	mu       sync.Mutex
	state    MergerState
	list     []*entity.Message
	sub      repository.Subscription
	onChange func(messages []*entity.Message)
}

func NewMerger(
	conversationID, viewerID string,
	messageRepo repository.MessageRepository,
	feed repository.MessageFeed,
	mediaStore repository.MediaStore,
	fetchTimeout, sendTimeout time.Duration,
) *Merger {
	return &Merger{
		conversationID: conversationID,
		viewerID:       viewerID,
		messageRepo:    messageRepo,
		feed:           feed,
		mediaStore:     mediaStore,
		fetchTimeout:   fetchTimeout,
		sendTimeout:    sendTimeout,
		state:          MergerIdle,
	}
}

// SetOnChange registers the observer invoked with a snapshot of the list
// after every mutation. Must be called before Open.
func (m *Merger) SetOnChange(fn func(messages []*entity.Message)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

func (m *Merger) State() MergerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Messages returns a snapshot of the current list, ascending by created-at.
func (m *Merger) Messages() []*entity.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Open loads history and subscribes to the push feed. Valid from Idle or
// from a previous failed load; a fetch failure leaves the merger retryable.
func (m *Merger) Open(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case MergerIdle, MergerLoadFailed:
		m.state = MergerLoading
	case MergerClosed:
		m.mu.Unlock()
		return errors.BadRequest("Conversation view is closed", nil)
	default:
		m.mu.Unlock()
		return errors.BadRequest("Conversation view is already open", nil)
	}
	m.mu.Unlock()

	fetched, err := m.fetchHistory(ctx)
	if err != nil {
		m.mu.Lock()
		if m.state == MergerLoading {
			m.state = MergerLoadFailed
		}
		m.mu.Unlock()
		logger.Error("Merger Open: historical fetch for conversation %s failed: %v", m.conversationID, err)
		return errors.FetchFailed("Failed to load conversation history", err)
	}

	sub, err := m.feed.Subscribe(ctx, m.conversationID, m)
	if err != nil {
		m.mu.Lock()
		if m.state == MergerLoading {
			m.state = MergerLoadFailed
		}
		m.mu.Unlock()
		logger.Error("Merger Open: subscribe for conversation %s failed: %v", m.conversationID, err)
		return errors.FetchFailed("Failed to subscribe to conversation updates", err)
	}

	m.mu.Lock()
	if m.state == MergerClosed {
		// Closed while the fetch was in flight.
		m.mu.Unlock()
		sub.Close()
		return errors.BadRequest("Conversation view is closed", nil)
	}
	m.sub = sub
	m.state = MergerLive
	m.mergeFetchedLocked(fetched)
	notify := m.changeCallbackLocked()
	m.mu.Unlock()

	notify()
	return nil
}

// Send appends an optimistic entry immediately, then performs the durable
// write (media upload strictly first) and promotes or discards the entry on
// completion. Multiple sends may be in flight at once; each settles
// independently.
func (m *Merger) Send(ctx context.Context, input SendInput) (*entity.Message, error) {
	if input.Content == "" && input.Media == nil && input.PreuploadedURL == "" {
		return nil, errors.BadRequest("Message must have content or media", nil)
	}
	if input.Media != nil && input.PreuploadedURL != "" {
		return nil, errors.BadRequest("Media and preuploaded URL are mutually exclusive", nil)
	}

	provisional := &entity.Message{
		ID:             entity.ProvisionalPrefix + uuid.New().String(),
		ConversationID: m.conversationID,
		SenderID:       m.viewerID,
		Content:        input.Content,
		CreatedAt:      time.Now(),
	}
	if input.Media != nil {
		provisional.MediaURL = input.Media.LocalURL
		provisional.MediaType = input.Media.Type
	} else if input.PreuploadedURL != "" {
		provisional.MediaURL = input.PreuploadedURL
		provisional.MediaType = input.PreuploadedType
	}

	m.mu.Lock()
	if m.state != MergerLive {
		m.mu.Unlock()
		return nil, errors.BadRequest("Conversation view is not live", nil)
	}
	m.insertLocked(provisional)
	notify := m.changeCallbackLocked()
	m.mu.Unlock()
	notify()

	ctx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	defer cancel()

	mediaURL := input.PreuploadedURL
	if input.Media != nil {
		path := fmt.Sprintf("%s/%d_%s", m.conversationID, time.Now().UnixNano(), m.viewerID)
		url, err := m.mediaStore.Upload(ctx, input.Media.Reader, input.Media.ContentType, path)
		if err != nil {
			m.discardProvisional(provisional.ID)
			logger.Error("Merger Send: media upload for conversation %s failed: %v", m.conversationID, err)
			return nil, errors.UploadFailed("Failed to upload media", err)
		}
		mediaURL = url
	}

	durable := &entity.Message{
		ConversationID: m.conversationID,
		SenderID:       m.viewerID,
		Content:        input.Content,
		MediaURL:       mediaURL,
		CreatedAt:      provisional.CreatedAt,
	}
	if input.Media != nil {
		durable.MediaType = input.Media.Type
	} else if input.PreuploadedURL != "" {
		durable.MediaType = input.PreuploadedType
	}

	if err := m.messageRepo.Create(ctx, durable); err != nil {
		m.discardProvisional(provisional.ID)
		if input.Media != nil && mediaURL != "" {
			// The blob is orphaned; no message row references it.
			if delErr := m.mediaStore.Delete(context.Background(), mediaURL); delErr != nil {
				logger.Error("Merger Send: failed to delete orphaned media %s: %v", mediaURL, delErr)
			}
		}
		logger.Error("Merger Send: durable insert for conversation %s failed: %v", m.conversationID, err)
		return nil, errors.SendFailed("Failed to send message", err)
	}

	m.promote(provisional.ID, durable)
	return durable, nil
}

// OnMessage implements repository.FeedHandler. Events are deduplicated by
// durable id and inserted at the position their timestamp dictates.
func (m *Merger) OnMessage(message *entity.Message) {
	if message == nil || message.ConversationID != m.conversationID {
		return
	}

	m.mu.Lock()
	if m.state != MergerLive {
		m.mu.Unlock()
		return
	}
	if m.containsLocked(message.ID) {
		m.mu.Unlock()
		return
	}
	m.insertLocked(message)
	notify := m.changeCallbackLocked()
	m.mu.Unlock()
	notify()
}

// OnResync implements repository.FeedHandler. The feed reconnected after a
// drop, so any events in between are gone; a full re-fetch recovers them.
func (m *Merger) OnResync() {
	m.mu.Lock()
	if m.state != MergerLive {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	fetched, err := m.fetchHistory(context.Background())
	if err != nil {
		logger.Error("Merger OnResync: re-fetch for conversation %s failed: %v", m.conversationID, err)
		return
	}

	m.mu.Lock()
	if m.state != MergerLive {
		m.mu.Unlock()
		return
	}
	m.mergeFetchedLocked(fetched)
	notify := m.changeCallbackLocked()
	m.mu.Unlock()
	notify()
}

// Close tears down the subscription. Idempotent; no list mutation is applied
// after Close, though in-flight sends still complete their durable write.
func (m *Merger) Close() error {
	m.mu.Lock()
	if m.state == MergerClosed {
		m.mu.Unlock()
		return nil
	}
	m.state = MergerClosed
	sub := m.sub
	m.sub = nil
	m.mu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			logger.Error("Merger Close: unsubscribe for conversation %s failed: %v", m.conversationID, err)
		}
	}
	return nil
}

func (m *Merger) fetchHistory(ctx context.Context) ([]*entity.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()
	return m.messageRepo.ListByConversation(ctx, m.conversationID)
}

// promote substitutes the durable identity for the provisional one. If the
// push feed already delivered the durable row, the provisional entry is
// simply dropped so the list never holds two entries for one message.
func (m *Merger) promote(provisionalID string, durable *entity.Message) {
	m.mu.Lock()
	if m.state == MergerClosed {
		// The view is gone; the durable record is the only side effect left.
		m.mu.Unlock()
		return
	}

	if m.containsLocked(durable.ID) {
		m.removeLocked(provisionalID)
	} else {
		m.removeLocked(provisionalID)
		m.insertLocked(durable)
	}
	notify := m.changeCallbackLocked()
	m.mu.Unlock()
	notify()
}

func (m *Merger) discardProvisional(provisionalID string) {
	m.mu.Lock()
	if m.state == MergerClosed {
		m.mu.Unlock()
		return
	}
	if !m.removeLocked(provisionalID) {
		m.mu.Unlock()
		return
	}
	notify := m.changeCallbackLocked()
	m.mu.Unlock()
	notify()
}

// mergeFetchedLocked replaces the durable portion of the list with a fresh
// fetch while preserving provisional entries still awaiting settlement.
func (m *Merger) mergeFetchedLocked(fetched []*entity.Message) {
	var provisionals []*entity.Message
	for _, msg := range m.list {
		if msg.Provisional() {
			provisionals = append(provisionals, msg)
		}
	}

	m.list = m.list[:0]
	seen := make(map[string]bool, len(fetched))
	for _, msg := range fetched {
		if seen[msg.ID] {
			continue
		}
		seen[msg.ID] = true
		m.insertLocked(msg)
	}
	for _, msg := range provisionals {
		m.insertLocked(msg)
	}
}

func (m *Merger) containsLocked(id string) bool {
	for _, msg := range m.list {
		if msg.ID == id {
			return true
		}
	}
	return false
}

// insertLocked places the message at the position dictated by its timestamp,
// keeping the list sorted ascending with ties broken by id.
func (m *Merger) insertLocked(message *entity.Message) {
	pos := len(m.list)
	for i, existing := range m.list {
		if message.Before(existing) {
			pos = i
			break
		}
	}
	m.list = append(m.list, nil)
	copy(m.list[pos+1:], m.list[pos:])
	m.list[pos] = message
}

func (m *Merger) removeLocked(id string) bool {
	for i, msg := range m.list {
		if msg.ID == id {
			m.list = append(m.list[:i], m.list[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Merger) snapshotLocked() []*entity.Message {
	snapshot := make([]*entity.Message, len(m.list))
	copy(snapshot, m.list)
	return snapshot
}

// changeCallbackLocked captures the observer and a snapshot under the lock
// and returns a closure to run after release, so observers never run with
// the list locked.
func (m *Merger) changeCallbackLocked() func() {
	if m.onChange == nil {
		return func() {}
	}
	fn := m.onChange
	snapshot := m.snapshotLocked()
	return func() { fn(snapshot) }
}
