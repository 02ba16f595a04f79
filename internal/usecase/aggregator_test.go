package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentos/internal/domain/entity"
)

type aggregatorFixture struct {
	conversationRepo *memConversationRepo
	messageRepo      *memMessageRepo
	profileRepo      *memProfileRepo
	feed             *memFeed
}

func newAggregatorFixture() *aggregatorFixture {
	f := &aggregatorFixture{
		conversationRepo: newMemConversationRepo(),
		messageRepo:      newMemMessageRepo(),
		profileRepo:      newMemProfileRepo(),
		feed:             newMemFeed(),
	}
	f.messageRepo.feed = f.feed
	return f
}

func (f *aggregatorFixture) newAggregator(viewerID string) *Aggregator {
	return NewAggregator(viewerID, f.conversationRepo, f.messageRepo, f.profileRepo, f.feed, time.Second)
}

func (f *aggregatorFixture) addConversation(t *testing.T, userA, userB string) string {
	t.Helper()
	conversation := &entity.Conversation{ClientID: userA, TalentID: userB}
	require.NoError(t, f.conversationRepo.Create(context.Background(), conversation))
	return conversation.ID
}

func TestAggregatorBuildsSummaries(t *testing.T) {
	f := newAggregatorFixture()
	f.profileRepo.put("bob", "Bob the Plumber", "https://cdn.test/bob.png")
	f.profileRepo.put("carol", "Carol", "")

	bobConv := f.addConversation(t, "alice", "bob")
	carolConv := f.addConversation(t, "alice", "carol")

	base := time.Now().Add(-time.Hour)
	f.messageRepo.seed(bobConv, "bob", "hi alice", base)
	f.messageRepo.seed(bobConv, "bob", "are you there?", base.Add(time.Minute))
	f.messageRepo.seed(carolConv, "alice", "hello carol", base.Add(2*time.Minute))

	aggregator := f.newAggregator("alice")
	require.NoError(t, aggregator.Start(context.Background()))
	defer aggregator.Close()

	summaries := aggregator.List()
	require.Len(t, summaries, 2)

	// Most recently active first.
	assert.Equal(t, carolConv, summaries[0].ConversationID)
	assert.Equal(t, "hello carol", summaries[0].LastMessageContent)
	assert.Equal(t, 0, summaries[0].UnreadCount) // own message never counts

	assert.Equal(t, bobConv, summaries[1].ConversationID)
	assert.Equal(t, "Bob the Plumber", summaries[1].OtherUserName)
	assert.Equal(t, "https://cdn.test/bob.png", summaries[1].OtherUserAvatar)
	assert.Equal(t, "are you there?", summaries[1].LastMessageContent)
	assert.Equal(t, 2, summaries[1].UnreadCount)
}

func TestAggregatorExcludesEmptyConversations(t *testing.T) {
	f := newAggregatorFixture()
	f.addConversation(t, "alice", "bob")

	aggregator := f.newAggregator("alice")
	require.NoError(t, aggregator.Start(context.Background()))
	defer aggregator.Close()

	assert.Empty(t, aggregator.List())
}

func TestAggregatorProfileFallback(t *testing.T) {
	f := newAggregatorFixture()
	conv := f.addConversation(t, "alice", "bob")
	f.messageRepo.seed(conv, "bob", "hi", time.Now())

	aggregator := f.newAggregator("alice")
	require.NoError(t, aggregator.Start(context.Background()))
	defer aggregator.Close()

	summaries := aggregator.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, "bob", summaries[0].OtherUserID)
	assert.Equal(t, "bob", summaries[0].OtherUserName)
}

func TestAggregatorMediaPreview(t *testing.T) {
	f := newAggregatorFixture()
	conv := f.addConversation(t, "alice", "bob")

	aggregator := f.newAggregator("alice")
	require.NoError(t, aggregator.Start(context.Background()))
	defer aggregator.Close()

	require.NoError(t, f.messageRepo.Create(context.Background(), &entity.Message{
		ConversationID: conv,
		SenderID:       "bob",
		MediaURL:       "https://media.test/pic.png",
		MediaType:      entity.MediaTypeImage,
		CreatedAt:      time.Now(),
	}))

	summaries := aggregator.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, "[image]", summaries[0].LastMessageContent)
}

func TestAggregatorLiveUpdateReordersRows(t *testing.T) {
	f := newAggregatorFixture()
	bobConv := f.addConversation(t, "alice", "bob")
	carolConv := f.addConversation(t, "alice", "carol")

	base := time.Now().Add(-time.Hour)
	f.messageRepo.seed(bobConv, "bob", "old", base)
	f.messageRepo.seed(carolConv, "carol", "newer", base.Add(time.Minute))

	aggregator := f.newAggregator("alice")
	require.NoError(t, aggregator.Start(context.Background()))
	defer aggregator.Close()

	require.Equal(t, carolConv, aggregator.List()[0].ConversationID)

	// A fresh message in the older conversation moves it to the top.
	require.NoError(t, f.messageRepo.Create(context.Background(), &entity.Message{
		ConversationID: bobConv,
		SenderID:       "bob",
		Content:        "bump",
		CreatedAt:      time.Now(),
	}))

	summaries := aggregator.List()
	require.Len(t, summaries, 2)
	assert.Equal(t, bobConv, summaries[0].ConversationID)
	assert.Equal(t, "bump", summaries[0].LastMessageContent)
	assert.Equal(t, 2, summaries[0].UnreadCount)
}

func TestAggregatorPicksUpNewConversations(t *testing.T) {
	f := newAggregatorFixture()

	aggregator := f.newAggregator("alice")
	require.NoError(t, aggregator.Start(context.Background()))
	defer aggregator.Close()
	require.Empty(t, aggregator.List())

	// A conversation created after Start gets a row once its first message
	// arrives over the feed.
	conv := f.addConversation(t, "bob", "alice")
	require.NoError(t, f.messageRepo.Create(context.Background(), &entity.Message{
		ConversationID: conv,
		SenderID:       "bob",
		Content:        "first contact",
		CreatedAt:      time.Now(),
	}))

	summaries := aggregator.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, conv, summaries[0].ConversationID)
}

func TestAggregatorIgnoresForeignConversations(t *testing.T) {
	f := newAggregatorFixture()
	foreign := f.addConversation(t, "bob", "carol")

	aggregator := f.newAggregator("alice")
	require.NoError(t, aggregator.Start(context.Background()))
	defer aggregator.Close()

	// The feed is table-wide; traffic between other users never produces a
	// row for the viewer.
	require.NoError(t, f.messageRepo.Create(context.Background(), &entity.Message{
		ConversationID: foreign,
		SenderID:       "bob",
		Content:        "private",
		CreatedAt:      time.Now(),
	}))

	assert.Empty(t, aggregator.List())
}

func TestAggregatorResyncRecomputes(t *testing.T) {
	f := newAggregatorFixture()
	conv := f.addConversation(t, "alice", "bob")

	aggregator := f.newAggregator("alice")
	require.NoError(t, aggregator.Start(context.Background()))
	defer aggregator.Close()
	require.Empty(t, aggregator.List())

	// A message landed while the feed was down; the resync path recovers it.
	f.messageRepo.seed(conv, "bob", "missed you", time.Now())
	f.feed.resync()

	summaries := aggregator.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, "missed you", summaries[0].LastMessageContent)
}

func TestAggregatorUnreadDropsAfterMarkRead(t *testing.T) {
	f := newAggregatorFixture()
	conv := f.addConversation(t, "alice", "bob")
	f.messageRepo.seed(conv, "bob", "one", time.Now().Add(-time.Minute))
	f.messageRepo.seed(conv, "bob", "two", time.Now())

	aggregator := f.newAggregator("alice")
	require.NoError(t, aggregator.Start(context.Background()))
	defer aggregator.Close()
	require.Equal(t, 2, aggregator.List()[0].UnreadCount)

	require.NoError(t, f.messageRepo.MarkConversationRead(context.Background(), conv, "alice"))
	require.NoError(t, aggregator.Refresh(context.Background()))

	assert.Equal(t, 0, aggregator.List()[0].UnreadCount)
}

func TestAggregatorCloseIsIdempotent(t *testing.T) {
	f := newAggregatorFixture()
	aggregator := f.newAggregator("alice")
	require.NoError(t, aggregator.Start(context.Background()))

	require.NoError(t, aggregator.Close())
	require.NoError(t, aggregator.Close())
	assert.Equal(t, 0, f.feed.activeSubscriptions())
}
