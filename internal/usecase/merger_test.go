package usecase

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentos/internal/domain/entity"
	"talentos/pkg/errors"
)

func newTestMerger(repo *memMessageRepo, feed *memFeed, store *memMediaStore) *Merger {
	return NewMerger("conv-1", "alice", repo, feed, store, time.Second, time.Second)
}

func openTestMerger(t *testing.T) (*Merger, *memMessageRepo, *memFeed, *memMediaStore) {
	t.Helper()
	repo := newMemMessageRepo()
	feed := newMemFeed()
	repo.feed = feed
	store := newMemMediaStore()
	merger := newTestMerger(repo, feed, store)
	require.NoError(t, merger.Open(context.Background()))
	return merger, repo, feed, store
}

func TestMergerOpenLoadsHistory(t *testing.T) {
	repo := newMemMessageRepo()
	feed := newMemFeed()
	store := newMemMediaStore()

	base := time.Now().Add(-time.Hour)
	repo.seed("conv-1", "bob", "first", base)
	repo.seed("conv-1", "alice", "second", base.Add(time.Minute))
	repo.seed("conv-2", "carol", "other conversation", base)

	merger := newTestMerger(repo, feed, store)
	assert.Equal(t, MergerIdle, merger.State())

	require.NoError(t, merger.Open(context.Background()))
	assert.Equal(t, MergerLive, merger.State())

	messages := merger.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
}

func TestMergerOpenFailureIsRetryable(t *testing.T) {
	repo := newMemMessageRepo()
	feed := newMemFeed()
	feed.subscribeErr = fmt.Errorf("connection refused")
	merger := newTestMerger(repo, feed, newMemMediaStore())

	err := merger.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, "FETCH_FAILED"))
	assert.Equal(t, MergerLoadFailed, merger.State())

	feed.subscribeErr = nil
	require.NoError(t, merger.Open(context.Background()))
	assert.Equal(t, MergerLive, merger.State())
}

func TestMergerOpenTwiceRejected(t *testing.T) {
	merger, _, _, _ := openTestMerger(t)
	err := merger.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestMergerFeedEventsSortedAndDeduplicated(t *testing.T) {
	merger, _, feed, _ := openTestMerger(t)

	base := time.Now()
	later := &entity.Message{ID: "msg-b", ConversationID: "conv-1", SenderID: "bob", Content: "later", CreatedAt: base.Add(time.Minute)}
	earlier := &entity.Message{ID: "msg-a", ConversationID: "conv-1", SenderID: "bob", Content: "earlier", CreatedAt: base}

	feed.publish(later)
	feed.publish(earlier)
	feed.publish(later) // duplicate delivery

	messages := merger.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "earlier", messages[0].Content)
	assert.Equal(t, "later", messages[1].Content)
}

func TestMergerOrderingTiesBrokenById(t *testing.T) {
	merger, _, feed, _ := openTestMerger(t)

	at := time.Now()
	feed.publish(&entity.Message{ID: "msg-b", ConversationID: "conv-1", CreatedAt: at})
	feed.publish(&entity.Message{ID: "msg-a", ConversationID: "conv-1", CreatedAt: at})

	messages := merger.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "msg-a", messages[0].ID)
	assert.Equal(t, "msg-b", messages[1].ID)
}

func TestMergerIgnoresOtherConversations(t *testing.T) {
	merger, _, feed, _ := openTestMerger(t)

	feed.publish(&entity.Message{ID: "msg-x", ConversationID: "conv-9", CreatedAt: time.Now()})

	assert.Empty(t, merger.Messages())
}

func TestMergerSendPromotesWithoutDuplicate(t *testing.T) {
	merger, _, _, _ := openTestMerger(t)

	var snapshots [][]*entity.Message
	merger.SetOnChange(func(messages []*entity.Message) {
		snapshots = append(snapshots, messages)
	})

	durable, err := merger.Send(context.Background(), SendInput{Content: "hello"})
	require.NoError(t, err)
	assert.False(t, durable.Provisional())

	// The feed delivered the durable row during the send; the final list
	// holds exactly one entry for the message.
	messages := merger.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, durable.ID, messages[0].ID)
	assert.Equal(t, "hello", messages[0].Content)

	// The first snapshot carried the provisional entry.
	require.NotEmpty(t, snapshots)
	assert.True(t, snapshots[0][0].Provisional())
	assert.True(t, strings.HasPrefix(snapshots[0][0].ID, entity.ProvisionalPrefix))
}

func TestMergerSendFailureRemovesProvisional(t *testing.T) {
	merger, repo, _, _ := openTestMerger(t)
	repo.createErr = fmt.Errorf("write timeout")

	_, err := merger.Send(context.Background(), SendInput{Content: "hello"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, "SEND_FAILED"))
	assert.Empty(t, merger.Messages())
}

func TestMergerUploadFailureRemovesProvisional(t *testing.T) {
	merger, repo, _, store := openTestMerger(t)
	store.uploadErr = fmt.Errorf("bucket unavailable")

	_, err := merger.Send(context.Background(), SendInput{
		Content: "with attachment",
		Media: &MediaInput{
			Reader:      strings.NewReader("blob"),
			ContentType: "image/png",
			Type:        entity.MediaTypeImage,
			LocalURL:    "file:///tmp/pic.png",
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, "UPLOAD_FAILED"))
	assert.Empty(t, merger.Messages())
	assert.Empty(t, repo.messages)
}

func TestMergerInsertFailureReclaimsUploadedMedia(t *testing.T) {
	merger, repo, _, store := openTestMerger(t)
	repo.createErr = fmt.Errorf("write timeout")

	_, err := merger.Send(context.Background(), SendInput{
		Media: &MediaInput{
			Reader:      strings.NewReader("blob"),
			ContentType: "image/png",
			Type:        entity.MediaTypeImage,
			LocalURL:    "file:///tmp/pic.png",
		},
	})
	require.Error(t, err)
	require.Len(t, store.uploads, 1)
	assert.Equal(t, store.uploads, store.deletes)
}

func TestMergerSendMediaSequencedBeforeInsert(t *testing.T) {
	merger, repo, _, store := openTestMerger(t)

	durable, err := merger.Send(context.Background(), SendInput{
		Media: &MediaInput{
			Reader:      strings.NewReader("blob"),
			ContentType: "image/png",
			Type:        entity.MediaTypeImage,
			LocalURL:    "file:///tmp/pic.png",
		},
	})
	require.NoError(t, err)
	require.Len(t, store.uploads, 1)
	assert.Equal(t, store.uploads[0], durable.MediaURL)
	assert.Equal(t, entity.MediaTypeImage, durable.MediaType)
	require.Len(t, repo.messages, 1)
	assert.Equal(t, store.uploads[0], repo.messages[0].MediaURL)
}

func TestMergerSendRequiresContentOrMedia(t *testing.T) {
	merger, _, _, _ := openTestMerger(t)

	_, err := merger.Send(context.Background(), SendInput{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestMergerSendWhenNotLive(t *testing.T) {
	merger := newTestMerger(newMemMessageRepo(), newMemFeed(), newMemMediaStore())

	_, err := merger.Send(context.Background(), SendInput{Content: "hello"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestMergerResyncPreservesProvisionals(t *testing.T) {
	merger, repo, _, _ := openTestMerger(t)

	gate := make(chan struct{})
	repo.createGate = gate

	sendDone := make(chan struct{})
	go func() {
		defer close(sendDone)
		merger.Send(context.Background(), SendInput{Content: "in flight"})
	}()

	// Wait for the optimistic insert to land.
	require.Eventually(t, func() bool {
		return len(merger.Messages()) == 1
	}, time.Second, 5*time.Millisecond)

	repo.seed("conv-1", "bob", "from history", time.Now().Add(-time.Minute))
	merger.OnResync()

	messages := merger.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "from history", messages[0].Content)
	assert.True(t, messages[1].Provisional())

	close(gate)
	<-sendDone

	// After the send settles, the provisional is gone and both messages are
	// durable.
	messages = merger.Messages()
	require.Len(t, messages, 2)
	for _, message := range messages {
		assert.False(t, message.Provisional())
	}
}

func TestMergerCloseIsIdempotent(t *testing.T) {
	merger, _, feed, _ := openTestMerger(t)
	require.Equal(t, 1, feed.activeSubscriptions())

	require.NoError(t, merger.Close())
	require.NoError(t, merger.Close())
	assert.Equal(t, MergerClosed, merger.State())
	assert.Equal(t, 0, feed.activeSubscriptions())
}

func TestMergerClosedDuringLoad(t *testing.T) {
	repo := newMemMessageRepo()
	feed := newMemFeed()
	store := newMemMediaStore()
	merger := newTestMerger(repo, feed, store)

	// Close before Open ever ran; Open must refuse and leave no
	// subscription behind.
	require.NoError(t, merger.Close())
	err := merger.Open(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, feed.activeSubscriptions())
	assert.Equal(t, MergerClosed, merger.State())
}

func TestMergerInFlightSendSurvivesClose(t *testing.T) {
	merger, repo, _, _ := openTestMerger(t)

	gate := make(chan struct{})
	repo.createGate = gate

	sendDone := make(chan error, 1)
	go func() {
		_, err := merger.Send(context.Background(), SendInput{Content: "closing time"})
		sendDone <- err
	}()

	require.Eventually(t, func() bool {
		return len(merger.Messages()) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, merger.Close())
	close(gate)

	// The durable write still completes even though the view is gone.
	require.NoError(t, <-sendDone)
	require.Len(t, repo.messages, 1)
	assert.Equal(t, "closing time", repo.messages[0].Content)
}

func TestMergerNoEventsAfterClose(t *testing.T) {
	merger, _, feed, _ := openTestMerger(t)
	require.NoError(t, merger.Close())

	feed.publish(&entity.Message{ID: "msg-late", ConversationID: "conv-1", CreatedAt: time.Now()})
	merger.OnResync()

	assert.Empty(t, merger.Messages())
}
