package realtime

import (
	"context"
	"log"
	"time"

	"cloud.google.com/go/firestore"

	"talentos/internal/domain/entity"
	"talentos/internal/domain/repository"
)

const snapshotRetryBackoff = 2 * time.Second

// firestoreFeed delivers message insert events via Firestore snapshot
// listeners. The initial snapshot redelivers every existing document as an
// added change; subscribers dedupe by id, so this is harmless and doubles as
// the reconcile fetch after a reconnect.
type firestoreFeed struct {
	client *firestore.Client
}

func NewFirestoreFeed(client *firestore.Client) repository.MessageFeed {
	return &firestoreFeed{
		client: client,
	}
}

func (f *firestoreFeed) Subscribe(ctx context.Context, conversationID string, handler repository.FeedHandler) (repository.Subscription, error) {
	query := f.client.Collection("messages").Where("conversationId", "==", conversationID)
	return f.run(ctx, query, handler), nil
}

func (f *firestoreFeed) SubscribeAll(ctx context.Context, handler repository.FeedHandler) (repository.Subscription, error) {
	query := f.client.Collection("messages").Query
	return f.run(ctx, query, handler), nil
}

func (f *firestoreFeed) run(ctx context.Context, query firestore.Query, handler repository.FeedHandler) repository.Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &cancelSubscription{cancel: cancel}

	go func() {
		for {
			snapIter := query.Snapshots(ctx)
			err := consumeSnapshots(snapIter, handler)
			snapIter.Stop()

			if ctx.Err() != nil {
				return
			}

			// The listener died mid-stream; events in between are lost.
			log.Printf("Firestore feed: snapshot listener dropped, resubscribing: %v", err)
			select {
			case <-time.After(snapshotRetryBackoff):
			case <-ctx.Done():
				return
			}
			handler.OnResync()
		}
	}()

	return sub
}

func consumeSnapshots(snapIter *firestore.QuerySnapshotIterator, handler repository.FeedHandler) error {
	for {
		snap, err := snapIter.Next()
		if err != nil {
			return err
		}
		for _, change := range snap.Changes {
			if change.Kind != firestore.DocumentAdded {
				continue
			}
			var message entity.Message
			if err := change.Doc.DataTo(&message); err != nil {
				log.Printf("Firestore feed: failed to parse message event: %v", err)
				continue
			}
			message.ID = change.Doc.Ref.ID
			handler.OnMessage(&message)
		}
	}
}

type cancelSubscription struct {
	cancel context.CancelFunc
}

func (s *cancelSubscription) Close() error {
	s.cancel()
	return nil
}
