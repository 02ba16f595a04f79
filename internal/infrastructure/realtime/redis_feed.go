package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"talentos/internal/domain/entity"
	"talentos/internal/domain/repository"
)

// redisFeed delivers message insert events over Redis pub/sub. Publishing
// happens in the Postgres message repository after a successful insert, so a
// crash between insert and publish can drop an event; the merger's resync
// path covers that on the next reconnect.
type redisFeed struct {
	rdb *redis.Client
}

func NewRedisFeed(rdb *redis.Client) repository.MessageFeed {
	return &redisFeed{
		rdb: rdb,
	}
}

func (f *redisFeed) Subscribe(ctx context.Context, conversationID string, handler repository.FeedHandler) (repository.Subscription, error) {
	return f.listen(ctx, conversationChannel(conversationID), handler)
}

func (f *redisFeed) SubscribeAll(ctx context.Context, handler repository.FeedHandler) (repository.Subscription, error) {
	return f.listen(ctx, globalChannel, handler)
}

func (f *redisFeed) listen(ctx context.Context, channel string, handler repository.FeedHandler) (repository.Subscription, error) {
	pubsub := f.rdb.Subscribe(ctx, channel)

	// Force the SUBSCRIBE round trip so a dead Redis fails Subscribe
	// instead of silently delivering nothing.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &pubsubSubscription{pubsub: pubsub, cancel: cancel}

	go func() {
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Redis feed: receive failed on %s, retrying: %v", channel, err)
				select {
				case <-time.After(snapshotRetryBackoff):
				case <-ctx.Done():
					return
				}
				handler.OnResync()
				continue
			}

			var message entity.Message
			if err := json.Unmarshal([]byte(msg.Payload), &message); err != nil {
				log.Printf("Redis feed: failed to parse message event: %v", err)
				continue
			}
			handler.OnMessage(&message)
		}
	}()

	return sub, nil
}

type pubsubSubscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	once   sync.Once
	err    error
}

func (s *pubsubSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.pubsub.Close()
	})
	return s.err
}
