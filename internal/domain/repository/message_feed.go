package repository

import (
	"context"

	"talentos/internal/domain/entity"
)

// FeedHandler receives push-feed callbacks. Delivery is at-most-once: events
// may be lost across a disconnect, so OnResync is fired after every reconnect
// and the subscriber is expected to re-fetch and reconcile.
type FeedHandler interface {
	// OnMessage delivers a newly inserted message. Arrival order is not
	// guaranteed to match creation order.
	OnMessage(message *entity.Message)
	// OnResync signals that events may have been dropped since the last
	// delivery.
	OnResync()
}

type Subscription interface {
	// Close tears the subscription down. Idempotent.
	Close() error
}

type MessageFeed interface {
	// Subscribe delivers insert events for a single conversation.
	Subscribe(ctx context.Context, conversationID string, handler FeedHandler) (Subscription, error)
	// SubscribeAll delivers insert events for every conversation. Callers
	// filter client-side.
	SubscribeAll(ctx context.Context, handler FeedHandler) (Subscription, error)
}
