package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"talentos/internal/domain/entity"
)

// Channel layout for the self-hosted feed: every insert is published on the
// global channel and on the conversation-scoped one, so subscribers pick the
// granularity they need.
const globalChannel = "chat:events"

func conversationChannel(conversationID string) string {
	return fmt.Sprintf("chat:events:%s", conversationID)
}

// PublishMessage emits an insert event for a durably written message.
// Delivery is fire-and-forget: the feed is at-most-once and subscribers
// reconcile via re-fetch, so a failed publish is logged by the caller, not
// retried.
func PublishMessage(ctx context.Context, rdb *redis.Client, message *entity.Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message event: %w", err)
	}

	if err := rdb.Publish(ctx, conversationChannel(message.ConversationID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish conversation event: %w", err)
	}
	if err := rdb.Publish(ctx, globalChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish global event: %w", err)
	}
	return nil
}
