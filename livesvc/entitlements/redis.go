package entitlements

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBroadcaster fans entitlement invalidations out to every server
// subscribed to the same channel.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	origin  string
}

func NewRedisBroadcaster(client *redis.Client, channel, origin string) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, channel: channel, origin: origin}
}

func (b *RedisBroadcaster) PublishInvalidate(ctx context.Context, playerID uuid.UUID) error {
	if err := b.client.Publish(ctx, b.channel, encodeInvalidation(b.origin, playerID)).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

// Listen drops cached entries named by messages from other servers until ctx
// ends.
func (b *RedisBroadcaster) Listen(ctx context.Context, svc *Service) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	slog.Info("Listening for entitlement invalidations",
		slog.String("type", "cache"),
		slog.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			origin, playerID, err := decodeInvalidation(msg.Payload)
			if err != nil {
				slog.Warn("Ignoring malformed invalidation",
					slog.String("type", "cache"),
					slog.String("payload", msg.Payload),
					slog.Any("error", err))
				continue
			}
			if origin == b.origin {
				continue
			}
			svc.Invalidate(playerID)
		}
	}
}

func encodeInvalidation(origin string, playerID uuid.UUID) string {
	return origin + "|" + playerID.String()
}

func decodeInvalidation(payload string) (string, uuid.UUID, error) {
	i := strings.LastIndexByte(payload, '|')
	if i < 0 {
		return "", uuid.Nil, fmt.Errorf("missing separator")
	}
	id, err := uuid.Parse(payload[i+1:])
	if err != nil {
		return "", uuid.Nil, err
	}
	return payload[:i], id, nil
}
