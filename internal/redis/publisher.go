package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"ridedeck/internal/events"
)

const (
	userChannelPrefix = "ridedeck:events:user:"
	broadcastChannel  = "ridedeck:events:broadcast"
)

// Publisher fans ride events out over Redis pub/sub. The socket gateway
// subscribes to the per-user channels of its connected clients.
type Publisher struct {
	client *redis.Client
}

// NewPublisher creates a new Redis pub/sub publisher.
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish sends the event on the target's channel.
func (p *Publisher) Publish(ctx context.Context, targetID, event string, payload any) error {
	return p.send(ctx, UserChannel(targetID), events.NewEnvelope(targetID, event, payload))
}

// Broadcast sends the event on the broadcast channel.
func (p *Publisher) Broadcast(ctx context.Context, event string, payload any) error {
	return p.send(ctx, broadcastChannel, events.NewEnvelope(events.BroadcastTarget, event, payload))
}

// UserChannel returns the pub/sub channel for a user or room id.
func UserChannel(targetID string) string {
	return userChannelPrefix + targetID
}

func (p *Publisher) send(ctx context.Context, channel string, envelope events.Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, channel, data).Err()
}
