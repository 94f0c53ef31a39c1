package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRelayChannel is the Redis pub/sub channel shared by all replicas.
const DefaultRelayChannel = "bedtrack:events"

// envelope is the relay wire format. Origin lets a replica skip its own events.
type envelope struct {
	Origin string `json:"origin"`
	Topic  string `json:"topic,omitempty"`
	Event  Event  `json:"event"`
}

// RedisRelay delivers events to the local publisher and mirrors them to the
// other replicas through Redis pub/sub.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	origin  string
	local   Publisher
	logger  zerolog.Logger
}

func NewRedisRelay(client redis.UniversalClient, local Publisher, logger zerolog.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: DefaultRelayChannel,
		origin:  uuid.NewString(),
		local:   local,
		logger:  logger.With().Str("component", "redis_relay").Logger(),
	}
}

func (r *RedisRelay) Broadcast(ctx context.Context, event Event) error {
	if err := r.local.Broadcast(ctx, event); err != nil {
		return err
	}
	return r.send(ctx, envelope{Origin: r.origin, Event: event})
}

func (r *RedisRelay) Publish(ctx context.Context, topic string, event Event) error {
	if err := r.local.Publish(ctx, topic, event); err != nil {
		return err
	}
	return r.send(ctx, envelope{Origin: r.origin, Topic: topic, Event: event})
}

func (r *RedisRelay) send(ctx context.Context, env envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal relay envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run subscribes to the relay channel and delivers events from other
// replicas locally until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	r.logger.Info().Str("channel", r.channel).Msg("relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(ctx context.Context, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn().Err(err).Msg("malformed relay message")
		return
	}
	if env.Origin == r.origin {
		return
	}

	var err error
	if env.Topic == "" {
		err = r.local.Broadcast(ctx, env.Event)
	} else {
		err = r.local.Publish(ctx, env.Topic, env.Event)
	}
	if err != nil {
		r.logger.Error().Err(err).Str("event_type", env.Event.Type).Msg("relay delivery failed")
	}
}
