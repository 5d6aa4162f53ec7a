package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sungwon/request-mailer/internal/deliverylog"
)

const DefaultRelayChannel = "request-mailer:delivery-events"

type relayMessage struct {
	Origin string            `json:"origin"`
	Entry  deliverylog.Entry `json:"entry"`
}

// RedisRelay shares published entries between service instances over Redis
// pub/sub. Local publishes reach the local broker directly; messages from
// other instances are re-published into it.
type RedisRelay struct {
	rdb     *redis.Client
	broker  *Broker
	channel string
	origin  string
	logger  zerolog.Logger
	timeout time.Duration
}

func NewRedisRelay(rdb *redis.Client, broker *Broker, channel string, logger zerolog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{
		rdb:     rdb,
		broker:  broker,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
		timeout: 2 * time.Second,
	}
}

func (r *RedisRelay) Publish(e deliverylog.Entry) {
	r.broker.Publish(e)

	payload, err := json.Marshal(relayMessage{Origin: r.origin, Entry: e})
	if err != nil {
		r.logger.Error().Err(err).Int64("log_id", e.ID).Msg("failed to encode relay message")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn().Err(err).Int64("log_id", e.ID).Msg("failed to relay delivery event")
	}
}

// Start subscribes to the relay channel and forwards remote entries until ctx
// is done.
func (r *RedisRelay) Start(ctx context.Context) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	r.logger.Info().Str("channel", r.channel).Msg("delivery event relay subscribed")
	go r.listen(ctx, pubsub)
	return nil
}

func (r *RedisRelay) listen(ctx context.Context, pubsub *redis.PubSub) {
	defer pubsub.Close()
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var m relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				r.logger.Warn().Err(err).Msg("dropping malformed relay message")
				continue
			}
			if m.Origin == r.origin {
				continue
			}
			r.broker.Publish(m.Entry)
		}
	}
}
