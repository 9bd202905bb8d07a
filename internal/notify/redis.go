package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultChannel is the Redis pub/sub channel settlement events mirror to.
const DefaultChannel = "settlement.events"

// RedisPublisher mirrors events to Redis pub/sub so sibling processes (and
// external consumers) see them too.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

func NewRedisPublisher(client *redis.Client, channel string, log zerolog.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		log:     log.With().Str("component", "notify.redis").Logger(),
	}
}

func (p *RedisPublisher) Emit(ctx context.Context, evt Event) {
	raw, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := p.client.Publish(ctx, p.channel, raw).Err(); err != nil {
		// best-effort: the in-process bus already delivered locally
		p.log.Warn().Err(err).Str("event", evt.Type).Msg("redis publish failed")
	}
}
