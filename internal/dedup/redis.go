package dedup

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

const DefaultRedisPrefix = "payment-reconciler:claim:"

// releaseScript deletes KEYS[1] only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClaimer shares claims between processes with SET NX PX. Redis
// failures fail open: the claim is granted and the sticky flags decide.
type RedisClaimer struct {
	client *redis.Client
	prefix string
	logger *observability.Logger
	owned  bool
}

// NewRedisClaimer parses url, e.g. redis://localhost:6379/0.
func NewRedisClaimer(url, prefix string, logger *observability.Logger) (*RedisClaimer, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	c := NewRedisClaimerFromClient(redis.NewClient(opts), prefix, logger)
	c.owned = true
	return c, nil
}

func NewRedisClaimerFromClient(client *redis.Client, prefix string, logger *observability.Logger) *RedisClaimer {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisClaimer{client: client, prefix: prefix, logger: logger}
}

func (c *RedisClaimer) TryClaim(ctx context.Context, key string, ttl time.Duration) (string, bool) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, c.prefix+key, token, ttl).Result()
	if err != nil {
		c.logger.Warn("dedup claim failed open", "layer", "dedup", "component", "redis", "key", key, "err", err)
		return token, true
	}
	if !ok {
		return "", false
	}
	return token, true
}

func (c *RedisClaimer) Release(ctx context.Context, key, token string) {
	if token == "" {
		return
	}
	if err := releaseScript.Run(ctx, c.client, []string{c.prefix + key}, token).Err(); err != nil {
		c.logger.Warn("dedup release failed", "layer", "dedup", "component", "redis", "key", key, "err", err)
	}
}

func (c *RedisClaimer) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisClaimer) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}
