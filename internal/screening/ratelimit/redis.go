package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"propertyvet/internal/screening/models"

	"github.com/redis/go-redis/v9"
)

// acquireScript admits under the limit without ever counting a denial.
// KEYS[1] window key; ARGV[1] limit; ARGV[2] window in ms.
// Returns {admitted(0|1), count, pttl}.
var acquireScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[1]) then
  return {0, current, redis.call("PTTL", KEYS[1])}
end
current = redis.call("INCR", KEYS[1])
if current == 1 or redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {1, current, redis.call("PTTL", KEYS[1])}
`)

// DefaultPrefix namespaces limiter keys.
const DefaultPrefix = "propertyvet:rl:"

// RedisLimiter shares windows across engine replicas. When Redis is
// unreachable it degrades to a process-local MemoryLimiter so admission
// keeps working, at the cost of per-replica rather than global limits.
type RedisLimiter struct {
	client   redis.UniversalClient
	limits   Limits
	prefix   string
	window   time.Duration
	timeout  time.Duration
	fallback *MemoryLimiter
	logger   *slog.Logger
}

// RedisOption configures a RedisLimiter.
type RedisOption func(*RedisLimiter)

func WithPrefix(prefix string) RedisOption {
	return func(l *RedisLimiter) { l.prefix = prefix }
}

func WithLogger(logger *slog.Logger) RedisOption {
	return func(l *RedisLimiter) { l.logger = logger }
}

// WithCallTimeout bounds each Redis round trip. Default 250ms.
func WithCallTimeout(d time.Duration) RedisOption {
	return func(l *RedisLimiter) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func NewRedis(client redis.UniversalClient, limits Limits, opts ...RedisOption) *RedisLimiter {
	l := &RedisLimiter{
		client:   client,
		limits:   limits,
		prefix:   DefaultPrefix,
		window:   Window,
		timeout:  250 * time.Millisecond,
		fallback: NewMemory(limits),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLimiter) key(p models.ProviderID) string {
	return l.prefix + string(p)
}

func (l *RedisLimiter) Acquire(ctx context.Context, provider models.ProviderID) (bool, error) {
	limit, limited := l.limits.limitFor(provider)
	if !limited {
		return true, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := acquireScript.Run(callCtx, l.client, []string{l.key(provider)}, limit, l.window.Milliseconds()).Int64Slice()
	if err == nil && len(res) != 3 {
		err = fmt.Errorf("unexpected script reply length %d", len(res))
	}
	if err != nil {
		l.logger.WarnContext(ctx, "redis rate limiter unavailable, using local window",
			"provider", provider,
			"error", err,
		)
		return l.fallback.Acquire(ctx, provider)
	}
	return res[0] == 1, nil
}

func (l *RedisLimiter) Status(ctx context.Context, provider models.ProviderID) (Quota, error) {
	limit, limited := l.limits.limitFor(provider)
	if !limited {
		return unlimited(provider), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	pipe := l.client.Pipeline()
	getCmd := pipe.Get(callCtx, l.key(provider))
	ttlCmd := pipe.PTTL(callCtx, l.key(provider))
	if _, err := pipe.Exec(callCtx); err != nil && !errors.Is(err, redis.Nil) {
		return l.fallback.Status(ctx, provider)
	}

	q := Quota{Provider: provider, Limit: limit, Remaining: limit}
	used, err := getCmd.Int()
	if err != nil {
		// redis.Nil: no open window
		return q, nil
	}
	q.Used = used
	q.Remaining = max(0, limit-used)
	if ttl := ttlCmd.Val(); ttl > 0 {
		q.ResetAt = time.Now().Add(ttl)
	}
	return q, nil
}
