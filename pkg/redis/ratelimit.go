package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/linqan85-spec/spendo-sub000/pkg/metrics"
)

// minRetryIn keeps a denied caller from spinning when the window is almost free
const minRetryIn = 10 * time.Millisecond

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
	RetryIn   time.Duration
}

// slidingWindow keeps one sorted-set member per admitted request, scored by its time in ms.
var slidingWindow = goredis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call("zremrangebyscore", key, "-inf", window_start)

	local current = redis.call("zcard", key)

	if current < limit then
		redis.call("zadd", key, now, now .. "-" .. math.random())
		redis.call("pexpire", key, window_ms)
		return {1, limit - current - 1}
	else
		local oldest = redis.call("zrange", key, 0, 0, "WITHSCORES")
		if #oldest > 0 then
			return {0, 0, oldest[2]}
		end
		return {0, 0, 0}
	end
`)

// RateLimiter is a sliding-window limiter shared by every replica through Redis
type RateLimiter struct {
	client    *Client
	keyPrefix string
	limit     int64
	window    time.Duration
	now       func() time.Time
}

// NewRateLimiter creates a limiter admitting limit requests per window for each key
func NewRateLimiter(client *Client, keyPrefix string, limit int64, window time.Duration) *RateLimiter {
	if keyPrefix == "" {
		keyPrefix = "ratelimit:"
	}
	return &RateLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		limit:     limit,
		window:    window,
		now:       time.Now,
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		// zrange WITHSCORES returns scores as strings
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(n, 64)
			if ferr != nil {
				return 0, err
			}
			return int64(f), nil
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}

// Allow admits one request for key if the window has room
func (r *RateLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	now := r.now()
	windowStart := now.Add(-r.window)

	result, err := slidingWindow.Run(ctx, r.client.rdb, []string{r.keyPrefix + key},
		now.UnixMilli(),
		windowStart.UnixMilli(),
		r.limit,
		r.window.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, err
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected rate limit reply of length %d", len(result))
	}

	allowedFlag, err := toInt64(result[0])
	if err != nil {
		return nil, err
	}
	remaining, err := toInt64(result[1])
	if err != nil {
		return nil, err
	}

	res := &RateLimitResult{
		Allowed:   allowedFlag == 1,
		Remaining: remaining,
		ResetAt:   now.Add(r.window),
	}

	if !res.Allowed {
		res.RetryIn = minRetryIn
		if len(result) > 2 {
			oldestMs, err := toInt64(result[2])
			if err != nil {
				return nil, err
			}
			if oldestMs > 0 {
				if retryIn := time.UnixMilli(oldestMs).Add(r.window).Sub(now); retryIn > minRetryIn {
					res.RetryIn = retryIn
				}
			}
		}
	}

	return res, nil
}

// Wait blocks until key is admitted or ctx ends. Limiter failures are logged and the
// request is let through, so an unavailable Redis never blocks a sync.
func (r *RateLimiter) Wait(ctx context.Context, key, provider string) error {
	start := r.now()
	defer func() {
		metrics.RecordRateLimitWait(provider, r.now().Sub(start).Seconds())
	}()

	for {
		res, err := r.Allow(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.client.logger.WithContext(ctx).WithError(err).Warnf("rate limiter unavailable for %s, continuing", key)
			return nil
		}
		if res.Allowed {
			return nil
		}

		r.client.logger.WithContext(ctx).Debugf("rate limit reached for %s, retrying in %s", key, res.RetryIn)
		timer := time.NewTimer(res.RetryIn)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
