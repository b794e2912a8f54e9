package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewRateLimiter creates a Gin middleware for rate limiting backed by an
// in-process store. requests is the number of requests allowed per period;
// period is a duration string (e.g., "1m", "1h").
func NewRateLimiter(requests int64, period string) (gin.HandlerFunc, error) {
	rate, err := parseRate(requests, period)
	if err != nil {
		return nil, err
	}
	return mgin.NewMiddleware(limiter.New(memory.NewStore(), rate)), nil
}

// NewRedisRateLimiter creates a rate limiter shared across replicas through
// Redis.
func NewRedisRateLimiter(client *goredis.Client, requests int64, period string) (gin.HandlerFunc, error) {
	rate, err := parseRate(requests, period)
	if err != nil {
		return nil, err
	}
	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: "lodo:ratelimit",
	})
	if err != nil {
		return nil, fmt.Errorf("create redis rate limit store: %w", err)
	}
	return mgin.NewMiddleware(limiter.New(store, rate)), nil
}

func parseRate(requests int64, period string) (limiter.Rate, error) {
	duration, err := time.ParseDuration(period)
	if err != nil {
		return limiter.Rate{}, fmt.Errorf("invalid rate limit period %q: %w", period, err)
	}
	return limiter.Rate{Period: duration, Limit: requests}, nil
}
