package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/iota-uz/orgadmin/pkg/httpapi"
)

type RateLimitConfig struct {
	RequestsPerSecond int
	// RedisClient switches the counter store to redis when set.
	RedisClient *redis.Client
	KeyPrefix   string
	TrustProxy  bool
}

func NewRateLimitStore(cfg RateLimitConfig) (limiter.Store, error) {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "orgadmin:ratelimit"
	}
	if cfg.RedisClient != nil {
		return sredis.NewStoreWithOptions(cfg.RedisClient, limiter.StoreOptions{
			Prefix:          prefix,
			CleanUpInterval: limiter.DefaultCleanUpInterval,
		})
	}
	return memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          prefix,
		CleanUpInterval: limiter.DefaultCleanUpInterval,
	}), nil
}

// RateLimit limits requests per client IP. A non-positive rate disables it.
func RateLimit(cfg RateLimitConfig) (mux.MiddlewareFunc, error) {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	store, err := NewRateLimitStore(cfg)
	if err != nil {
		return nil, err
	}
	rate := limiter.Rate{Period: time.Second, Limit: int64(cfg.RequestsPerSecond)}
	instance := limiter.New(store, rate, limiter.WithTrustForwardHeader(cfg.TrustProxy))
	mw := stdlib.NewMiddleware(
		instance,
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			_ = httpapi.WriteFailure(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
		}),
	)
	return mw.Handler, nil
}
