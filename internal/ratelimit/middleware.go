// Package ratelimit throttles checkout traffic per client IP.
package ratelimit

import (
	"fmt"
	"net/http"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	mhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewRedisMiddleware builds an IP rate limit middleware from a formatted
// rate such as "60-M". State lives in Redis so limits hold across replicas.
func NewRedisMiddleware(rdb *redis.Client, format string) (func(http.Handler) http.Handler, error) {
	rate, err := limiter.NewRateFromFormatted(format)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse rate %q: %w", format, err)
	}
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
		Prefix: "ratelimit:checkout",
	})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: init store: %w", err)
	}
	mw := mhttp.NewMiddleware(limiter.New(store, rate))
	return func(next http.Handler) http.Handler {
		return mw.Handler(next)
	}, nil
}
