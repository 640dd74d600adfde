package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-space/core/internal/pkg/response"
	"github.com/redis/go-redis/v9"
)

// RateLimitOptions configures a fixed-window limiter.
type RateLimitOptions struct {
	// Scope namespaces the counters so several limiters can share Redis.
	Scope  string
	Limit  int64
	Window time.Duration
	// SkipAuthenticated lets requests with a valid token through.
	SkipAuthenticated bool
}

// RateLimit counts requests per client IP in fixed windows stored in Redis.
// Without Redis, or when Redis fails, requests pass.
func RateLimit(rdb *redis.Client, opts RateLimitOptions) gin.HandlerFunc {
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	retryAfter := strconv.Itoa(int((opts.Window + time.Second - 1) / time.Second))

	return func(c *gin.Context) {
		if rdb == nil || opts.Limit <= 0 || (opts.SkipAuthenticated && IsAuthenticated(c)) {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		window := time.Now().UnixNano() / int64(opts.Window)
		key := fmt.Sprintf("inkwell:rate_limit:%s:%s:%d", opts.Scope, ip, window)

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rdb.PExpire(ctx, key, opts.Window+time.Second)
		}
		if count > opts.Limit {
			response.TooManyRequests(c, retryAfter)
			return
		}
		c.Next()
	}
}
