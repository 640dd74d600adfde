package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	ResponseCachePrefix    = "inkwell:http_cache:"
	defaultResponseTTL     = 30 * time.Second
	defaultResponseMaxBody = 1 << 20
	cacheStatusHeader      = "X-Inkwell-Cache"
)

// ResponseCacheOptions configures ResponseCache.
type ResponseCacheOptions struct {
	TTL time.Duration
	// Paths are the cacheable GET paths; a trailing "*" matches a prefix.
	Paths        []string
	MaxBodyBytes int
}

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type capturingWriter struct {
	gin.ResponseWriter
	body     []byte
	limit    int
	overflow bool
}

func (w *capturingWriter) Write(data []byte) (int, error) {
	w.capture(data)
	return w.ResponseWriter.Write(data)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.capture([]byte(s))
	return w.ResponseWriter.WriteString(s)
}

func (w *capturingWriter) capture(data []byte) {
	if w.overflow {
		return
	}
	if len(w.body)+len(data) > w.limit {
		w.overflow = true
		w.body = nil
		return
	}
	w.body = append(w.body, data...)
}

// ResponseCache serves anonymous GETs on public read paths from Redis. A
// successful authenticated write purges the whole cache, so readers see a
// publish or edit immediately. Anonymous writes (view counts, login) leave it
// alone.
func ResponseCache(rdb *redis.Client, opts ResponseCacheOptions) gin.HandlerFunc {
	if opts.TTL <= 0 {
		opts.TTL = defaultResponseTTL
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultResponseMaxBody
	}
	maxAge := "public, max-age=" + strconv.Itoa(int(opts.TTL/time.Second))

	return func(c *gin.Context) {
		if rdb == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Next()
			if status := c.Writer.Status(); status >= 200 && status < 300 && IsAuthenticated(c) {
				_, _ = PurgeResponseCache(ctx, rdb)
			}
			return
		}
		if IsAuthenticated(c) || !matchesPath(c.Request.URL.Path, opts.Paths) {
			c.Next()
			return
		}

		key := ResponseCachePrefix + c.Request.URL.RequestURI()
		if cached, ok := readCached(ctx, rdb, key); ok {
			c.Header(cacheStatusHeader, "hit")
			c.Header("Cache-Control", maxAge)
			c.Data(cached.Status, cached.ContentType, cached.Body)
			c.Abort()
			return
		}

		w := &capturingWriter{ResponseWriter: c.Writer, limit: opts.MaxBodyBytes}
		c.Writer = w
		c.Header(cacheStatusHeader, "miss")
		c.Next()

		if c.Writer.Status() != http.StatusOK || w.overflow || len(w.body) == 0 {
			return
		}
		raw, err := json.Marshal(cachedResponse{
			Status:      http.StatusOK,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        w.body,
		})
		if err != nil {
			return
		}
		_ = rdb.Set(ctx, key, raw, opts.TTL).Err()
	}
}

// PurgeResponseCache deletes every cached response.
func PurgeResponseCache(ctx context.Context, rdb *redis.Client) (int64, error) {
	if rdb == nil {
		return 0, nil
	}
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := rdb.Scan(ctx, cursor, ResponseCachePrefix+"*", 200).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func readCached(ctx context.Context, rdb *redis.Client, key string) (cachedResponse, bool) {
	raw, err := rdb.Get(ctx, key).Bytes()
	if err != nil || len(raw) == 0 {
		return cachedResponse{}, false
	}
	var cached cachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil || cached.Status == 0 {
		return cachedResponse{}, false
	}
	return cached, true
}

func matchesPath(path string, patterns []string) bool {
	for _, p := range patterns {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(path, prefix) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}
