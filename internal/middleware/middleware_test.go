package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/inkwell-space/core/internal/pkg/jwt"
	"github.com/inkwell-space/core/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedRouter(signer *jwt.Signer) *gin.Engine {
	r := gin.New()
	r.GET("/private", Auth(signer), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"authenticated": IsAuthenticated(c)})
	})
	r.GET("/public", OptionalAuth(signer), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"authenticated": IsAuthenticated(c)})
	})
	return r
}

func TestAuth(t *testing.T) {
	signer := jwt.NewSigner("secret")
	token, _, err := signer.Sign(time.Hour)
	require.NoError(t, err)
	r := protectedRouter(signer)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"bearer header", "Bearer " + token, "", http.StatusOK},
		{"bare header", token, "", http.StatusOK},
		{"query param", "", "?token=" + token, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthRejectsForeignSecret(t *testing.T) {
	token, _, err := jwt.NewSigner("other").Sign(time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	protectedRouter(jwt.NewSigner("secret")).ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOptionalAuth(t *testing.T) {
	signer := jwt.NewSigner("secret")
	token, _, err := signer.Sign(time.Hour)
	require.NoError(t, err)
	r := protectedRouter(signer)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/public", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"authenticated":false}`, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.JSONEq(t, `{"authenticated":true}`, w.Body.String())
}

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "abc", NormalizeToken("  Bearer abc "))
	assert.Equal(t, "abc", NormalizeToken("bearer abc"))
	assert.Equal(t, "abc", NormalizeToken("abc"))
	assert.Equal(t, "", NormalizeToken("   "))
}

func TestRateLimitWithoutRedisPasses(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(nil, RateLimitOptions{Scope: "login", Limit: 1, Window: time.Minute}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestResponseCacheWithoutRedisPasses(t *testing.T) {
	r := gin.New()
	r.Use(ResponseCache(nil, ResponseCacheOptions{Paths: []string{"/stories/*"}}))
	r.GET("/stories/x", func(c *gin.Context) { c.String(http.StatusOK, "x") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stories/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(cacheStatusHeader))
}

func cachedRouter(t *testing.T, signer *jwt.Signer) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := gin.New()
	r.Use(OptionalAuth(signer))
	r.Use(ResponseCache(rdb, ResponseCacheOptions{Paths: []string{"/api/v1/stories/published"}}))
	r.GET("/api/v1/stories/published", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": []string{"a"}})
	})
	r.POST("/api/v1/stories/:id/view", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.PATCH("/api/v1/stories/:id", Auth(signer), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r, mr
}

func TestResponseCacheHit(t *testing.T) {
	r, _ := cachedRouter(t, jwt.NewSigner("secret"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stories/published", nil))
	assert.Equal(t, "miss", w.Header().Get(cacheStatusHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stories/published", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hit", w.Header().Get(cacheStatusHeader))
	assert.JSONEq(t, `{"data":["a"]}`, w.Body.String())
}

func TestResponseCacheSurvivesAnonymousWrites(t *testing.T) {
	r, mr := cachedRouter(t, jwt.NewSigner("secret"))
	key := ResponseCachePrefix + "/api/v1/stories/published"

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/stories/published", nil))
	require.True(t, mr.Exists(key))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/stories/abc/view", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, mr.Exists(key))
}

func TestResponseCachePurgedByAuthenticatedWrite(t *testing.T) {
	signer := jwt.NewSigner("secret")
	token, _, err := signer.Sign(time.Hour)
	require.NoError(t, err)
	r, mr := cachedRouter(t, signer)
	key := ResponseCachePrefix + "/api/v1/stories/published"

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/stories/published", nil))
	require.True(t, mr.Exists(key))

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/stories/abc", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, mr.Exists(key))
}

func TestMatchesPath(t *testing.T) {
	patterns := []string{"/sitemap.xml", "/api/v1/stories/slug/*"}
	assert.True(t, matchesPath("/sitemap.xml", patterns))
	assert.True(t, matchesPath("/api/v1/stories/slug/hello", patterns))
	assert.False(t, matchesPath("/api/v1/stories/abc", patterns))
	assert.False(t, matchesPath("/sitemap.xml.gz", patterns))
}

func TestCapturingWriterOverflow(t *testing.T) {
	gw := &capturingWriter{limit: 4}
	gw.capture([]byte("ab"))
	gw.capture([]byte("cd"))
	assert.Equal(t, "abcd", string(gw.body))
	gw.capture([]byte("e"))
	assert.True(t, gw.overflow)
	assert.Nil(t, gw.body)
}

func TestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, p := range []string{"/ok", "/bad", "/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)
	assert.Equal(t, "/bad", entries[1].ContextMap()["path"])
}

func TestMetricsMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	r.GET("/things/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/things/:id", "200"))
	inFlight := testutil.ToFloat64(metrics.HTTPRequestsInFlight)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/42", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/things/:id", "200")))
	assert.Equal(t, inFlight, testutil.ToFloat64(metrics.HTTPRequestsInFlight))
}
