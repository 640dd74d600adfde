package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inkwell-space/core/internal/config"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	raw := fmt.Sprintf(`
env: production
database:
  driver: sqlite
  file: %s
auth:
  jwt_secret: app-test-secret
  write_password: letmein
storage:
  driver: local
  local:
    dir: %s
site:
  base_url: https://stories.example.com
search:
  enable: true
  reindex_interval: 1h
paths:
  logs: %s
`, filepath.Join(dir, "inkwell.db"), filepath.Join(dir, "static"), filepath.Join(dir, "logs"))
	cfg, err := config.Parse([]byte(raw))
	require.NoError(t, err)

	a, err := New(zap.NewNop(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)
	return a
}

type call struct {
	method, path, body, token string
}

func (a *App) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestInfrastructureRoutes(t *testing.T) {
	a := newTestApp(t)
	assert.Equal(t, ":2333", a.Addr())

	w := a.do(t, call{method: http.MethodGet, path: "/api/v1/ping"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", decode(t, w)["data"])

	w = a.do(t, call{method: http.MethodGet, path: "/api/v1/uptime"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, call{method: http.MethodGet, path: "/metrics"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "inkwell_http_requests_total")

	w = a.do(t, call{method: http.MethodGet, path: "/nowhere"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, call{method: http.MethodPut, path: "/api/v1/ping"})
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = a.do(t, call{method: http.MethodGet, path: "/robots.txt"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Sitemap: https://stories.example.com/sitemap.xml")
}

func TestPublishFlowAcrossModules(t *testing.T) {
	a := newTestApp(t)

	w := a.do(t, call{method: http.MethodPost, path: "/api/v1/stories"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, call{method: http.MethodPost, path: "/api/v1/auth/login", body: `{"password":"letmein"}`})
	require.Equal(t, http.StatusOK, w.Code)
	token, _ := decode(t, w)["token"].(string)
	require.NotEmpty(t, token)

	w = a.do(t, call{method: http.MethodPost, path: "/api/v1/stories", body: `{"title":"Lighthouse Keeper"}`, token: token})
	require.Equal(t, http.StatusCreated, w.Code)
	id, _ := decode(t, w)["id"].(string)
	require.NotEmpty(t, id)

	body := `{"content":{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"The lamp burned through the storm."}]}]},"version":1}`
	w = a.do(t, call{method: http.MethodPatch, path: "/api/v1/stories/" + id, body: body, token: token})
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, call{method: http.MethodPatch, path: "/api/v1/stories/" + id, body: body, token: token})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, call{method: http.MethodPost, path: "/api/v1/stories/" + id + "/publish", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "lighthouse-keeper", decode(t, w)["slug"])

	w = a.do(t, call{method: http.MethodGet, path: "/api/v1/stories/slug/lighthouse-keeper"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w)["html"], "The lamp burned through the storm.")

	w = a.do(t, call{method: http.MethodGet, path: "/sitemap.xml"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<loc>https://stories.example.com/story/lighthouse-keeper</loc>")

	w = a.do(t, call{method: http.MethodGet, path: "/api/v1/search?q=storm"})
	require.Equal(t, http.StatusOK, w.Code)
	results, _ := decode(t, w)["data"].([]interface{})
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].(map[string]interface{})["id"])

	w = a.do(t, call{method: http.MethodPost, path: "/api/v1/stories/" + id + "/unpublish", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, call{method: http.MethodGet, path: "/api/v1/search?q=storm"})
	require.Equal(t, http.StatusOK, w.Code)
	results, _ = decode(t, w)["data"].([]interface{})
	assert.Empty(t, results)
}

func TestJobsEndpoints(t *testing.T) {
	a := newTestApp(t)
	w := a.do(t, call{method: http.MethodPost, path: "/api/v1/auth/login", body: `{"password":"letmein"}`})
	require.Equal(t, http.StatusOK, w.Code)
	token, _ := decode(t, w)["token"].(string)

	w = a.do(t, call{method: http.MethodGet, path: "/api/v1/jobs"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, call{method: http.MethodGet, path: "/api/v1/jobs", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	jobs, _ := decode(t, w)["data"].([]interface{})
	require.Len(t, jobs, 1)
	assert.Equal(t, "reindex_search", jobs[0].(map[string]interface{})["name"])

	// Wait for the run triggered at startup so the manual run is not skipped.
	require.Eventually(t, func() bool {
		jobs := a.sched.List()
		return len(jobs) == 1 && jobs[0].LastRunAt != nil && jobs[0].Status != "running"
	}, 5*time.Second, 10*time.Millisecond)

	w = a.do(t, call{method: http.MethodPost, path: "/api/v1/jobs/reindex_search/run", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fulfill", decode(t, w)["status"])

	w = a.do(t, call{method: http.MethodPost, path: "/api/v1/jobs/nope/run", token: token})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, call{method: http.MethodPost, path: "/api/v1/cache/purge", token: token})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, "example.com:8080", extractOriginHost("https://example.com:8080"))
	assert.Equal(t, "not a url", extractOriginHost("not a url"))

	assert.True(t, matchOriginPattern("example.com", "example.com"))
	assert.True(t, matchOriginPattern("*.example.com", "blog.example.com"))
	assert.False(t, matchOriginPattern("*.example.com", "example.org"))
	assert.True(t, matchOriginPattern("localhost:*", "localhost:5173"))
	assert.False(t, matchOriginPattern("localhost:*", "otherhost:5173"))
}

func TestParseTimezoneLocation(t *testing.T) {
	loc, err := parseTimezoneLocation("+05:30")
	require.NoError(t, err)
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 5*3600+30*60, offset)

	loc, err = parseTimezoneLocation("UTC")
	require.NoError(t, err)
	assert.Equal(t, time.UTC.String(), loc.String())

	_, err = parseTimezoneLocation("Mars/Olympus")
	assert.Error(t, err)
}

func TestHumanizeDuration(t *testing.T) {
	assert.Equal(t, "42s", humanizeDuration(42*time.Second+300*time.Millisecond))
	assert.Equal(t, "5m0s", humanizeDuration(5*time.Minute+10*time.Second))
	assert.Equal(t, "3h0m0s", humanizeDuration(3*time.Hour+5*time.Minute))
	assert.Equal(t, "48h0m0s", humanizeDuration(50*time.Hour))
}
