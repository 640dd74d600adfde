package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inkwell-space/core/internal/middleware"
	"github.com/inkwell-space/core/internal/modules/auth/gate"
	"github.com/inkwell-space/core/internal/modules/content/story"
	"github.com/inkwell-space/core/internal/modules/search"
	"github.com/inkwell-space/core/internal/modules/storage/object"
	"github.com/inkwell-space/core/internal/modules/syndication/sitemap"
	"github.com/inkwell-space/core/internal/pkg/response"
)

const apiPrefix = "/api/v1"

func (a *App) registerRoutes() {
	r := a.router
	rdb := a.rc.Raw()
	authMW := middleware.Auth(a.signer)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.Error(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Use(middleware.OptionalAuth(a.signer))
	if !a.cfg.IsDev() {
		r.Use(middleware.ResponseCache(rdb, middleware.ResponseCacheOptions{
			TTL: 30 * time.Second,
			Paths: []string{
				"/sitemap.xml",
				"/robots.txt",
				apiPrefix + "/stories/published",
				apiPrefix + "/stories/slug/*",
			},
		}))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if local, ok := a.bucket.(*object.LocalBucket); ok {
		r.Static(local.PublicPath(), local.Dir())
	}

	sitemap.NewHandler(a.stories, a.cfg.Site.BaseURL, a.logger).RegisterRoutes(r.Group(""))

	api := r.Group(apiPrefix)
	appInfo := gin.H{"name": "inkwell-core", "version": "1.0.0"}
	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		up := time.Since(a.started)
		c.JSON(http.StatusOK, gin.H{
			"timestamp": up.Milliseconds(),
			"humanize":  humanizeDuration(up),
		})
	})

	loginLimit := middleware.RateLimit(rdb, middleware.RateLimitOptions{
		Scope:  "login",
		Limit:  5,
		Window: time.Minute,
	})
	gate.NewHandler(gate.NewService(a.cfg.Auth, a.signer, a.logger), loginLimit).RegisterRoutes(api)

	story.NewHandler(a.stories, story.NewViewTracker(a.rc), a.uploader, a.logger).RegisterRoutes(api, authMW)
	object.NewHandler(a.uploader).RegisterRoutes(api, authMW)

	if a.index != nil {
		searchLimit := middleware.RateLimit(rdb, middleware.RateLimitOptions{
			Scope:             "search",
			Limit:             60,
			Window:            time.Minute,
			SkipAuthenticated: true,
		})
		search.NewHandler(a.index).RegisterRoutes(api.Group("", searchLimit))
	}

	api.GET("/jobs", authMW, a.listJobs)
	api.POST("/jobs/:name/run", authMW, a.runJob)
	api.POST("/cache/purge", authMW, func(c *gin.Context) {
		deleted, err := middleware.PurgeResponseCache(c.Request.Context(), rdb)
		if err != nil {
			response.InternalError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": deleted})
	})
}
