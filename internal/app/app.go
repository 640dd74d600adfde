package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/inkwell-space/core/internal/config"
	"github.com/inkwell-space/core/internal/database"
	"github.com/inkwell-space/core/internal/middleware"
	"github.com/inkwell-space/core/internal/modules/content/story"
	"github.com/inkwell-space/core/internal/modules/search"
	"github.com/inkwell-space/core/internal/modules/storage/object"
	pkgcron "github.com/inkwell-space/core/internal/pkg/cron"
	"github.com/inkwell-space/core/internal/pkg/jwt"
	pkgredis "github.com/inkwell-space/core/internal/pkg/redis"
)

// App holds all application dependencies.
type App struct {
	cfg      *config.AppConfig
	router   *gin.Engine
	db       *gorm.DB
	rc       *pkgredis.Client
	signer   *jwt.Signer
	stories  *story.Service
	index    *search.Index
	bucket   object.Bucket
	uploader *object.Uploader
	logger   *zap.Logger
	cancel   context.CancelFunc
	sched    *pkgcron.Scheduler
	started  time.Time
}

// New initializes the application: config → DB → Redis → services → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := applyRuntimeSettings(cfg, logger); err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	var rc *pkgredis.Client
	if cfg.RedisURL != "" {
		if rc, err = pkgredis.Connect(cfg.RedisURL); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
	} else {
		logger.Info("redis disabled: rate limits, view dedupe and response cache are off")
	}

	bucket, err := newBucket(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	signer := jwt.NewSigner(cfg.Auth.JWTSecret)
	if signer.UsesDefaultSecret() {
		logger.Warn("auth.jwt_secret is empty, using built-in default secret")
	}

	stories := story.NewService(db, story.WithLogger(logger))
	var index *search.Index
	if cfg.Search.Enable {
		if index, err = search.NewIndex(logger); err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		stories.SetIndexer(index)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics())
	router.Use(newCORS(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	sched := pkgcron.New(logger)

	a := &App{
		cfg:      cfg,
		router:   router,
		db:       db,
		rc:       rc,
		signer:   signer,
		stories:  stories,
		index:    index,
		bucket:   bucket,
		uploader: object.NewUploader(bucket, cfg.MaxUploadBytes(), logger),
		logger:   logger,
		cancel:   cancel,
		sched:    sched,
		started:  time.Now(),
	}
	a.registerCronJobs()
	a.registerRoutes()
	sched.Start(ctx)

	return a, nil
}

func newBucket(cfg *config.AppConfig) (object.Bucket, error) {
	if cfg.Storage.Driver == config.StorageS3 {
		return object.NewS3Bucket(cfg.Storage.S3)
	}
	return object.NewLocalBucket(cfg.StaticDir(), cfg.Storage.Local.PublicPath, cfg.Site.BaseURL)
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background jobs and releases connections.
func (a *App) Shutdown() {
	a.cancel()
	a.sched.Wait()
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			a.logger.Warn("close search index", zap.Error(err))
		}
	}
	if err := a.rc.Close(); err != nil {
		a.logger.Warn("close redis", zap.Error(err))
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
