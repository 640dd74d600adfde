package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/inkwell-space/core/internal/models"
	"github.com/inkwell-space/core/internal/pkg/document"
	"github.com/inkwell-space/core/internal/pkg/metrics"
	"github.com/inkwell-space/core/internal/pkg/pagination"
	"github.com/inkwell-space/core/internal/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxTitleLength     = 255
	maxSubtitleLength  = 500
	maxImageURLLength  = 1024
	maxPublishAttempts = 3
	batchSize          = 200
)

// Indexer mirrors published stories into a search index.
type Indexer interface {
	Upsert(story *models.StoryModel) error
	Remove(id string) error
}

// Service is the story store on top of gorm.
type Service struct {
	db      *gorm.DB
	slugs   *SlugResolver
	indexer Indexer
	logger  *zap.Logger
	now     func() time.Time

	// incrementViews is the atomic view counter write; swapped in tests to
	// exercise the read-then-write fallback.
	incrementViews func(ctx context.Context, id string) (int64, error)
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for published_at and slug fallbacks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{db: db, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.slugs = NewSlugResolver(s, s.logger.Named("slug"))
	s.slugs.now = s.now
	s.incrementViews = s.incrementViewsAtomic
	return s
}

// SetIndexer wires the search index. Optional.
func (s *Service) SetIndexer(ix Indexer) {
	s.indexer = ix
}

// Create inserts a new story.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.StoryModel, error) {
	story := &models.StoryModel{
		Title:   models.DefaultStoryTitle,
		Content: document.Empty(),
		Version: 1,
	}
	if in.Title != nil {
		title, err := normalizeTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		story.Title = title
	}
	if in.Content != nil {
		if err := validateContent(*in.Content); err != nil {
			return nil, err
		}
		story.Content = *in.Content
	}

	err := s.db.WithContext(ctx).Create(story).Error
	metrics.StoryWrites.WithLabelValues("create", metrics.Result(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("create story: %w", err)
	}
	return story, nil
}

// Get returns a story by id, published or not.
func (s *Service) Get(ctx context.Context, id string) (*models.StoryModel, error) {
	var story models.StoryModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&story).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &story, nil
}

// GetPublishedBySlug returns the published story holding slug.
func (s *Service) GetPublishedBySlug(ctx context.Context, slug string) (*models.StoryModel, error) {
	var story models.StoryModel
	err := s.db.WithContext(ctx).
		Where("slug = ? AND published = ?", slug, true).
		First(&story).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &story, nil
}

// List pages through stories: all by last update, or published only by
// publish date, newest first.
func (s *Service) List(ctx context.Context, publishedOnly bool, q pagination.Query) ([]models.StoryModel, response.Pagination, error) {
	query := s.db.WithContext(ctx).Model(&models.StoryModel{})
	if publishedOnly {
		query = query.Where("published = ?", true).Order("published_at DESC")
	} else {
		query = query.Order("updated_at DESC")
	}
	query = query.Order("id")

	var stories []models.StoryModel
	pag, err := pagination.Paginate(query, q, &stories)
	if err != nil {
		return nil, response.Pagination{}, err
	}
	return stories, pag, nil
}

// EachPublished streams every published story in batches.
func (s *Service) EachPublished(ctx context.Context, fn func([]models.StoryModel) error) error {
	var batch []models.StoryModel
	result := s.db.WithContext(ctx).
		Where("published = ?", true).
		Order("published_at DESC").
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			return fn(batch)
		})
	return result.Error
}

// CountPublishedBySlug implements SlugProber.
func (s *Service) CountPublishedBySlug(ctx context.Context, slug, excludeID string) (int64, error) {
	query := s.db.WithContext(ctx).Model(&models.StoryModel{}).
		Where("slug = ? AND published = ?", slug, true)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	var n int64
	if err := query.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// Update applies a partial update of title and/or content. Every write bumps
// the version; with in.Version set, a stale version yields ErrConflict.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*models.StoryModel, error) {
	updates := map[string]interface{}{}
	if in.Title != nil {
		title, err := normalizeTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		updates["title"] = title
	}
	if in.Content != nil {
		if err := validateContent(*in.Content); err != nil {
			return nil, err
		}
		updates["content"] = *in.Content
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalid)
	}
	updates["version"] = gorm.Expr("version + 1")

	err := s.casUpdate(ctx, id, in.Version, updates)
	metrics.StoryWrites.WithLabelValues("update", metrics.Result(err)).Inc()
	if err != nil {
		return nil, err
	}

	story, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if story.Published {
		s.index(story)
	}
	return story, nil
}

// Publish makes a story public. A first publish assigns a unique slug and
// sets published_at in the same UPDATE as the flag; republishing an already
// public story only refreshes the metadata and keeps its slug.
func (s *Service) Publish(ctx context.Context, id string, in PublishInput) (*models.StoryModel, error) {
	story, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Version != nil && *in.Version != story.Version {
		return nil, ErrConflict
	}

	updates, err := publishUpdates(story, in)
	if err != nil {
		return nil, err
	}
	if story.Published && story.Slug != nil {
		err = s.casUpdate(ctx, id, &story.Version, updates)
	} else {
		err = s.publishWithSlug(ctx, story, updates)
	}
	metrics.StoryWrites.WithLabelValues("publish", metrics.Result(err)).Inc()
	if err != nil {
		return nil, err
	}

	published, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.index(published)
	return published, nil
}

func (s *Service) publishWithSlug(ctx context.Context, story *models.StoryModel, updates map[string]interface{}) error {
	updates["published"] = true
	updates["published_at"] = s.now()
	for attempt := 1; ; attempt++ {
		slug := s.slugs.Resolve(ctx, story.Title, story.ID)
		updates["slug"] = slug

		err := s.casUpdate(ctx, story.ID, &story.Version, updates)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		if attempt == maxPublishAttempts {
			return fmt.Errorf("%w: slug %q taken by a concurrent publish", ErrConflict, slug)
		}
		s.logger.Warn("slug claimed concurrently, resolving again",
			zap.String("id", story.ID), zap.String("slug", slug), zap.Int("attempt", attempt))
	}
}

func publishUpdates(story *models.StoryModel, in PublishInput) (map[string]interface{}, error) {
	updates := map[string]interface{}{"version": gorm.Expr("version + 1")}
	if in.Subtitle != nil {
		v, err := optionalText(*in.Subtitle, maxSubtitleLength, "subtitle")
		if err != nil {
			return nil, err
		}
		updates["subtitle"] = v
	}
	if in.PreviewImage != nil {
		v, err := optionalText(*in.PreviewImage, maxImageURLLength, "preview_image")
		if err != nil {
			return nil, err
		}
		updates["preview_image"] = v
	}
	readingTime := document.ReadingTime(story.Content)
	if in.ReadingTime != nil {
		if *in.ReadingTime < 0 {
			return nil, fmt.Errorf("%w: reading_time must not be negative", ErrInvalid)
		}
		readingTime = *in.ReadingTime
	}
	updates["reading_time"] = readingTime
	return updates, nil
}

// SetPreviewImage replaces the preview image URL (nil or blank clears it)
// and returns the story together with the URL it replaced.
func (s *Service) SetPreviewImage(ctx context.Context, id string, url *string) (*models.StoryModel, *string, error) {
	story, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	var value interface{}
	if url != nil {
		if value, err = optionalText(*url, maxImageURLLength, "preview_image"); err != nil {
			return nil, nil, err
		}
	}
	err = s.casUpdate(ctx, id, &story.Version, map[string]interface{}{
		"preview_image": value,
		"version":       gorm.Expr("version + 1"),
	})
	metrics.StoryWrites.WithLabelValues("preview_image", metrics.Result(err)).Inc()
	if err != nil {
		return nil, nil, err
	}

	updated, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if updated.Published {
		s.index(updated)
	}
	return updated, story.PreviewImage, nil
}

// Unpublish hides a story and releases its slug.
func (s *Service) Unpublish(ctx context.Context, id string) (*models.StoryModel, error) {
	err := s.casUpdate(ctx, id, nil, map[string]interface{}{
		"published":    false,
		"published_at": nil,
		"slug":         nil,
		"version":      gorm.Expr("version + 1"),
	})
	metrics.StoryWrites.WithLabelValues("unpublish", metrics.Result(err)).Inc()
	if err != nil {
		return nil, err
	}
	s.unindex(id)
	return s.Get(ctx, id)
}

// Delete hard-deletes a story and returns the removed row.
func (s *Service) Delete(ctx context.Context, id string) (*models.StoryModel, error) {
	story, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.StoryModel{})
	metrics.StoryWrites.WithLabelValues("delete", metrics.Result(result.Error)).Inc()
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	s.unindex(id)
	return story, nil
}

// IncrementViews adds one view to a published story and returns the new
// count. It tries a single atomic UPDATE first; if that write fails it falls
// back to reading the count and writing count+1.
func (s *Service) IncrementViews(ctx context.Context, id string) (int64, error) {
	rows, err := s.incrementViews(ctx, id)
	switch {
	case err == nil && rows == 0:
		return 0, ErrNotFound
	case err == nil:
		metrics.ViewIncrements.WithLabelValues("atomic").Inc()
	default:
		s.logger.Warn("atomic view increment failed, using read-then-write",
			zap.String("id", id), zap.Error(err))
		if err := s.incrementViewsReadWrite(ctx, id); err != nil {
			return 0, err
		}
		metrics.ViewIncrements.WithLabelValues("fallback").Inc()
	}

	var story models.StoryModel
	if err := s.db.WithContext(ctx).Select("id", "view_count").Where("id = ?", id).First(&story).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return story.ViewCount, nil
}

func (s *Service) incrementViewsAtomic(ctx context.Context, id string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.StoryModel{}).
		Where("id = ? AND published = ?", id, true).
		UpdateColumn("view_count", gorm.Expr("view_count + 1"))
	return result.RowsAffected, result.Error
}

// incrementViewsReadWrite is not atomic: two concurrent callers can read the
// same count and one view is lost.
func (s *Service) incrementViewsReadWrite(ctx context.Context, id string) error {
	var story models.StoryModel
	err := s.db.WithContext(ctx).Select("id", "view_count").
		Where("id = ? AND published = ?", id, true).
		First(&story).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return s.db.WithContext(ctx).Model(&models.StoryModel{}).
		Where("id = ?", id).
		UpdateColumn("view_count", story.ViewCount+1).Error
}

// casUpdate applies updates to one row, guarded by version when non-nil.
func (s *Service) casUpdate(ctx context.Context, id string, version *int64, updates map[string]interface{}) error {
	query := s.db.WithContext(ctx).Model(&models.StoryModel{}).Where("id = ?", id)
	if version != nil {
		query = query.Where("version = ?", *version)
	}
	result := query.Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&models.StoryModel{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func (s *Service) index(story *models.StoryModel) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.Upsert(story); err != nil {
		s.logger.Warn("search index upsert failed", zap.String("id", story.ID), zap.Error(err))
	}
}

func (s *Service) unindex(id string) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.Remove(id); err != nil {
		s.logger.Warn("search index remove failed", zap.String("id", id), zap.Error(err))
	}
}

func normalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", fmt.Errorf("%w: title must not be empty", ErrInvalid)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", fmt.Errorf("%w: title longer than %d characters", ErrInvalid, maxTitleLength)
	}
	return title, nil
}

func validateContent(doc document.Node) error {
	if err := document.Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// optionalText returns nil (SQL NULL) for blank input.
func optionalText(raw string, limit int, field string) (interface{}, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(v) > limit {
		return nil, fmt.Errorf("%w: %s longer than %d characters", ErrInvalid, field, limit)
	}
	return v, nil
}
