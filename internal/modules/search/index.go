// Package search keeps an in-memory full-text index of published stories.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/inkwell-space/core/internal/models"
	"github.com/inkwell-space/core/internal/pkg/document"
	"go.uber.org/zap"
)

const (
	DefaultLimit  = 10
	MaxLimit      = 50
	titleBoost    = 3
	subtitleBoost = 2
)

// indexedStory is the document stored per published story.
type indexedStory struct {
	Title       string
	Subtitle    string
	Content     string
	Slug        string
	PublishedAt time.Time
}

// Result is one search hit.
type Result struct {
	ID        string              `json:"id"`
	Slug      string              `json:"slug"`
	Title     string              `json:"title"`
	Score     float64             `json:"score"`
	Fragments map[string][]string `json:"fragments,omitempty"`
}

// Source enumerates published stories for a rebuild.
type Source interface {
	EachPublished(ctx context.Context, fn func([]models.StoryModel) error) error
}

// Index is safe for concurrent use. Rebuild swaps in a fresh index so
// readers never see a half-built one; writes wait for the swap so none
// land in the index being replaced.
type Index struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	index   bleve.Index
	logger  *zap.Logger
}

func NewIndex(logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{index: idx, logger: logger}, nil
}

func buildMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = "en"

	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("Title", text)
	doc.AddFieldMappingsAt("Subtitle", text)
	doc.AddFieldMappingsAt("Content", text)
	doc.AddFieldMappingsAt("Slug", keyword)
	doc.AddFieldMappingsAt("PublishedAt", bleve.NewDateTimeFieldMapping())

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

func toIndexed(s *models.StoryModel) indexedStory {
	out := indexedStory{
		Title:   s.Title,
		Content: document.PlainText(s.Content),
		Slug:    s.SlugValue(),
	}
	if s.Subtitle != nil {
		out.Subtitle = *s.Subtitle
	}
	if s.PublishedAt != nil {
		out.PublishedAt = *s.PublishedAt
	}
	return out
}

// Upsert indexes a published story; drafts are removed instead.
func (i *Index) Upsert(s *models.StoryModel) error {
	i.writeMu.Lock()
	defer i.writeMu.Unlock()
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !s.Published {
		return i.index.Delete(s.ID)
	}
	return i.index.Index(s.ID, toIndexed(s))
}

func (i *Index) Remove(id string) error {
	i.writeMu.Lock()
	defer i.writeMu.Unlock()
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.index.Delete(id)
}

// Count returns the number of indexed stories.
func (i *Index) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.index.DocCount()
}

// Search matches q against title, subtitle and body; title hits weigh most.
func (i *Index) Search(q string, limit int) ([]Result, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []Result{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	title := bleve.NewMatchQuery(q)
	title.SetField("Title")
	title.SetBoost(titleBoost)
	subtitle := bleve.NewMatchQuery(q)
	subtitle.SetField("Subtitle")
	subtitle.SetBoost(subtitleBoost)
	body := bleve.NewMatchQuery(q)
	body.SetField("Content")

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery([]query.Query{title, subtitle, body}...), limit, 0, false)
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.AddField("Content")
	req.Highlight.AddField("Title")
	req.Fields = []string{"Title", "Slug"}

	i.mu.RLock()
	res, err := i.index.Search(req)
	i.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		r := Result{ID: hit.ID, Score: hit.Score, Fragments: hit.Fragments}
		if v, ok := hit.Fields["Title"].(string); ok {
			r.Title = v
		}
		if v, ok := hit.Fields["Slug"].(string); ok {
			r.Slug = v
		}
		results = append(results, r)
	}
	return results, nil
}

// Rebuild indexes every published story from src into a new index and
// swaps it in.
func (i *Index) Rebuild(ctx context.Context, src Source) (int, error) {
	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	fresh, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return 0, fmt.Errorf("create index: %w", err)
	}
	count := 0
	err = src.EachPublished(ctx, func(stories []models.StoryModel) error {
		batch := fresh.NewBatch()
		for idx := range stories {
			if err := batch.Index(stories[idx].ID, toIndexed(&stories[idx])); err != nil {
				return fmt.Errorf("batch index %s: %w", stories[idx].ID, err)
			}
		}
		count += len(stories)
		return fresh.Batch(batch)
	})
	if err != nil {
		_ = fresh.Close()
		return 0, err
	}

	i.mu.Lock()
	old := i.index
	i.index = fresh
	i.mu.Unlock()
	if err := old.Close(); err != nil {
		i.logger.Warn("close previous search index", zap.Error(err))
	}
	i.logger.Info("search index rebuilt", zap.Int("stories", count))
	return count, nil
}

func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.index.Close()
}
