package story

import (
	"time"

	"github.com/inkwell-space/core/internal/models"
	"github.com/inkwell-space/core/internal/pkg/document"
)

// CreateInput seeds a new story. Nil fields take the defaults: the
// placeholder title and an empty document.
type CreateInput struct {
	Title   *string        `json:"title"`
	Content *document.Node `json:"content"`
}

// UpdateInput is a partial update. When Version is set the write only
// succeeds if the stored version still matches.
type UpdateInput struct {
	Title   *string        `json:"title,omitempty"`
	Content *document.Node `json:"content,omitempty"`
	Version *int64         `json:"version,omitempty"`
}

// PublishInput carries the publish dialog's metadata. A nil ReadingTime is
// computed from the stored content; empty strings clear a field.
type PublishInput struct {
	Subtitle     *string `json:"subtitle,omitempty"`
	PreviewImage *string `json:"preview_image,omitempty"`
	ReadingTime  *int    `json:"reading_time,omitempty"`
	Version      *int64  `json:"version,omitempty"`
}

type viewResponse struct {
	ViewCount int64 `json:"view_count"`
	Counted   bool  `json:"counted"`
}

// publicResponse is a published story as served to readers.
type publicResponse struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Subtitle     *string       `json:"subtitle"`
	PreviewImage *string       `json:"preview_image"`
	Slug         string        `json:"slug"`
	Content      document.Node `json:"content"`
	HTML         string        `json:"html"`
	Excerpt      string        `json:"excerpt"`
	ReadingTime  int           `json:"reading_time"`
	ViewCount    int64         `json:"view_count"`
	PublishedAt  *time.Time    `json:"published_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// summaryResponse is a list entry; it omits the document body.
type summaryResponse struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Subtitle     *string    `json:"subtitle"`
	PreviewImage *string    `json:"preview_image"`
	Slug         *string    `json:"slug"`
	Excerpt      string     `json:"excerpt"`
	ReadingTime  *int       `json:"reading_time"`
	Published    bool       `json:"published"`
	PublishedAt  *time.Time `json:"published_at"`
	ViewCount    int64      `json:"view_count"`
	Version      int64      `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

const excerptLength = 160

func toSummary(s *models.StoryModel) summaryResponse {
	return summaryResponse{
		ID:           s.ID,
		Title:        s.Title,
		Subtitle:     s.Subtitle,
		PreviewImage: s.PreviewImage,
		Slug:         s.Slug,
		Excerpt:      document.Excerpt(s.Content, excerptLength),
		ReadingTime:  s.ReadingTime,
		Published:    s.Published,
		PublishedAt:  s.PublishedAt,
		ViewCount:    s.ViewCount,
		Version:      s.Version,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func toPublic(s *models.StoryModel, html string) publicResponse {
	readingTime := document.ReadingTime(s.Content)
	if s.ReadingTime != nil {
		readingTime = *s.ReadingTime
	}
	return publicResponse{
		ID:           s.ID,
		Title:        s.Title,
		Subtitle:     s.Subtitle,
		PreviewImage: s.PreviewImage,
		Slug:         s.SlugValue(),
		Content:      s.Content,
		HTML:         html,
		Excerpt:      document.Excerpt(s.Content, excerptLength),
		ReadingTime:  readingTime,
		ViewCount:    s.ViewCount,
		PublishedAt:  s.PublishedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}
