package models

import (
	"time"

	"github.com/inkwell-space/core/internal/pkg/document"
)

// DefaultStoryTitle is the placeholder given to stories created before the
// author has typed a title.
const DefaultStoryTitle = "Untitled Story"

// StoryModel is the single persisted content entity, draft or published.
//
// Slug is NULL unless the story is published; the unique index therefore only
// constrains published stories. PublishedAt is set if and only if Published.
type StoryModel struct {
	Base
	Title        string        `json:"title"         gorm:"size:255;not null"`
	Content      document.Node `json:"content"`
	Subtitle     *string       `json:"subtitle"      gorm:"size:500"`
	PreviewImage *string       `json:"preview_image" gorm:"size:1024"`
	ReadingTime  *int          `json:"reading_time"`
	Slug         *string       `json:"slug"          gorm:"size:191;uniqueIndex"`
	Published    bool          `json:"published"     gorm:"not null;default:false;index"`
	PublishedAt  *time.Time    `json:"published_at"  gorm:"index"`
	ViewCount    int64         `json:"view_count"    gorm:"not null;default:0"`
	// Version increments on every write and backs compare-and-swap updates.
	Version int64 `json:"version" gorm:"not null;default:1"`
}

func (StoryModel) TableName() string { return "stories" }

// SlugValue returns the slug or "" when unset.
func (s *StoryModel) SlugValue() string {
	if s.Slug == nil {
		return ""
	}
	return *s.Slug
}
