package markdown

import (
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-space/core/internal/pkg/document"
	"gopkg.in/yaml.v3"
)

// ExportMeta is the front matter written ahead of an exported story.
type ExportMeta struct {
	Title        string     `yaml:"title"`
	Subtitle     string     `yaml:"subtitle,omitempty"`
	Slug         string     `yaml:"slug,omitempty"`
	PreviewImage string     `yaml:"preview_image,omitempty"`
	Date         time.Time  `yaml:"date"`
	Updated      time.Time  `yaml:"updated"`
	PublishedAt  *time.Time `yaml:"published_at,omitempty"`
	ReadingTime  int        `yaml:"reading_time,omitempty"`
}

// Export assembles a standalone Markdown file: YAML front matter, a title
// heading, then the body.
func Export(meta ExportMeta, doc document.Node) (string, error) {
	header, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal front matter: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.WriteString(strings.TrimSpace(string(header)))
	sb.WriteString("\n---\n\n# ")
	sb.WriteString(meta.Title)
	sb.WriteString("\n\n")
	sb.WriteString(strings.TrimSpace(document.ToMarkdown(doc)))
	sb.WriteString("\n")
	return sb.String(), nil
}

// ExportFilename is the download name for an exported story.
func ExportFilename(slug, id string) string {
	name := strings.TrimSpace(slug)
	if name == "" {
		name = id
	}
	return name + ".md"
}
