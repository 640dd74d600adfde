// Package sitemap serves sitemap.xml and robots.txt for the public site.
package sitemap

import (
	"context"
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-space/core/internal/models"
	"go.uber.org/zap"
)

const xmlns = "http://www.sitemaps.org/schemas/sitemap/0.9"

// Source enumerates published stories.
type Source interface {
	EachPublished(ctx context.Context, fn func([]models.StoryModel) error) error
}

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	URLs    []url    `xml:"url"`
}

type url struct {
	Loc        string  `xml:"loc"`
	LastMod    string  `xml:"lastmod"`
	ChangeFreq string  `xml:"changefreq"`
	Priority   float64 `xml:"priority"`
}

type Handler struct {
	src     Source
	baseURL string
	logger  *zap.Logger
	now     func() time.Time
}

func NewHandler(src Source, baseURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{src: src, baseURL: FormatBaseURL(baseURL), logger: logger, now: time.Now}
}

// FormatBaseURL adds a scheme when missing and drops the trailing slash.
func FormatBaseURL(raw string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw != "" && !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	return raw
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sitemap.xml", h.sitemap)
	rg.GET("/robots.txt", h.robots)
}

// build lists the home page, the published index and every published story.
// When stories cannot be loaded only the static pages are returned.
func (h *Handler) build(ctx context.Context) urlSet {
	today := h.now().UTC().Format("2006-01-02")
	set := urlSet{Xmlns: xmlns, URLs: []url{
		{Loc: h.baseURL, LastMod: today, ChangeFreq: "daily", Priority: 1.0},
		{Loc: h.baseURL + "/published", LastMod: today, ChangeFreq: "hourly", Priority: 0.8},
	}}

	var stories []url
	err := h.src.EachPublished(ctx, func(batch []models.StoryModel) error {
		for i := range batch {
			slug := batch[i].SlugValue()
			if slug == "" {
				continue
			}
			stories = append(stories, url{
				Loc:        h.baseURL + "/story/" + slug,
				LastMod:    batch[i].UpdatedAt.UTC().Format("2006-01-02"),
				ChangeFreq: "weekly",
				Priority:   0.7,
			})
		}
		return nil
	})
	if err != nil {
		h.logger.Error("sitemap: list published stories", zap.Error(err))
		return set
	}
	set.URLs = append(set.URLs, stories...)
	return set
}

// sitemap GET /sitemap.xml
func (h *Handler) sitemap(c *gin.Context) {
	body, err := xml.MarshalIndent(h.build(c.Request.Context()), "", "  ")
	if err != nil {
		c.String(http.StatusInternalServerError, "error generating sitemap")
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", append([]byte(xml.Header), body...))
}

// robots GET /robots.txt
func (h *Handler) robots(c *gin.Context) {
	var b strings.Builder
	b.WriteString("User-Agent: *\n")
	b.WriteString("Allow: /\n")
	b.WriteString("Disallow: /api/\n")
	b.WriteString("Disallow: /write\n")
	b.WriteString("\nSitemap: " + h.baseURL + "/sitemap.xml\n")
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(b.String()))
}
