package story

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-space/core/internal/modules/processing/markdown"
	"github.com/inkwell-space/core/internal/modules/storage/object"
	"github.com/inkwell-space/core/internal/pkg/metrics"
	"github.com/inkwell-space/core/internal/pkg/pagination"
	"github.com/inkwell-space/core/internal/pkg/response"
	"go.uber.org/zap"
)

// Handler serves the story API.
type Handler struct {
	svc    *Service
	views  *ViewTracker
	images *object.Uploader
	logger *zap.Logger
}

func NewHandler(svc *Service, views *ViewTracker, images *object.Uploader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, views: views, images: images, logger: logger}
}

// RegisterRoutes mounts story routes onto the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	stories := rg.Group("/stories")

	stories.GET("/published", h.listPublished)
	stories.GET("/slug/:slug", h.getBySlug)
	stories.POST("/:id/view", h.view)

	authed := stories.Group("", authMW)
	authed.GET("", h.list)
	authed.POST("", h.create)
	authed.GET("/:id", h.get)
	authed.GET("/:id/markdown", h.exportMarkdown)
	authed.PATCH("/:id", h.update)
	authed.POST("/:id/publish", h.publish)
	authed.POST("/:id/unpublish", h.unpublish)
	authed.DELETE("/:id", h.delete)
	authed.POST("/:id/preview-image", h.uploadPreviewImage)
	authed.DELETE("/:id/preview-image", h.clearPreviewImage)
}

// list GET /stories
func (h *Handler) list(c *gin.Context) {
	h.listStories(c, false)
}

// listPublished GET /stories/published
func (h *Handler) listPublished(c *gin.Context) {
	h.listStories(c, true)
}

func (h *Handler) listStories(c *gin.Context, publishedOnly bool) {
	stories, pag, err := h.svc.List(c.Request.Context(), publishedOnly, pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	items := make([]summaryResponse, len(stories))
	for i := range stories {
		items[i] = toSummary(&stories[i])
	}
	response.Paged(c, items, pag)
}

// getBySlug GET /stories/slug/:slug
func (h *Handler) getBySlug(c *gin.Context) {
	story, err := h.svc.GetPublishedBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	html, err := markdown.RenderHTML(story.Content)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, toPublic(story, html))
}

// view POST /stories/:id/view
func (h *Handler) view(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if !h.views.ShouldCount(ctx, id, c.ClientIP()) {
		metrics.ViewIncrements.WithLabelValues("deduped").Inc()
		story, err := h.svc.Get(ctx, id)
		if err != nil || !story.Published {
			h.writeError(c, ErrNotFound)
			return
		}
		response.OK(c, viewResponse{ViewCount: story.ViewCount, Counted: false})
		return
	}

	count, err := h.svc.IncrementViews(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, viewResponse{ViewCount: count, Counted: true})
}

// get GET /stories/:id
func (h *Handler) get(c *gin.Context) {
	story, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, story)
}

// exportMarkdown GET /stories/:id/markdown
func (h *Handler) exportMarkdown(c *gin.Context) {
	story, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	meta := markdown.ExportMeta{
		Title:        story.Title,
		Subtitle:     derefString(story.Subtitle),
		Slug:         story.SlugValue(),
		PreviewImage: derefString(story.PreviewImage),
		Date:         story.CreatedAt,
		Updated:      story.UpdatedAt,
		PublishedAt:  story.PublishedAt,
	}
	if story.ReadingTime != nil {
		meta.ReadingTime = *story.ReadingTime
	}
	body, err := markdown.Export(meta, story.Content)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	filename := markdown.ExportFilename(story.SlugValue(), story.ID)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(body))
}

// create POST /stories
func (h *Handler) create(c *gin.Context) {
	var in CreateInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	story, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, story)
}

// update PATCH /stories/:id
func (h *Handler) update(c *gin.Context) {
	var in UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	story, err := h.svc.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, story)
}

// publish POST /stories/:id/publish
func (h *Handler) publish(c *gin.Context) {
	var in PublishInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	ctx := c.Request.Context()
	id := c.Param("id")

	var previous *string
	if in.PreviewImage != nil {
		if current, err := h.svc.Get(ctx, id); err == nil {
			previous = current.PreviewImage
		}
	}

	story, err := h.svc.Publish(ctx, id, in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if previous != nil && derefString(story.PreviewImage) != *previous {
		h.removeImage(c, *previous)
	}
	response.OK(c, story)
}

// unpublish POST /stories/:id/unpublish
func (h *Handler) unpublish(c *gin.Context) {
	story, err := h.svc.Unpublish(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, story)
}

// delete DELETE /stories/:id
func (h *Handler) delete(c *gin.Context) {
	story, err := h.svc.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if story.PreviewImage != nil {
		h.removeImage(c, *story.PreviewImage)
	}
	response.NoContent(c)
}

// uploadPreviewImage POST /stories/:id/preview-image
func (h *Handler) uploadPreviewImage(c *gin.Context) {
	if h.images == nil {
		response.Error(c, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.svc.Get(ctx, id); err != nil {
		h.writeError(c, err)
		return
	}

	url, ok := object.ReceiveImage(c, h.images, id)
	if !ok {
		return
	}
	story, previous, err := h.svc.SetPreviewImage(ctx, id, &url)
	if err != nil {
		h.removeImage(c, url)
		h.writeError(c, err)
		return
	}
	if previous != nil && *previous != url {
		h.removeImage(c, *previous)
	}
	response.OK(c, story)
}

// clearPreviewImage DELETE /stories/:id/preview-image
func (h *Handler) clearPreviewImage(c *gin.Context) {
	story, previous, err := h.svc.SetPreviewImage(c.Request.Context(), c.Param("id"), nil)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if previous != nil {
		h.removeImage(c, *previous)
	}
	response.OK(c, story)
}

func (h *Handler) removeImage(c *gin.Context, url string) {
	if h.images == nil {
		return
	}
	h.images.RemoveQuietly(c.Request.Context(), url)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFoundMsg(c, ErrNotFound.Error())
	case errors.Is(err, ErrConflict):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrInvalid):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error("story request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.InternalError(c, err)
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
