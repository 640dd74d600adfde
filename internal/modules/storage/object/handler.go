package object

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-space/core/internal/pkg/response"
)

// multipartSlack leaves room for multipart framing on top of the file limit.
const multipartSlack = 1 << 20

// Handler serves inline image uploads for the editor.
type Handler struct {
	uploader *Uploader
}

func NewHandler(uploader *Uploader) *Handler {
	return &Handler{uploader: uploader}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/uploads", authMW)
	g.POST("/images", h.upload)
	g.DELETE("/images", h.remove)
}

// upload POST /uploads/images
func (h *Handler) upload(c *gin.Context) {
	url, ok := ReceiveImage(c, h.uploader, c.PostForm("story_id"))
	if !ok {
		return
	}
	response.Created(c, gin.H{"url": url})
}

// remove DELETE /uploads/images?url=
// A JSON body {"url": ...} is accepted when the query parameter is absent.
// URLs the bucket did not issue are ignored.
func (h *Handler) remove(c *gin.Context) {
	url := strings.TrimSpace(c.Query("url"))
	if url == "" && c.Request.ContentLength != 0 {
		var body struct {
			URL string `json:"url"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		url = strings.TrimSpace(body.URL)
	}
	if url == "" {
		response.BadRequest(c, "url is required")
		return
	}
	if err := h.uploader.Remove(c.Request.Context(), url); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

// ReceiveImage reads the multipart "file" field and uploads it. On failure
// it writes the error response and returns false.
func ReceiveImage(c *gin.Context, uploader *Uploader, storyID string) (string, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, uploader.MaxBytes()+multipartSlack)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.PayloadTooLarge(c, ErrTooLarge.Error())
			return "", false
		}
		response.BadRequest(c, "multipart field \"file\" is required")
		return "", false
	}
	f, err := fh.Open()
	if err != nil {
		response.InternalError(c, err)
		return "", false
	}
	defer f.Close()

	url, err := uploader.UploadImage(c.Request.Context(), storyID, fh.Filename, fh.Size, f)
	if err != nil {
		WriteError(c, err)
		return "", false
	}
	return url, true
}

// WriteError maps upload errors to HTTP statuses.
func WriteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrTooLarge):
		response.PayloadTooLarge(c, err.Error())
	case errors.Is(err, ErrInvalidType):
		response.UnsupportedMediaType(c, err.Error())
	case errors.Is(err, ErrEmpty):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
