package search

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-space/core/internal/pkg/response"
)

type Handler struct {
	index *Index
}

func NewHandler(index *Index) *Handler {
	return &Handler{index: index}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/search", h.search)
}

// search GET /search?q=&limit=
func (h *Handler) search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		response.BadRequest(c, "query parameter q is required")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	results, err := h.index.Search(q, limit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, results)
}
