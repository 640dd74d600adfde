package app

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	pkgcron "github.com/inkwell-space/core/internal/pkg/cron"
	"github.com/inkwell-space/core/internal/pkg/response"
)

func (a *App) registerCronJobs() {
	logger := a.logger.Named("CronService")

	if a.index != nil {
		a.sched.Register(pkgcron.Job{
			Name:        "reindex_search",
			Description: "Rebuild the search index from published stories",
			Interval:    a.cfg.Search.ReindexInterval,
			RunOnStart:  true,
			Fn: func(ctx context.Context) error {
				n, err := a.index.Rebuild(ctx, a.stories)
				if err != nil {
					return err
				}
				logger.Debug("reindex job finished", zap.Int("stories", n))
				return nil
			},
		})
	}
}

// listJobs GET /jobs
func (a *App) listJobs(c *gin.Context) {
	response.OK(c, a.sched.List())
}

// runJob POST /jobs/:name/run runs a job now and returns its state.
func (a *App) runJob(c *gin.Context) {
	name := c.Param("name")
	if err := a.sched.Run(c.Request.Context(), name); err != nil {
		if errors.Is(err, pkgcron.ErrJobNotFound) {
			response.NotFoundMsg(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	for _, job := range a.sched.List() {
		if job.Name == name {
			response.OK(c, job)
			return
		}
	}
	response.NoContent(c)
}
