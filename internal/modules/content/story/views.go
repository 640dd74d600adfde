package story

import (
	"context"
	"fmt"
	"time"

	pkgredis "github.com/inkwell-space/core/internal/pkg/redis"
)

const viewWindow = 30 * time.Minute

// ViewTracker decides whether a view should be counted. With Redis it counts
// one view per story and client IP per window; without Redis every view
// counts.
type ViewTracker struct {
	rdb    *pkgredis.Client
	window time.Duration
}

func NewViewTracker(rdb *pkgredis.Client) *ViewTracker {
	return &ViewTracker{rdb: rdb, window: viewWindow}
}

func viewKey(storyID, clientIP string) string {
	return fmt.Sprintf("inkwell:story_view:%s:%s", storyID, clientIP)
}

// ShouldCount reports whether this view is the first from clientIP within the
// window. Redis errors count the view.
func (t *ViewTracker) ShouldCount(ctx context.Context, storyID, clientIP string) bool {
	if t == nil || t.rdb == nil || clientIP == "" {
		return true
	}
	first, err := t.rdb.SetNX(ctx, viewKey(storyID, clientIP), 1, t.window)
	if err != nil {
		return true
	}
	return first
}
