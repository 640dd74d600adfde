package story

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/inkwell-space/core/internal/pkg/metrics"
	"go.uber.org/zap"
)

const (
	// MaxSlugLength bounds every slug, suffixes included.
	MaxSlugLength = 100
	// maxSlugProbes is the number of store lookups before giving up on a
	// readable slug and falling back to a timestamp suffix.
	maxSlugProbes  = 100
	fallbackPrefix = "story"
)

// Normalize derives a URL-safe slug from a title: lowercase, whitespace runs
// to single hyphens, everything outside [a-z0-9-] dropped, hyphen runs
// collapsed, no leading or trailing hyphen, at most MaxSlugLength bytes.
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(title string) string {
	lowered := strings.ToLower(strings.TrimSpace(title))

	var b strings.Builder
	b.Grow(len(lowered))
	lastHyphen := true // suppresses leading hyphens
	inSpace := false
	for _, r := range lowered {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace {
			inSpace = false
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r == '-':
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return truncateSlug(b.String(), MaxSlugLength)
}

// truncateSlug cuts s to at most n bytes and strips hyphens left at the end.
// s is ASCII, so byte slicing is safe.
func truncateSlug(s string, n int) string {
	if len(s) > n {
		s = s[:n]
	}
	return strings.Trim(s, "-")
}

// withSuffix appends "-suffix" to base, shortening base so the result still
// fits in MaxSlugLength.
func withSuffix(base, suffix string) string {
	tail := "-" + suffix
	return truncateSlug(base, MaxSlugLength-len(tail)) + tail
}

// SlugProber reports how many published stories other than excludeID
// currently hold slug.
type SlugProber interface {
	CountPublishedBySlug(ctx context.Context, slug, excludeID string) (int64, error)
}

// SlugResolver turns titles into slugs that no other published story holds
// at the time of the call.
type SlugResolver struct {
	prober SlugProber
	now    func() time.Time
	logger *zap.Logger
}

func NewSlugResolver(prober SlugProber, logger *zap.Logger) *SlugResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlugResolver{prober: prober, now: time.Now, logger: logger}
}

// Resolve returns the normalized title if free, otherwise the first free
// "-1", "-2", ... variant. Titles without ASCII alphanumerics get
// "story-<unix millis>". If every probe is taken, or a probe fails, the base
// slug gets a timestamp suffix instead; Resolve itself never fails.
//
// Probes are separate round trips, so a concurrent publish can still claim
// the returned slug. The unique index on stories.slug catches that case.
func (r *SlugResolver) Resolve(ctx context.Context, title, excludeID string) string {
	base := Normalize(title)
	if base == "" {
		metrics.SlugProbes.WithLabelValues("fallback").Inc()
		return withSuffix(fallbackPrefix, r.timestamp())
	}

	candidate := base
	for i := 0; i < maxSlugProbes; i++ {
		if i > 0 {
			candidate = withSuffix(base, strconv.Itoa(i))
		}
		n, err := r.prober.CountPublishedBySlug(ctx, candidate, excludeID)
		if err != nil {
			r.logger.Warn("slug probe failed, using timestamp slug",
				zap.String("slug", candidate), zap.Error(err))
			break
		}
		if n == 0 {
			if i == 0 {
				metrics.SlugProbes.WithLabelValues("base").Inc()
			} else {
				metrics.SlugProbes.WithLabelValues("suffixed").Inc()
			}
			return candidate
		}
	}

	metrics.SlugProbes.WithLabelValues("fallback").Inc()
	return withSuffix(base, r.timestamp())
}

func (r *SlugResolver) timestamp() string {
	return strconv.FormatInt(r.now().UnixMilli(), 10)
}
