package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "error", Result(errors.New("boom")))
}

func TestStoryWritesCounter(t *testing.T) {
	initial := testutil.ToFloat64(StoryWrites.WithLabelValues("create", "ok"))
	StoryWrites.WithLabelValues("create", Result(nil)).Inc()
	assert.Equal(t, initial+1, testutil.ToFloat64(StoryWrites.WithLabelValues("create", "ok")))
}
