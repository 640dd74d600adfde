package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const interval = 2 * time.Second

// recorder is a SaveFunc that captures the value current at each call.
type recorder struct {
	mu     sync.Mutex
	clock  *fakeClock
	value  string
	saved  []string
	times  []time.Time
	errs   []error
	during func()
}

func (r *recorder) set(v string) {
	r.mu.Lock()
	r.value = v
	r.mu.Unlock()
}

func (r *recorder) save(context.Context) error {
	r.mu.Lock()
	r.saved = append(r.saved, r.value)
	r.times = append(r.times, r.clock.Now())
	var err error
	if len(r.errs) > 0 {
		err, r.errs = r.errs[0], r.errs[1:]
	}
	during := r.during
	r.during = nil
	r.mu.Unlock()
	if during != nil {
		during()
	}
	return err
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.saved...)
}

func newScheduler(t *testing.T, opts ...SchedulerOption) (*Scheduler, *recorder, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	rec := &recorder{clock: clock}
	s := NewScheduler("content", interval, rec.save, append([]SchedulerOption{WithClock(clock)}, opts...)...)
	return s, rec, clock
}

func change(s *Scheduler, rec *recorder, v string) {
	rec.set(v)
	s.Notify()
}

func TestSchedulerCoalescesChangesInOneWindow(t *testing.T) {
	s, rec, clock := newScheduler(t)
	s.Enable()

	change(s, rec, "a")
	clock.Advance(500 * time.Millisecond)
	change(s, rec, "ab")
	clock.Advance(500 * time.Millisecond)
	change(s, rec, "abc")

	assert.Empty(t, rec.calls())
	assert.Equal(t, StateDirty, s.Status().State)

	clock.Advance(time.Second)
	assert.Equal(t, []string{"abc"}, rec.calls())
	assert.Equal(t, StateClean, s.Status().State)
	assert.Equal(t, clock.Now(), s.Status().LastSaved)

	clock.Advance(10 * interval)
	assert.Len(t, rec.calls(), 1)
}

func TestSchedulerSavesAtMostOncePerInterval(t *testing.T) {
	s, rec, clock := newScheduler(t)
	s.Enable()

	for i := 0; i < 10; i++ {
		change(s, rec, string(rune('a'+i)))
		clock.Advance(500 * time.Millisecond)
	}
	clock.Advance(interval)

	require.Len(t, rec.times, 3)
	for i := 1; i < len(rec.times); i++ {
		assert.GreaterOrEqual(t, rec.times[i].Sub(rec.times[i-1]), interval)
	}
	assert.Equal(t, "j", rec.calls()[2])
}

func TestSchedulerDisabledIssuesNoSaves(t *testing.T) {
	s, rec, clock := newScheduler(t)

	for i := 0; i < 50; i++ {
		change(s, rec, "x")
		clock.Advance(time.Second)
	}
	assert.Empty(t, rec.calls())
	assert.Zero(t, clock.Pending())
	assert.Equal(t, StateDirty, s.Status().State)
	assert.False(t, s.Status().Enabled)

	// Enabling does not replay what accumulated; the next change does.
	s.Enable()
	clock.Advance(10 * interval)
	assert.Empty(t, rec.calls())

	change(s, rec, "y")
	clock.Advance(interval)
	assert.Equal(t, []string{"y"}, rec.calls())
}

func TestSchedulerFollowUpAfterChangeDuringSave(t *testing.T) {
	s, rec, clock := newScheduler(t)
	s.Enable()

	change(s, rec, "first")
	rec.during = func() {
		assert.Equal(t, StateSaving, s.Status().State)
		change(s, rec, "second")
	}
	clock.Advance(interval)

	assert.Equal(t, []string{"first"}, rec.calls())
	assert.Equal(t, StateDirty, s.Status().State)
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(interval)
	assert.Equal(t, []string{"first", "second"}, rec.calls())
	assert.Equal(t, StateClean, s.Status().State)
}

func TestSchedulerFailureReturnsToDirtyAndRetries(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s, rec, clock := newScheduler(t, WithSchedulerLogger(zap.New(core)))
	s.Enable()
	boom := errors.New("network down")
	rec.errs = []error{boom}

	change(s, rec, "draft")
	clock.Advance(interval)

	st := s.Status()
	assert.Equal(t, StateDirty, st.State)
	assert.ErrorIs(t, st.LastError, boom)
	assert.True(t, st.LastSaved.IsZero())
	require.Equal(t, 1, logs.FilterMessage("auto-save failed").Len())

	clock.Advance(interval)
	assert.Equal(t, []string{"draft", "draft"}, rec.calls())
	assert.Equal(t, StateClean, s.Status().State)
	assert.NoError(t, s.Status().LastError)
}

func TestSchedulerRetryIfStopsAutomaticRetry(t *testing.T) {
	fatal := errors.New("conflict")
	s, rec, clock := newScheduler(t, WithRetryIf(func(err error) bool { return !errors.Is(err, fatal) }))
	s.Enable()
	rec.errs = []error{fatal}

	change(s, rec, "a")
	clock.Advance(interval)
	clock.Advance(10 * interval)
	assert.Len(t, rec.calls(), 1)
	assert.Equal(t, StateDirty, s.Status().State)

	change(s, rec, "b")
	clock.Advance(interval)
	assert.Equal(t, []string{"a", "b"}, rec.calls())
	assert.Equal(t, StateClean, s.Status().State)
}

func TestSchedulerFlushSavesImmediately(t *testing.T) {
	s, rec, clock := newScheduler(t)
	s.Enable()

	change(s, rec, "now")
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, []string{"now"}, rec.calls())
	assert.Equal(t, StateClean, s.Status().State)

	clock.Advance(10 * interval)
	assert.Len(t, rec.calls(), 1)

	// Nothing to do when clean.
	require.NoError(t, s.Flush(context.Background()))
	assert.Len(t, rec.calls(), 1)
}

func TestSchedulerFlushReturnsSaveError(t *testing.T) {
	s, rec, _ := newScheduler(t)
	s.Enable()
	boom := errors.New("boom")
	rec.errs = []error{boom}

	change(s, rec, "x")
	assert.ErrorIs(t, s.Flush(context.Background()), boom)
	assert.Equal(t, StateDirty, s.Status().State)
}

func TestSchedulerFlushWhileDisabled(t *testing.T) {
	s, rec, _ := newScheduler(t)
	require.NoError(t, s.Flush(context.Background()))

	change(s, rec, "x")
	assert.ErrorIs(t, s.Flush(context.Background()), ErrDisabled)
	assert.Empty(t, rec.calls())
}

func TestSchedulerCloseReportsUnsavedWork(t *testing.T) {
	s, rec, clock := newScheduler(t)
	s.Enable()

	change(s, rec, "x")
	assert.True(t, s.Close())
	clock.Advance(10 * interval)
	assert.Empty(t, rec.calls())

	// Changes after close are ignored.
	change(s, rec, "y")
	clock.Advance(10 * interval)
	assert.Empty(t, rec.calls())

	clean, _, _ := newScheduler(t)
	assert.False(t, clean.Close())
}

func TestSchedulerStatusHook(t *testing.T) {
	var states []State
	s, rec, clock := newScheduler(t, WithStatusHook(func(st Status) { states = append(states, st.State) }))
	s.Enable()

	change(s, rec, "x")
	clock.Advance(interval)
	assert.Equal(t, []State{StateClean, StateDirty, StateSaving, StateClean}, states)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "clean", StateClean.String())
	assert.Equal(t, "dirty", StateDirty.String())
	assert.Equal(t, "saving", StateSaving.String())
	assert.Equal(t, "unknown", State(9).String())
}
