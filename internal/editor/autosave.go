// Package editor holds the client side of an editing session: throttled
// auto-save of a story's fields and the session that binds them to a row.
package editor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the save state of one field.
type State int

const (
	// StateClean means the store holds the latest local value.
	StateClean State = iota
	// StateDirty means there are local changes no save has picked up yet.
	StateDirty
	// StateSaving means a save is in flight.
	StateSaving
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateSaving:
		return "saving"
	default:
		return "unknown"
	}
}

const defaultSaveTimeout = 30 * time.Second

// ErrDisabled is returned by Flush while changes are pending but the
// scheduler has no story to save to.
var ErrDisabled = errors.New("auto-save is not bound to a story")

// Status is a snapshot of a Scheduler.
type Status struct {
	State     State
	Enabled   bool
	LastSaved time.Time
	LastError error
}

// Unsaved reports whether local changes may not have reached the store.
func (s Status) Unsaved() bool {
	return s.State != StateClean
}

// SaveFunc writes the current value. It reads that value when called, so a
// save always sends the latest local state.
type SaveFunc func(ctx context.Context) error

type SchedulerOption func(*Scheduler)

func WithClock(c Clock) SchedulerOption {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithSchedulerLogger(l *zap.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSaveTimeout bounds each timer-driven save.
func WithSaveTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetryIf decides whether a failed save schedules another attempt on
// its own. Without it every failure is retried one interval later.
func WithRetryIf(fn func(error) bool) SchedulerOption {
	return func(s *Scheduler) { s.retryIf = fn }
}

// WithStatusHook is called after every state change, outside the lock.
func WithStatusHook(fn func(Status)) SchedulerOption {
	return func(s *Scheduler) { s.hook = fn }
}

// Scheduler turns a stream of change notifications into throttled saves.
//
// The first change in a quiet period opens a window; the save fires when
// the window ends and sends whatever is current then. Changes inside the
// window do not extend it. At most one save is in flight; a change that
// arrives during a save schedules a follow-up no sooner than one interval
// after that save started. Failed saves leave the field dirty.
//
// A new Scheduler is disabled: it tracks changes but saves nothing until
// Enable is called.
type Scheduler struct {
	name     string
	interval time.Duration
	save     SaveFunc
	clock    Clock
	logger   *zap.Logger
	timeout  time.Duration
	retryIf  func(error) bool
	hook     func(Status)

	mu          sync.Mutex
	state       State
	enabled     bool
	closed      bool
	pending     bool // changed while saving
	timer       Timer
	gen         uint64 // invalidates timers that fire after being replaced
	inflight    chan struct{}
	lastAttempt time.Time
	lastSaved   time.Time
	lastErr     error
}

func NewScheduler(name string, interval time.Duration, save SaveFunc, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		name:     name,
		interval: interval,
		save:     save,
		clock:    SystemClock,
		logger:   zap.NewNop(),
		timeout:  defaultSaveTimeout,
		retryIf:  func(error) bool { return true },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify records a local change.
func (s *Scheduler) Notify() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	switch s.state {
	case StateClean:
		s.state = StateDirty
	case StateSaving:
		s.pending = true
	}
	if s.enabled && s.state == StateDirty {
		s.scheduleLocked(s.interval)
	}
	st := s.statusLocked()
	s.mu.Unlock()
	s.emit(st)
}

// Enable starts saving. Changes made while disabled are written by the
// save that the next change triggers.
func (s *Scheduler) Enable() {
	s.mu.Lock()
	s.enabled = true
	st := s.statusLocked()
	s.mu.Unlock()
	s.emit(st)
}

// Flush saves synchronously if there are unsaved changes, waiting for an
// in-flight save first. It returns the save error, if any.
func (s *Scheduler) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		switch {
		case s.state == StateClean:
			s.mu.Unlock()
			return nil
		case !s.enabled:
			s.mu.Unlock()
			return ErrDisabled
		case s.state == StateSaving:
			done := s.inflight
			s.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		done := s.beginLocked()
		st := s.statusLocked()
		s.mu.Unlock()
		s.emit(st)

		err := s.save(ctx)
		s.finish(done, err)
		if err != nil {
			return err
		}
	}
}

// Close stops scheduling and reports whether changes were left unsaved.
// An in-flight save is not cancelled.
func (s *Scheduler) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopTimerLocked()
	return s.state != StateClean
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Scheduler) statusLocked() Status {
	return Status{
		State:     s.state,
		Enabled:   s.enabled,
		LastSaved: s.lastSaved,
		LastError: s.lastErr,
	}
}

func (s *Scheduler) scheduleLocked(delay time.Duration) {
	if s.timer != nil {
		return
	}
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(gen) })
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
	s.gen++
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if s.closed || !s.enabled || s.state != StateDirty {
		s.mu.Unlock()
		return
	}
	done := s.beginLocked()
	st := s.statusLocked()
	s.mu.Unlock()
	s.emit(st)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.finish(done, s.save(ctx))
}

// beginLocked moves dirty to saving and returns the channel closed when
// the save finishes.
func (s *Scheduler) beginLocked() chan struct{} {
	s.stopTimerLocked()
	s.state = StateSaving
	s.pending = false
	s.lastAttempt = s.clock.Now()
	s.inflight = make(chan struct{})
	return s.inflight
}

func (s *Scheduler) finish(done chan struct{}, err error) {
	s.mu.Lock()
	s.inflight = nil
	close(done)

	active := s.enabled && !s.closed
	switch {
	case err != nil:
		s.lastErr = err
		s.state = StateDirty
		s.logger.Warn("auto-save failed", zap.String("field", s.name), zap.Error(err))
		if active && s.retryIf(err) {
			s.scheduleLocked(s.interval)
		}
	case s.pending:
		s.lastErr = nil
		s.lastSaved = s.clock.Now()
		s.state = StateDirty
		if active {
			s.scheduleLocked(s.followUpDelayLocked())
		}
	default:
		s.lastErr = nil
		s.lastSaved = s.clock.Now()
		s.state = StateClean
	}
	s.pending = false
	st := s.statusLocked()
	s.mu.Unlock()
	s.emit(st)
}

func (s *Scheduler) followUpDelayLocked() time.Duration {
	return max(0, s.lastAttempt.Add(s.interval).Sub(s.clock.Now()))
}

func (s *Scheduler) emit(st Status) {
	if s.hook != nil {
		s.hook(st)
	}
}
