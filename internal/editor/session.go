package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inkwell-space/core/internal/models"
	"github.com/inkwell-space/core/internal/modules/content/story"
	"github.com/inkwell-space/core/internal/pkg/document"
)

const (
	DefaultContentInterval = 2 * time.Second
	DefaultTitleInterval   = time.Second
)

var (
	// ErrNoStory is returned by operations that need a bound story before
	// Begin has succeeded.
	ErrNoStory = errors.New("editing session has no story")
	// ErrEmptyTitle rejects a blank title; the stored title is left alone.
	ErrEmptyTitle = errors.New("title must not be empty")
)

// Store is the remote story record as seen by an editing session.
type Store interface {
	Create(ctx context.Context, in story.CreateInput) (*models.StoryModel, error)
	Get(ctx context.Context, id string) (*models.StoryModel, error)
	Update(ctx context.Context, id string, in story.UpdateInput) (*models.StoryModel, error)
	Publish(ctx context.Context, id string, in story.PublishInput) (*models.StoryModel, error)
}

var _ Store = (*story.Service)(nil)

// Options configures a Session. Zero values take the defaults.
type Options struct {
	// StoryID opens an existing story; empty creates one on Begin.
	StoryID         string
	ContentInterval time.Duration
	TitleInterval   time.Duration
	SaveTimeout     time.Duration
	Clock           Clock
	Logger          *zap.Logger
	// OnStatus receives every state change of either field.
	OnStatus func(field string, st Status)
}

// SessionStatus is a snapshot of both fields of a Session.
type SessionStatus struct {
	StoryID  string
	Version  int64
	Title    Status
	Content  Status
	Conflict bool
}

// Unsaved reports whether either field may not have reached the store.
func (s SessionStatus) Unsaved() bool {
	return s.Title.Unsaved() || s.Content.Unsaved()
}

// Session edits one story. Title and content are saved independently,
// each through its own Scheduler, and every write carries the last known
// version so a concurrent writer surfaces as story.ErrConflict.
type Session struct {
	store  Store
	opts   Options
	logger *zap.Logger

	beginMu sync.Mutex
	writeMu sync.Mutex // one write to the row at a time

	mu       sync.Mutex
	id       string
	version  int64
	title    string
	content  document.Node
	conflict bool

	titleSaves   *Scheduler
	contentSaves *Scheduler
}

func New(store Store, opts Options) *Session {
	if opts.ContentInterval <= 0 {
		opts.ContentInterval = DefaultContentInterval
	}
	if opts.TitleInterval <= 0 {
		opts.TitleInterval = DefaultTitleInterval
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		store:   store,
		opts:    opts,
		logger:  logger,
		title:   models.DefaultStoryTitle,
		content: document.Empty(),
	}
	s.titleSaves = NewScheduler("title", opts.TitleInterval, s.saveTitle, s.schedulerOptions("title")...)
	s.contentSaves = NewScheduler("content", opts.ContentInterval, s.saveContent, s.schedulerOptions("content")...)
	return s
}

func (s *Session) schedulerOptions(field string) []SchedulerOption {
	opts := []SchedulerOption{
		WithClock(s.opts.Clock),
		WithSchedulerLogger(s.logger),
		WithSaveTimeout(s.opts.SaveTimeout),
		WithRetryIf(func(err error) bool { return !errors.Is(err, story.ErrConflict) }),
	}
	if hook := s.opts.OnStatus; hook != nil {
		opts = append(opts, WithStatusHook(func(st Status) { hook(field, st) }))
	}
	return opts
}

// Begin binds the session to a story: it loads the configured story or
// creates a new one. It runs at most once successfully; later calls
// return nil. Fields edited before Begin keep their local values and are
// saved by the next change to them.
func (s *Session) Begin(ctx context.Context) error {
	s.beginMu.Lock()
	defer s.beginMu.Unlock()

	s.mu.Lock()
	bound := s.id != ""
	s.mu.Unlock()
	if bound {
		return nil
	}

	var (
		row *models.StoryModel
		err error
	)
	if s.opts.StoryID != "" {
		row, err = s.store.Get(ctx, s.opts.StoryID)
		if err != nil {
			return fmt.Errorf("load story %s: %w", s.opts.StoryID, err)
		}
	} else {
		title := models.DefaultStoryTitle
		content := document.Empty()
		row, err = s.store.Create(ctx, story.CreateInput{Title: &title, Content: &content})
		if err != nil {
			return fmt.Errorf("create story: %w", err)
		}
	}

	s.mu.Lock()
	s.id = row.ID
	s.version = row.Version
	if s.opts.StoryID != "" {
		if !s.titleSaves.Status().Unsaved() {
			s.title = row.Title
		}
		if !s.contentSaves.Status().Unsaved() && !row.Content.IsZero() {
			s.content = row.Content.Clone()
		}
	}
	s.mu.Unlock()

	s.titleSaves.Enable()
	s.contentSaves.Enable()
	s.logger.Info("editing session bound", zap.String("story_id", row.ID), zap.Int64("version", row.Version))
	return nil
}

// SetContent replaces the local document and schedules a save.
func (s *Session) SetContent(doc document.Node) error {
	if err := document.Validate(doc); err != nil {
		return err
	}
	s.mu.Lock()
	s.content = doc.Clone()
	s.mu.Unlock()
	s.contentSaves.Notify()
	return nil
}

// SetTitle replaces the local title and schedules a save. Blank titles are
// rejected.
func (s *Session) SetTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	s.mu.Lock()
	s.title = title
	s.mu.Unlock()
	s.titleSaves.Notify()
	return nil
}

func (s *Session) StoryID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Session) Content() document.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content.Clone()
}

// Publish writes any pending title and content, then publishes with meta.
// meta.Version is overwritten with the session's version. On failure the
// story stays unpublished.
func (s *Session) Publish(ctx context.Context, meta story.PublishInput) (*models.StoryModel, error) {
	id := s.StoryID()
	if id == "" {
		return nil, ErrNoStory
	}
	if err := s.titleSaves.Flush(ctx); err != nil {
		return nil, fmt.Errorf("save title: %w", err)
	}
	if err := s.contentSaves.Flush(ctx); err != nil {
		return nil, fmt.Errorf("save content: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	version := s.version
	s.mu.Unlock()
	meta.Version = &version

	row, err := s.store.Publish(ctx, id, meta)
	if err != nil {
		s.noteConflict(err)
		return nil, err
	}
	s.adopt(row.Version)
	return row, nil
}

// Flush writes any pending title and content now.
func (s *Session) Flush(ctx context.Context) error {
	if s.StoryID() == "" {
		return ErrNoStory
	}
	if err := s.titleSaves.Flush(ctx); err != nil {
		return fmt.Errorf("save title: %w", err)
	}
	if err := s.contentSaves.Flush(ctx); err != nil {
		return fmt.Errorf("save content: %w", err)
	}
	return nil
}

// Rebase adopts the stored version after a conflict so local edits
// overwrite the other writer's. It returns the stored row and schedules
// saves for any unsaved field.
func (s *Session) Rebase(ctx context.Context) (*models.StoryModel, error) {
	id := s.StoryID()
	if id == "" {
		return nil, ErrNoStory
	}

	s.writeMu.Lock()
	row, err := s.store.Get(ctx, id)
	if err != nil {
		s.writeMu.Unlock()
		return nil, err
	}
	s.mu.Lock()
	s.version = row.Version
	s.conflict = false
	s.mu.Unlock()
	s.writeMu.Unlock()

	s.logger.Info("editing session rebased", zap.String("story_id", id), zap.Int64("version", row.Version))
	if s.titleSaves.Status().Unsaved() {
		s.titleSaves.Notify()
	}
	if s.contentSaves.Status().Unsaved() {
		s.contentSaves.Notify()
	}
	return row, nil
}

func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	st := SessionStatus{StoryID: s.id, Version: s.version, Conflict: s.conflict}
	s.mu.Unlock()
	st.Title = s.titleSaves.Status()
	st.Content = s.contentSaves.Status()
	return st
}

// Close cancels pending saves and reports whether anything was left
// unsaved. A save already in flight runs to completion.
func (s *Session) Close() bool {
	titleUnsaved := s.titleSaves.Close()
	contentUnsaved := s.contentSaves.Close()
	return titleUnsaved || contentUnsaved
}

func (s *Session) saveTitle(ctx context.Context) error {
	return s.write(ctx, func() story.UpdateInput {
		title := s.title
		return story.UpdateInput{Title: &title}
	})
}

func (s *Session) saveContent(ctx context.Context) error {
	return s.write(ctx, func() story.UpdateInput {
		content := s.content.Clone()
		return story.UpdateInput{Content: &content}
	})
}

// write sends one update built from the current local state. snapshot runs
// with s.mu held.
func (s *Session) write(ctx context.Context, snapshot func() story.UpdateInput) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.conflict {
		s.mu.Unlock()
		return story.ErrConflict
	}
	id, version := s.id, s.version
	in := snapshot()
	s.mu.Unlock()
	in.Version = &version

	row, err := s.store.Update(ctx, id, in)
	if err != nil {
		s.noteConflict(err)
		return err
	}
	s.adopt(row.Version)
	return nil
}

func (s *Session) adopt(version int64) {
	s.mu.Lock()
	s.version = version
	s.mu.Unlock()
}

func (s *Session) noteConflict(err error) {
	if !errors.Is(err, story.ErrConflict) {
		return
	}
	s.mu.Lock()
	s.conflict = true
	s.mu.Unlock()
	s.logger.Warn("story changed elsewhere; rebase to keep editing", zap.String("story_id", s.StoryID()))
}
