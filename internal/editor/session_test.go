package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/inkwell-space/core/internal/database"
	"github.com/inkwell-space/core/internal/models"
	"github.com/inkwell-space/core/internal/modules/content/story"
	"github.com/inkwell-space/core/internal/pkg/document"
)

// memStore is an in-memory Store with compare-and-swap versions.
type memStore struct {
	mu         sync.Mutex
	rows       map[string]*models.StoryModel
	creates    int
	updates    []story.UpdateInput
	publishes  []story.PublishInput
	failUpdate error
	failPub    error
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]*models.StoryModel{}}
}

func (m *memStore) Create(_ context.Context, in story.CreateInput) (*models.StoryModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	row := &models.StoryModel{Title: *in.Title, Content: in.Content.Clone(), Version: 1}
	row.ID = fmt.Sprintf("story-%d", m.creates)
	m.rows[row.ID] = row
	cp := *row
	return &cp, nil
}

func (m *memStore) Get(_ context.Context, id string) (*models.StoryModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, story.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memStore) Update(_ context.Context, id string, in story.UpdateInput) (*models.StoryModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, in)
	if m.failUpdate != nil {
		return nil, m.failUpdate
	}
	row, ok := m.rows[id]
	if !ok {
		return nil, story.ErrNotFound
	}
	if in.Version != nil && *in.Version != row.Version {
		return nil, story.ErrConflict
	}
	if in.Title != nil {
		row.Title = *in.Title
	}
	if in.Content != nil {
		row.Content = in.Content.Clone()
	}
	row.Version++
	cp := *row
	return &cp, nil
}

func (m *memStore) Publish(_ context.Context, id string, in story.PublishInput) (*models.StoryModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishes = append(m.publishes, in)
	if m.failPub != nil {
		return nil, m.failPub
	}
	row, ok := m.rows[id]
	if !ok {
		return nil, story.ErrNotFound
	}
	if in.Version != nil && *in.Version != row.Version {
		return nil, story.ErrConflict
	}
	row.Published = true
	row.Version++
	cp := *row
	return &cp, nil
}

// bump simulates a write from another session.
func (m *memStore) bump(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].Version++
}

func (m *memStore) row(id string) models.StoryModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

func (m *memStore) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.updates)
}

func newSession(t *testing.T, store Store, storyID string) (*Session, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return New(store, Options{StoryID: storyID, Clock: clock}), clock
}

func TestBeginCreatesOnce(t *testing.T) {
	store := newMemStore()
	sess, _ := newSession(t, store, "")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sess.Begin(context.Background()))
		}()
	}
	wg.Wait()
	require.NoError(t, sess.Begin(context.Background()))

	assert.Equal(t, 1, store.creates)
	row := store.row(sess.StoryID())
	assert.Equal(t, models.DefaultStoryTitle, row.Title)
	assert.Equal(t, document.Empty(), row.Content)
	assert.True(t, sess.Status().Content.Enabled)
}

func TestBeginLoadsExistingStory(t *testing.T) {
	store := newMemStore()
	doc := document.FromLines([]string{"# Chapter", "It was night."})
	store.rows["s1"] = &models.StoryModel{Title: "Night", Content: doc, Version: 7}
	store.rows["s1"].ID = "s1"

	sess, _ := newSession(t, store, "s1")
	require.NoError(t, sess.Begin(context.Background()))

	assert.Equal(t, "Night", sess.Title())
	assert.Equal(t, doc, sess.Content())
	assert.Equal(t, int64(7), sess.Status().Version)
	assert.Zero(t, store.creates)
}

func TestBeginUnknownStory(t *testing.T) {
	sess, _ := newSession(t, newMemStore(), "missing")
	err := sess.Begin(context.Background())
	assert.ErrorIs(t, err, story.ErrNotFound)
	assert.Empty(t, sess.StoryID())
}

func TestEditsBeforeBeginAreNotSent(t *testing.T) {
	store := newMemStore()
	sess, clock := newSession(t, store, "")

	require.NoError(t, sess.SetContent(document.FromLines([]string{"early"})))
	clock.Advance(time.Minute)
	assert.Zero(t, store.creates)
	assert.Zero(t, store.updateCount())

	require.NoError(t, sess.Begin(context.Background()))
	clock.Advance(time.Minute)
	assert.Zero(t, store.updateCount())

	latest := document.FromLines([]string{"early", "later"})
	require.NoError(t, sess.SetContent(latest))
	clock.Advance(DefaultContentInterval)
	require.Equal(t, 1, store.updateCount())
	assert.Equal(t, latest, store.row(sess.StoryID()).Content)
}

func TestTitleAndContentSaveIndependently(t *testing.T) {
	store := newMemStore()
	sess, clock := newSession(t, store, "")
	require.NoError(t, sess.Begin(context.Background()))

	require.NoError(t, sess.SetTitle("  A Title  "))
	require.NoError(t, sess.SetContent(document.FromLines([]string{"body"})))

	clock.Advance(DefaultTitleInterval)
	require.Len(t, store.updates, 1)
	assert.Equal(t, "A Title", *store.updates[0].Title)
	assert.Nil(t, store.updates[0].Content)
	assert.Equal(t, int64(1), *store.updates[0].Version)

	clock.Advance(DefaultContentInterval - DefaultTitleInterval)
	require.Len(t, store.updates, 2)
	assert.Nil(t, store.updates[1].Title)
	assert.NotNil(t, store.updates[1].Content)
	assert.Equal(t, int64(2), *store.updates[1].Version)

	row := store.row(sess.StoryID())
	assert.Equal(t, "A Title", row.Title)
	assert.Equal(t, int64(3), row.Version)
	assert.False(t, sess.Status().Unsaved())
}

func TestSetTitleRejectsBlank(t *testing.T) {
	store := newMemStore()
	sess, clock := newSession(t, store, "")
	require.NoError(t, sess.Begin(context.Background()))

	assert.ErrorIs(t, sess.SetTitle("   "), ErrEmptyTitle)
	clock.Advance(time.Minute)
	assert.Zero(t, store.updateCount())
	assert.Equal(t, models.DefaultStoryTitle, sess.Title())
}

func TestSetContentRejectsInvalidDocument(t *testing.T) {
	sess, _ := newSession(t, newMemStore(), "")
	assert.Error(t, sess.SetContent(document.Node{Type: "paragraph"}))
}

func TestPublishFlushesPendingEdits(t *testing.T) {
	store := newMemStore()
	sess, _ := newSession(t, store, "")
	require.NoError(t, sess.Begin(context.Background()))

	require.NoError(t, sess.SetTitle("Final"))
	require.NoError(t, sess.SetContent(document.FromLines([]string{"done"})))

	subtitle := "A subtitle"
	row, err := sess.Publish(context.Background(), story.PublishInput{Subtitle: &subtitle})
	require.NoError(t, err)
	assert.True(t, row.Published)

	require.Len(t, store.updates, 2)
	require.Len(t, store.publishes, 1)
	assert.Equal(t, int64(3), *store.publishes[0].Version)
	assert.Equal(t, "A subtitle", *store.publishes[0].Subtitle)

	st := sess.Status()
	assert.False(t, st.Unsaved())
	assert.Equal(t, int64(4), st.Version)
}

func TestPublishWithoutStory(t *testing.T) {
	sess, _ := newSession(t, newMemStore(), "")
	_, err := sess.Publish(context.Background(), story.PublishInput{})
	assert.ErrorIs(t, err, ErrNoStory)
	assert.ErrorIs(t, sess.Flush(context.Background()), ErrNoStory)
	_, err = sess.Rebase(context.Background())
	assert.ErrorIs(t, err, ErrNoStory)
}

func TestPublishStopsWhenSaveFails(t *testing.T) {
	store := newMemStore()
	sess, _ := newSession(t, store, "")
	require.NoError(t, sess.Begin(context.Background()))
	boom := errors.New("offline")
	store.failUpdate = boom

	require.NoError(t, sess.SetContent(document.FromLines([]string{"x"})))
	_, err := sess.Publish(context.Background(), story.PublishInput{})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, store.publishes)
	assert.False(t, store.row(sess.StoryID()).Published)
	assert.True(t, sess.Status().Unsaved())
}

func TestPublishFailureLeavesStoryUnpublished(t *testing.T) {
	store := newMemStore()
	sess, _ := newSession(t, store, "")
	require.NoError(t, sess.Begin(context.Background()))
	store.failPub = errors.New("slug exhausted")

	_, err := sess.Publish(context.Background(), story.PublishInput{})
	assert.Error(t, err)
	assert.False(t, store.row(sess.StoryID()).Published)
}

func TestConflictStopsSavingUntilRebase(t *testing.T) {
	store := newMemStore()
	sess, clock := newSession(t, store, "")
	require.NoError(t, sess.Begin(context.Background()))
	id := sess.StoryID()

	store.bump(id)
	mine := document.FromLines([]string{"mine"})
	require.NoError(t, sess.SetContent(mine))
	clock.Advance(DefaultContentInterval)

	st := sess.Status()
	assert.True(t, st.Conflict)
	assert.ErrorIs(t, st.Content.LastError, story.ErrConflict)
	assert.Equal(t, StateDirty, st.Content.State)

	// No automatic retry against the stale version.
	clock.Advance(time.Minute)
	assert.Equal(t, 1, store.updateCount())

	_, err := sess.Publish(context.Background(), story.PublishInput{})
	assert.ErrorIs(t, err, story.ErrConflict)

	row, err := sess.Rebase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), row.Version)
	assert.False(t, sess.Status().Conflict)

	clock.Advance(DefaultContentInterval)
	assert.Equal(t, mine, store.row(id).Content)
	assert.False(t, sess.Status().Unsaved())
}

func TestCloseReportsUnsavedChanges(t *testing.T) {
	store := newMemStore()
	sess, clock := newSession(t, store, "")
	require.NoError(t, sess.Begin(context.Background()))

	assert.False(t, sess.Close())

	sess, clock = newSession(t, store, "")
	require.NoError(t, sess.Begin(context.Background()))
	require.NoError(t, sess.SetContent(document.FromLines([]string{"unsaved"})))
	assert.True(t, sess.Close())

	before := store.updateCount()
	clock.Advance(time.Minute)
	assert.Equal(t, before, store.updateCount())
}

func TestStatusHookReportsField(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock()
	var mu sync.Mutex
	seen := map[string][]State{}
	sess := New(store, Options{Clock: clock, OnStatus: func(field string, st Status) {
		mu.Lock()
		seen[field] = append(seen[field], st.State)
		mu.Unlock()
	}})
	require.NoError(t, sess.Begin(context.Background()))
	require.NoError(t, sess.SetTitle("Hooked"))
	clock.Advance(DefaultTitleInterval)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateClean, StateDirty, StateSaving, StateClean}, seen["title"])
	assert.Equal(t, []State{StateClean}, seen["content"])
}

func TestSessionAgainstStoryService(t *testing.T) {
	db, err := database.Open("sqlite", ":memory:", logger.Silent)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	svc := story.NewService(db)

	sess, clock := newSession(t, svc, "")
	require.NoError(t, sess.Begin(context.Background()))
	require.NoError(t, sess.SetTitle("My Story"))
	require.NoError(t, sess.SetContent(document.FromLines([]string{"# Opening", "Once upon a time."})))
	clock.Advance(DefaultContentInterval)
	assert.False(t, sess.Status().Unsaved())

	row, err := sess.Publish(context.Background(), story.PublishInput{})
	require.NoError(t, err)
	assert.True(t, row.Published)
	assert.Equal(t, "my-story", row.SlugValue())
	require.NotNil(t, row.ReadingTime)
	assert.Equal(t, 1, *row.ReadingTime)

	// A second session editing the same story forces a conflict.
	other, otherClock := newSession(t, svc, row.ID)
	require.NoError(t, other.Begin(context.Background()))
	require.NoError(t, other.SetTitle("Their Title"))
	otherClock.Advance(DefaultTitleInterval)

	require.NoError(t, sess.SetTitle("My Title"))
	clock.Advance(DefaultTitleInterval)
	assert.True(t, sess.Status().Conflict)

	_, err = sess.Rebase(context.Background())
	require.NoError(t, err)
	clock.Advance(DefaultTitleInterval)
	stored, err := svc.Get(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Equal(t, "My Title", stored.Title)
}
