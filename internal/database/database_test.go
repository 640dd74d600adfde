package database

import (
	"testing"

	"github.com/inkwell-space/core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	db, err := Open("sqlite", ":memory:", logger.Silent)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	assert.True(t, db.Migrator().HasTable(&models.StoryModel{}))
	assert.True(t, db.Migrator().HasIndex(&models.StoryModel{}, "Slug"))
}

func TestUniqueSlugTranslatesToDuplicatedKey(t *testing.T) {
	db, err := Open("sqlite", ":memory:", logger.Silent)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	slug := "same"
	require.NoError(t, db.Create(&models.StoryModel{Title: "a", Slug: &slug, Published: true}).Error)
	err = db.Create(&models.StoryModel{Title: "b", Slug: &slug, Published: true}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// NULL slugs never collide
	require.NoError(t, db.Create(&models.StoryModel{Title: "c"}).Error)
	require.NoError(t, db.Create(&models.StoryModel{Title: "d"}).Error)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "", logger.Silent)
	assert.Error(t, err)
}
