package logfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilename(t *testing.T) {
	assert.Equal(t, "stdout_3-7-24.log", Filename(time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)))
}

func TestWriterRotatesDaily(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(filepath.Join(dir, "logs"))
	require.NoError(t, err)

	day := time.Date(2024, 3, 7, 23, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return day }
	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)

	day = day.Add(2 * time.Minute)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)

	first, err := os.ReadFile(filepath.Join(dir, "logs", "stdout_3-7-24.log"))
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(first))

	second, err := os.ReadFile(filepath.Join(dir, "logs", "stdout_3-8-24.log"))
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(second))
}
