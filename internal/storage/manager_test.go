// manager_test.go - Tests for the download store
package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates nested directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "downloads", "charts")

		store, err := NewLocalStore(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, store.dir)

		_, err = os.Stat(dir)
		assert.NoError(t, err)
	})
}

func TestLocalStore_SaveAndOpen(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("s1", "../escape/chart.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)

	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "chart.png", info.Name)
	assert.Equal(t, int64(9), info.Size)
	assert.Equal(t, "image/png", info.ContentType)
	assert.Equal(t, "s1", info.Owner)

	got, err := store.Get(info.ID)
	require.NoError(t, err)
	assert.Same(t, info, got)

	rc, opened, err := store.Open(info.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, info.ID, opened.ID)

	path, err := store.GetFilePath(info.ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.dir, info.ID), path)
}

func TestLocalStore_NotFound(t *testing.T) {
	store := createTestStore(t)

	_, err := store.Get("missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = store.GetFilePath("missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, _, err = store.Open("missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.True(t, errors.Is(store.Delete("missing"), ErrNotFound))
}

func TestLocalStore_ListByOwner(t *testing.T) {
	store := createTestStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	store.nowFn = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, err := store.Save("s1", "a.png", "image/png", strings.NewReader("a"))
	require.NoError(t, err)
	second, err := store.Save("s1", "b.png", "image/png", strings.NewReader("b"))
	require.NoError(t, err)
	_, err = store.Save("s2", "c.png", "image/png", strings.NewReader("c"))
	require.NoError(t, err)

	list, err := store.List("s1", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	limited, err := store.List("s1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	all, err := store.List("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLocalStore_Delete(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("s1", "a.png", "image/png", strings.NewReader("a"))
	require.NoError(t, err)
	path, _ := store.GetFilePath(info.ID)

	require.NoError(t, store.Delete(info.ID))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = store.Get(info.ID)
	assert.Error(t, err)
}

func TestLocalStore_DeleteOwner(t *testing.T) {
	store := createTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := store.Save("s1", "a.png", "image/png", strings.NewReader("a"))
		require.NoError(t, err)
	}
	kept, err := store.Save("s2", "b.png", "image/png", strings.NewReader("b"))
	require.NoError(t, err)

	assert.Equal(t, 3, store.DeleteOwner("s1"))
	assert.Equal(t, 0, store.DeleteOwner("s1"))

	all, err := store.List("", 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, kept.ID, all[0].ID)
}
