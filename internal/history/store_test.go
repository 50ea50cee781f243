package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ada-analyst/console/internal/models"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func entry(session, dataset, question string, at int64) models.HistoryEntry {
	return models.HistoryEntry{
		SessionID:   session,
		DatasetID:   dataset,
		Question:    question,
		Answer:      "answer to " + question,
		HasChart:    at%2 == 0,
		PreviewRows: int(at),
		AskedAt:     at,
	}
}

func TestStore_RecordAndList(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, entry("s1", "d1", "first", 1)))
	require.NoError(t, store.Record(ctx, entry("s1", "d1", "second", 2)))
	require.NoError(t, store.Record(ctx, entry("s1", "d2", "other dataset", 3)))
	require.NoError(t, store.Record(ctx, entry("s2", "d1", "other session", 4)))

	got, err := store.List(ctx, "s1", "d1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Question)
	assert.Equal(t, "first", got[1].Question)
	assert.Equal(t, "answer to second", got[0].Answer)
	assert.True(t, got[0].HasChart)
	assert.Equal(t, 2, got[0].PreviewRows)

	all, err := store.List(ctx, "s1", "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "other dataset", all[0].Question)
}

func TestStore_ListLimit(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	for i := int64(1); i <= DefaultLimit+5; i++ {
		require.NoError(t, store.Record(ctx, entry("s1", "d1", "q", i)))
	}

	got, err := store.List(ctx, "s1", "d1", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(DefaultLimit+5), got[0].AskedAt)

	got, err = store.List(ctx, "s1", "d1", 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultLimit)
}

func TestStore_SameTimestampKeepsInsertOrder(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, entry("s1", "d1", "a", 5)))
	require.NoError(t, store.Record(ctx, entry("s1", "d1", "b", 5)))

	got, err := store.List(ctx, "s1", "d1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Question)
}

func TestStore_DeleteSession(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, entry("s1", "d1", "a", 1)))
	require.NoError(t, store.Record(ctx, entry("s1", "d1", "b", 2)))
	require.NoError(t, store.Record(ctx, entry("s2", "d1", "c", 3)))

	n, err := store.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.duckdb")
	ctx := context.Background()

	store, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, entry("s1", "d1", "kept", 1)))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.List(ctx, "s1", "d1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].Question)
}
