package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ada-analyst/console/internal/upload"
)

func TestManager_CreateGetDelete(t *testing.T) {
	m := NewManager(0, nil)

	s := m.Create()
	require.NotEmpty(t, s.ID())

	got, ok := m.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.True(t, m.Touch(s.ID()))
	assert.Equal(t, 1, m.Len())

	assert.True(t, m.Delete(s.ID()))
	assert.False(t, m.Delete(s.ID()))
	_, ok = m.Get(s.ID())
	assert.False(t, ok)
	assert.False(t, m.Touch(s.ID()))
}

func TestManager_SessionsAreIndependent(t *testing.T) {
	m := NewManager(0, nil)
	a, b := m.Create(), m.Create()

	tk := a.BeginUpload(&upload.Selection{Name: "a.csv"})
	a.CompleteUpload(tk, uploadResp("d-a"))

	assert.Equal(t, "d-a", a.DatasetID())
	assert.Empty(t, b.DatasetID())
}

func TestManager_CleanupOldSessions(t *testing.T) {
	m := NewManager(0, nil)

	stale := m.Create()
	stale.lastAccessed = time.Now().Add(-2 * time.Hour)

	busySess := m.Create()
	busySess.BeginUpload(&upload.Selection{Name: "slow.csv"})
	busySess.lastAccessed = time.Now().Add(-2 * time.Hour)

	fresh := m.Create()

	removed := m.CleanupOldSessions(30 * time.Minute)
	assert.Equal(t, 1, removed)

	_, ok := m.Get(stale.ID())
	assert.False(t, ok)
	_, ok = m.Get(busySess.ID())
	assert.True(t, ok, "sessions with a request in flight are kept")
	_, ok = m.Get(fresh.ID())
	assert.True(t, ok)
}

func TestManager_EvictsLeastRecentlyUsed(t *testing.T) {
	m := NewManager(2, nil)

	oldest := m.Create()
	oldest.lastAccessed = time.Now().Add(-time.Hour)
	newer := m.Create()

	third := m.Create()

	assert.Equal(t, 2, m.Len())
	_, ok := m.Get(oldest.ID())
	assert.False(t, ok)
	_, ok = m.Get(newer.ID())
	assert.True(t, ok)
	_, ok = m.Get(third.ID())
	assert.True(t, ok)
}

func TestManager_OnRemove(t *testing.T) {
	m := NewManager(2, nil)

	var removed []string
	m.OnRemove(func(id string) {
		// The hook runs without the lock, so it may call back into the manager.
		_, ok := m.Get(id)
		assert.False(t, ok)
		removed = append(removed, id)
	})

	a := m.Create()
	a.lastAccessed = time.Now().Add(-2 * time.Hour)
	b := m.Create()

	m.Create() // evicts a
	require.Equal(t, []string{a.ID()}, removed)

	m.Delete(b.ID())
	assert.Equal(t, []string{a.ID(), b.ID()}, removed)
}
