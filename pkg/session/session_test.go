package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wurt83ow/backoffice-client/pkg/encription"
)

func TestManager_SaveLoadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.dat")
	m := NewManager(path, encription.NewEnc("k"), 0)

	_, err := m.Load()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Empty(t, m.Token())

	saved, err := m.Save("chef", "tok-123")
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "tok-123")

	loaded, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "chef", loaded.Username)
	assert.True(t, saved.Start.Equal(loaded.Start))
	assert.Equal(t, "tok-123", m.Token())

	require.NoError(t, m.Clear())
	require.NoError(t, m.Clear())
	assert.Empty(t, m.Token())
}

func TestManager_Expiry(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "session.dat"), encription.NewEnc("k"), time.Hour)
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }

	_, err := m.Save("chef", "tok")
	require.NoError(t, err)

	m.now = func() time.Time { return start.Add(2 * time.Hour) }
	_, err = m.Load()
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Empty(t, m.Token())
}

func TestManager_OtherKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.dat")
	_, err := NewManager(path, encription.NewEnc("one"), 0).Save("chef", "tok")
	require.NoError(t, err)

	_, err = NewManager(path, encription.NewEnc("two"), 0).Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManager_EmptyToken(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "session.dat"), encription.NewEnc("k"), 0)
	_, err := m.Save("chef", "")
	assert.Error(t, err)
}
