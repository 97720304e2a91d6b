package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv(KeyToken, "")
	t.Setenv(KeyEmail, "")
	t.Setenv(KeyUserID, "")
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", ".env"))
	require.NoError(t, err)
	return store
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	store := newTestStore(t)

	creds, err := store.Load()
	require.NoError(t, err)
	assert.False(t, creds.LoggedIn())

	_, err = store.Require()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestSaveAndLoad(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(Credentials{Token: "tok-1", Email: "ada@example.com", UserID: 7}))

	info, err := os.Stat(store.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	creds, err := store.Require()
	require.NoError(t, err)
	assert.Equal(t, Credentials{Token: "tok-1", Email: "ada@example.com", UserID: 7}, creds)
}

func TestSaveKeepsUnrelatedKeys(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path), 0o700))
	require.NoError(t, os.WriteFile(store.Path, []byte("OTHER=keep\n"), 0o600))

	require.NoError(t, store.Save(Credentials{Token: "tok-2", Email: "b@example.com"}))
	require.NoError(t, store.Clear())

	data, err := os.ReadFile(store.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "OTHER")
	assert.NotContains(t, string(data), KeyToken)
}

func TestClearRemovesFile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(Credentials{Token: "tok-3", Email: "c@example.com", UserID: 3}))

	require.NoError(t, store.Clear())

	_, err := os.Stat(store.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)
	require.NoError(t, store.Clear())
}

func TestEnvironmentWins(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(Credentials{Token: "file-token", Email: "d@example.com", UserID: 4}))

	t.Setenv(KeyToken, "env-token")
	creds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "env-token", creds.Token)
	assert.Equal(t, int64(4), creds.UserID)
}

func TestInvalidUserID(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path), 0o700))
	require.NoError(t, os.WriteFile(store.Path, []byte("PORTALCTL_TOKEN=t\nPORTALCTL_USER_ID=abc\n"), 0o600))

	_, err := store.Load()
	assert.Error(t, err)
}
