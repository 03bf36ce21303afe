package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileStore(t *testing.T) {
	t.Run("creates directory with correct permissions", func(t *testing.T) {
		tmpDir := t.TempDir()
		credDir := filepath.Join(tmpDir, "creds")

		store, err := NewFileStore(filepath.Join(credDir, "session.json"))
		require.NoError(t, err)
		assert.NotNil(t, store)

		info, err := os.Stat(credDir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
	})

	t.Run("uses default path when empty", func(t *testing.T) {
		store, err := NewFileStore("")
		// If home dir is available, this should succeed
		if err != nil {
			assert.Contains(t, err.Error(), "home directory")
		} else {
			assert.Contains(t, store.Path(), filepath.Join(".timax", "session.json"))
		}
	})
}

func TestFileStore(t *testing.T) {
	pair := Pair{AccessToken: "access-1", RefreshToken: "refresh-1"}

	t.Run("get on empty store returns not found", func(t *testing.T) {
		store, err := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
		require.NoError(t, err)

		_, err = store.Get()
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set then get round trips the pair", func(t *testing.T) {
		store, err := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
		require.NoError(t, err)

		require.NoError(t, store.Set(pair))

		got, err := store.Get()
		require.NoError(t, err)
		assert.Equal(t, pair, *got)

		info, err := os.Stat(store.Path())
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("persists both keys under fixed names", func(t *testing.T) {
		store, err := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
		require.NoError(t, err)
		require.NoError(t, store.Set(pair))

		data, err := os.ReadFile(store.Path())
		require.NoError(t, err)
		assert.Contains(t, string(data), `"`+AccessTokenKey+`": "access-1"`)
		assert.Contains(t, string(data), `"`+RefreshTokenKey+`": "refresh-1"`)
	})

	t.Run("rejects half pairs", func(t *testing.T) {
		store, err := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
		require.NoError(t, err)

		err = store.Set(Pair{AccessToken: "only-access"})
		assert.ErrorIs(t, err, ErrIncompletePair)

		_, err = os.Stat(store.Path())
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("half written file reads as not found and is left in place", func(t *testing.T) {
		store, err := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(store.Path(), []byte(`{"access_token":"a"}`), 0600))

		_, err = store.Get()
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = os.Stat(store.Path())
		require.NoError(t, err)

		require.NoError(t, store.Clear())
		_, err = os.Stat(store.Path())
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("unreadable file reads as not found and is left in place", func(t *testing.T) {
		store, err := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(store.Path(), []byte(`not json`), 0600))

		_, err = store.Get()
		assert.ErrorIs(t, err, ErrNotFound)

		data, err := os.ReadFile(store.Path())
		require.NoError(t, err)
		assert.Equal(t, "not json", string(data))

		require.NoError(t, store.Set(pair))
		got, err := store.Get()
		require.NoError(t, err)
		assert.Equal(t, pair, *got)
	})

	t.Run("clear is idempotent", func(t *testing.T) {
		store, err := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
		require.NoError(t, err)
		require.NoError(t, store.Set(pair))

		require.NoError(t, store.Clear())
		require.NoError(t, store.Clear())

		_, err = store.Get()
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get()
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, store.Set(Pair{RefreshToken: "r"}), ErrIncompletePair)
	require.NoError(t, store.Set(Pair{AccessToken: "a", RefreshToken: "r"}))

	got, err := store.Get()
	require.NoError(t, err)
	got.AccessToken = "mutated"

	again, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "a", again.AccessToken)

	require.NoError(t, store.Clear())
	_, err = store.Get()
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFingerprint(t *testing.T) {
	assert.Empty(t, Fingerprint(""))
	assert.Equal(t, Fingerprint("abc"), Fingerprint("abc"))
	assert.NotEqual(t, Fingerprint("abc"), Fingerprint("abd"))
	assert.NotContains(t, Fingerprint("secret-token"), "secret")
}
