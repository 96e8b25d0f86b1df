package tokenstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/bankshield/internal/errors"
)

func stores(t *testing.T) map[string]Store {
	dir := t.TempDir()
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(dir, "plain", "credentials.json")),
		"sealed": NewFileStore(filepath.Join(dir, "sealed", "credentials.json"), WithPassphrase("correct horse")),
	}
}

func TestStoreContract(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Load()
			require.NoError(t, err)
			assert.False(t, ok, "new store is empty")

			cred := Credential{AccessToken: "tok-1", RefreshToken: "ref-1"}
			require.NoError(t, store.Save(cred))

			got, ok, err := store.Load()
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, cred, got)

			require.NoError(t, store.Save(Credential{AccessToken: "tok-2"}))
			got, _, err = store.Load()
			require.NoError(t, err)
			assert.Equal(t, "tok-2", got.AccessToken)
			assert.Empty(t, got.RefreshToken)

			require.NoError(t, store.Clear())
			_, ok, err = store.Load()
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Clear(), "clearing twice is fine")
		})
	}
}

func TestFileStore_UsesFixedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewFileStore(path)
	require.NoError(t, store.Save(Credential{AccessToken: "abc", RefreshToken: "def"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]string
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "abc", doc["access_token"])
	assert.Equal(t, "def", doc["refresh_token"])
}

func TestFileStore_SealedAtRest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, NewFileStore(path, WithPassphrase("pass")).Save(Credential{AccessToken: "secret-token"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret-token")

	t.Run("no passphrase", func(t *testing.T) {
		_, _, err := NewFileStore(path).Load()
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.KindValidation))
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		_, _, err := NewFileStore(path, WithPassphrase("nope")).Load()
		require.Error(t, err)
	})

	t.Run("right passphrase", func(t *testing.T) {
		cred, ok, err := NewFileStore(path, WithPassphrase("pass")).Load()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "secret-token", cred.AccessToken)
	})
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, ok, err := NewFileStore(path).Load()
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestSaveEmptyCredentialClears(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewFileStore(path)
	require.NoError(t, store.Save(Credential{AccessToken: "x"}))
	require.NoError(t, store.Save(Credential{}))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
