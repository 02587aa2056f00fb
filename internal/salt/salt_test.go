package salt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolve(t *testing.T) {
	logger := zap.NewNop()

	t.Run("first run generates salt and backups", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "__SALT")

		s, err := Resolve(path, logger)
		require.NoError(t, err)
		assert.Len(t, s.Key(), 32)
		assert.Len(t, s.Version(), versionLength)

		primary, err := os.ReadFile(path)
		require.NoError(t, err)
		for _, suffix := range BackupSuffixes {
			backup, err := os.ReadFile(path + suffix)
			require.NoError(t, err)
			assert.Equal(t, primary, backup)
		}

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("existing salt is stable across resolutions", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "__SALT")

		first, err := Resolve(path, logger)
		require.NoError(t, err)
		second, err := Resolve(path, logger)
		require.NoError(t, err)

		assert.Equal(t, first.Key(), second.Key())
		assert.Equal(t, first.Version(), second.Version())
	})

	t.Run("missing primary is restored from backup", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "__SALT")
		original, err := Resolve(path, logger)
		require.NoError(t, err)

		require.NoError(t, os.Remove(path))
		require.NoError(t, os.Remove(path+BackupSuffixes[0]))

		restored, err := Resolve(path, logger)
		require.NoError(t, err)
		assert.Equal(t, original.Version(), restored.Version())

		_, err = os.Stat(path)
		assert.NoError(t, err)
		_, err = os.Stat(path + BackupSuffixes[0])
		assert.NoError(t, err, "missing backup should be rewritten")
	})

	t.Run("empty primary is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "__SALT")
		require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))

		_, err := Resolve(path, logger)
		assert.Error(t, err)
	})
}

func TestFromSecret(t *testing.T) {
	a, err := FromSecret([]byte("secret-a\n"))
	require.NoError(t, err)
	trimmed, err := FromSecret([]byte("secret-a"))
	require.NoError(t, err)
	b, err := FromSecret([]byte("secret-b"))
	require.NoError(t, err)

	assert.Equal(t, a.Version(), trimmed.Version())
	assert.NotEqual(t, a.Version(), b.Version())
	assert.NotEqual(t, a.Key(), b.Key())

	key := a.Key()
	key[0] ^= 0xff
	assert.NotEqual(t, key, a.Key(), "Key must return a copy")

	_, err = FromSecret(nil)
	assert.Error(t, err)
}
