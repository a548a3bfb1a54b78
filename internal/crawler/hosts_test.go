package crawler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadHosts(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hosts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"pdses": {
			"pds-b.test": {"inviteCodeRequired": true, "version": "0.4.1"},
			"pds-a.test": {"version": "0.4.0"},
			"entryway.test": {}
		}
	}`), 0o600))

	hosts, err := LoadHosts(path, "entryway.test")
	require.NoError(t, err)
	// Sorted for a stable order, with the skipped host excluded.
	assert.Equal(t, []string{"pds-a.test", "pds-b.test"}, hosts)
}

func TestLoadHostsErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadHosts(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "hosts.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
		_, err := LoadHosts(path)
		assert.Error(t, err)
	})

	t.Run("empty inventory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "hosts.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"pdses": {}}`), 0o600))
		hosts, err := LoadHosts(path)
		require.NoError(t, err)
		assert.Empty(t, hosts)
	})
}
