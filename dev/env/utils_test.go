package devenv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	root, err := GetWorkspaceRoot()
	require.NoError(t, err)

	path, err := ResolvePath("<dev_state>/visionsync.db")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "dev", ".state", "visionsync.db"), path)

	path, err = ResolvePath("<dev_state>/resty/visionplus")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "dev", ".state", "resty", "visionplus"), path)

	path, err = ResolvePath("/var/lib/visionsync.db")
	require.NoError(t, err)
	require.Equal(t, "/var/lib/visionsync.db", path)
}
