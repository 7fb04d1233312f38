package hook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveWorkDirFindsNearestConfigFile(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".omni.yaml"), []byte("up: []\n"), 0o644))

	dir, found := ResolveWorkDir(sub)
	require.True(t, found)
	require.Equal(t, root, dir)
}

func TestResolveWorkDirNotFoundOutsideAnyConfig(t *testing.T) {
	dir := t.TempDir()
	_, found := ResolveWorkDir(dir)
	require.False(t, found)
}
