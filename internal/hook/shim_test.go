package hook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteShimsCreatesOneFilePerName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteShims(dir, []string{"go", "node"}))

	for _, name := range []string{"go", "node"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		require.True(t, info.Mode()&0o111 != 0, "shim must be executable")
	}
}

func TestWriteShimsRemovesStaleShims(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteShims(dir, []string{"go", "node"}))
	require.NoError(t, WriteShims(dir, []string{"go"}))

	_, err := os.Stat(filepath.Join(dir, "node"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "go"))
	require.NoError(t, err)
}
