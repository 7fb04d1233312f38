package hook

import (
	"os"
	"path/filepath"
)

// configFileNames are the per-work-directory config files that make a
// directory "recognized" for spec §4.5 step 1's upward walk, matching
// internal/config's own per-workdir layer file names.
var configFileNames = []string{".omni.yaml", filepath.Join(".omni", "config.yaml")}

// ResolveWorkDir walks from cwd upward looking for a recognized config
// file, returning the first directory that has one. found is false if the
// walk reaches the filesystem root without finding one (spec: "absence
// selects the empty env").
func ResolveWorkDir(cwd string) (dir string, found bool) {
	current, err := filepath.Abs(cwd)
	if err != nil {
		return "", false
	}

	for {
		for _, name := range configFileNames {
			if _, err := os.Stat(filepath.Join(current, name)); err == nil {
				return current, true
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}
