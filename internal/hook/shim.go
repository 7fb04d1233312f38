package hook

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// shimScript is the shim body for every managed executable (spec §4.5
// "Shims"): resolve the caller's CWD (inherited, since the shim runs in
// the caller's own process), materialize that directory's env via
// `hook env`, then exec the real tool. Because `hook env` always strips
// the shims directory from PATH (Compute's shimsDir/keepShims handling),
// `exec name` below resolves to the now-PATH-visible real binary, never
// back to this shim, so no hardcoded real path is needed.
const shimScript = `#!/bin/sh
# generated by omni config reshim, do not edit
eval "$(omni hook env bash)"
exec %s "$@"
`

// WriteShims regenerates dir's shim set to contain exactly one executable
// shim per name in names, removing any existing shim not in that set (spec:
// "Shims whose backing resource disappears are removed").
func WriteShims(dir string, names []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("hook: creating shims dir %s: %w", dir, err)
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("hook: listing shims dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || want[e.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("hook: removing stale shim %s: %w", e.Name(), err)
		}
	}

	sorted := append([]string{}, names...)
	sort.Strings(sorted)
	for _, name := range sorted {
		path := filepath.Join(dir, name)
		content := fmt.Sprintf(shimScript, shellQuotePosixExec(name))
		if err := os.WriteFile(path, []byte(content), 0o755); err != nil { //nolint:gosec // shims must be executable
			return fmt.Errorf("hook: writing shim %s: %w", name, err)
		}
	}
	return nil
}

// shellQuotePosixExec quotes name defensively for the `exec` line; real
// executable names are never adversarial input (they come from an
// installed resource's own binary name), but a defensive quote costs
// nothing and protects against a name containing a shell metacharacter.
func shellQuotePosixExec(name string) string {
	return shellQuotePosix(name)
}
