package hook

import (
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// CmdKind names the one shell-native action a Command renders as.
type CmdKind int

const (
	CmdSet CmdKind = iota
	CmdUnset
)

// Command is one shell mutation to emit: an export or an unset.
type Command struct {
	Kind  CmdKind
	Name  string
	Value string
}

// Desired is the target environment a work directory resolves to: the
// env_version_id it was fingerprinted as (spec §4.4), its ordered PATH
// prepends, and its named variable mutations (already flattened from
// step.EnvBuilder; prepend/append/suffix ops are resolved to final values
// by the caller, since only internal/operation's pipeline knows the
// previous link's values).
type Desired struct {
	EnvVersionID string
	Paths        []string // ordered, lowest priority first
	Vars         map[string]string
}

// pathListSeparator is the shell PATH separator for the current platform.
func pathListSeparator() string {
	if runtime.GOOS == "windows" {
		return ";"
	}
	return ":"
}

// Compute implements spec §4.5's hook env algorithm: given the shell's
// current recorded DynEnv and the work directory's Desired environment
// (empty Desired{} if none applies), returns the shell commands to emit and
// the new `__omni_dynenv` value to set. If old.EnvVersionID already equals
// desired.EnvVersionID, it emits nothing and returns old unchanged (step 3).
// When desired.EnvVersionID is empty, `__omni_dynenv` is unset instead.
//
// shimsDir, when non-empty, is always stripped from the recomputed PATH
// (spec: "emit removal of the shims directory from PATH... so freshly
// injected toolchain paths take precedence"); keepShims suppresses that.
func Compute(old DynEnv, desired Desired, currentPATH, shimsDir string, keepShims bool) ([]Command, DynEnv) {
	if old.EnvVersionID == desired.EnvVersionID {
		return nil, old
	}

	var cmds []Command

	// Step 4a: inverse every previously applied variable mutation.
	names := make([]string, 0, len(old.Vars))
	for name := range old.Vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, stillDesired := desired.Vars[name]; !stillDesired {
			cmds = append(cmds, Command{Kind: CmdUnset, Name: name})
		}
	}

	// Step 4b: forward every desired variable mutation (sorted for
	// deterministic, byte-identical output per P5).
	desiredNames := make([]string, 0, len(desired.Vars))
	for name := range desired.Vars {
		desiredNames = append(desiredNames, name)
	}
	sort.Strings(desiredNames)
	for _, name := range desiredNames {
		cmds = append(cmds, Command{Kind: CmdSet, Name: name, Value: desired.Vars[name]})
	}

	// Base PATH: whatever existed before any omni contribution. Reuse the
	// recorded base across transitions so repeatedly entering/leaving work
	// directories never accumulates stale entries.
	base := old.BasePath
	if old.EnvVersionID == "" {
		base = currentPATH
	}
	base = removeFromPath(base, shimsDir, keepShims)

	newPath := desired.Paths
	fullPath := strings.Join(newPath, pathListSeparator())
	if fullPath != "" && base != "" {
		fullPath = fullPath + pathListSeparator() + base
	} else if base != "" {
		fullPath = base
	}
	cmds = append(cmds, Command{Kind: CmdSet, Name: "PATH", Value: fullPath})

	newDyn := DynEnv{
		EnvVersionID: desired.EnvVersionID,
		BasePath:     base,
		Paths:        append([]string{}, newPath...),
		Vars:         cloneVars(desired.Vars),
	}
	if desired.EnvVersionID == "" {
		cmds = append(cmds, Command{Kind: CmdUnset, Name: "__omni_dynenv"})
		return cmds, newDyn
	}
	encoded, err := Encode(newDyn)
	if err == nil {
		cmds = append(cmds, Command{Kind: CmdSet, Name: "__omni_dynenv", Value: encoded})
	}
	return cmds, newDyn
}

func cloneVars(v map[string]string) map[string]string {
	out := make(map[string]string, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// removeFromPath strips dir from a PATH-style string, leaving order and
// every other entry untouched. No-op if keepShims or dir is empty.
func removeFromPath(path, dir string, keepShims bool) string {
	if keepShims || dir == "" || path == "" {
		return path
	}
	sep := pathListSeparator()
	parts := strings.Split(path, sep)
	out := parts[:0]
	for _, p := range parts {
		if filepath.Clean(p) == filepath.Clean(dir) {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, sep)
}
