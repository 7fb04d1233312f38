// Package hook implements the dynamic-env hook and shim layer (spec §4.5):
// the per-prompt diff between a shell's recorded `__omni_dynenv` state and
// the work directory's desired environment, emitting the minimal set of
// shell commands to transition between them, plus shim regeneration.
//
// Grounded on spec.md's own worked algorithm and S3 example; no teacher or
// pack example drives a shell-prompt hook, so the JSON encoding and
// command-emission shape below are this package's own design, built with
// the tidwall JSON-surgery libraries spec calls for here (gjson/sjson over
// encoding/json, since `__omni_dynenv`'s JSON blob is a dynamic bag of
// path/var operations read and patched every prompt rather than a fixed
// struct).
package hook

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DynEnv is the decoded shape of `__omni_dynenv`: the ordered PATH prepends
// and the named variable values this shell's prompt currently has applied,
// plus the PATH value that existed before any omni contribution (so a later
// prompt can fully recompute PATH instead of patching it incrementally).
//
// EnvVersionID is the `<blake3>` prefix from spec §4.5; it is literally the
// env_version_id (itself a BLAKE3 hash, computed by internal/envstore) the
// shell is currently tracking, not a hash this package computes over the
// JSON blob. Comparing it against the desired env_version_id is step 3 of
// the hook algorithm ("if <blake3> equals env_version_id, emit nothing").
type DynEnv struct {
	EnvVersionID string
	BasePath     string
	Paths        []string          // ordered, lowest priority first
	Vars         map[string]string // name -> currently applied value
}

// Empty is the zero DynEnv: no recorded prior state (e.g. a brand new
// shell, or one that has never entered an omni-managed work directory).
func Empty() DynEnv {
	return DynEnv{Vars: map[string]string{}}
}

// ParseDynEnv decodes `__omni_dynenv`'s `<blake3>;<json>` format. An empty
// or malformed input is treated as Empty(), per spec §4.5 step 1: absence
// of a recognizable prior state just means "desired differs from nothing".
func ParseDynEnv(raw string) DynEnv {
	if raw == "" {
		return Empty()
	}
	idx := strings.IndexByte(raw, ';')
	if idx < 0 {
		return Empty()
	}
	hash, blob := raw[:idx], raw[idx+1:]
	if !gjson.Valid(blob) {
		return Empty()
	}

	d := DynEnv{EnvVersionID: hash, Vars: map[string]string{}}
	d.BasePath = gjson.Get(blob, "base_path").String()
	for _, p := range gjson.Get(blob, "paths").Array() {
		d.Paths = append(d.Paths, p.String())
	}
	gjson.Get(blob, "vars").ForEach(func(k, v gjson.Result) bool {
		d.Vars[k.String()] = v.String()
		return true
	})
	return d
}

// Encode renders `<blake3>;<json>` for d: the env_version_id d carries,
// followed by the JSON description of the forward operations applied, so
// the next prompt's hook invocation can revert them (spec §4.5 step 4).
func Encode(d DynEnv) (string, error) {
	blob := "{}"
	var err error
	blob, err = sjson.Set(blob, "base_path", d.BasePath)
	if err != nil {
		return "", fmt.Errorf("hook: encoding dynenv: %w", err)
	}
	blob, err = sjson.Set(blob, "paths", orEmptyStrings(d.Paths))
	if err != nil {
		return "", fmt.Errorf("hook: encoding dynenv: %w", err)
	}

	names := make([]string, 0, len(d.Vars))
	for name := range d.Vars {
		names = append(names, name)
	}
	sort.Strings(names)
	varsBlob := "{}"
	for _, name := range names {
		varsBlob, err = sjson.Set(varsBlob, name, d.Vars[name])
		if err != nil {
			return "", fmt.Errorf("hook: encoding dynenv vars: %w", err)
		}
	}
	blob, err = sjson.SetRaw(blob, "vars", varsBlob)
	if err != nil {
		return "", fmt.Errorf("hook: encoding dynenv: %w", err)
	}

	return fmt.Sprintf("%s;%s", d.EnvVersionID, blob), nil
}

func orEmptyStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
