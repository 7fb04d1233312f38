// Package envstore implements the environment-version store (spec §4.4):
// content-addressed fingerprinting of a computed environment, the
// WorkDirEnv current-pointer table, append-only EnvHistory, and retention.
package envstore

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"
)

// ResolvedVersion is one (kind-specific key, version) pair the environment
// resolved, ordered the same way the pipeline ran operations.
type ResolvedVersion struct {
	Key     string `json:"key"`
	Version string `json:"version"`
}

// PathContribution is one ordered PATH prepend.
type PathContribution struct {
	Dir      string `json:"dir"`
	Priority int    `json:"priority"`
}

// EnvVarContribution is one ordered environment-variable mutation.
type EnvVarContribution struct {
	Name  string `json:"name"`
	Op    string `json:"op"`
	Value string `json:"value"`
}

// ConfigFileModTime pairs a contributing config file with its modtime, as
// unix seconds so the canonical encoding is independent of time.Time's
// internal monotonic/location fields.
type ConfigFileModTime struct {
	Path    string `json:"path"`
	ModTime int64  `json:"mod_time"`
}

// FingerprintInput is the tuple spec §4.4 hashes: "resolved_versions,
// ordered_paths, ordered_env_vars, per_config_file_modtimes, and a
// config-content hash". Versions/paths/vars are kept in pipeline order
// (not sorted) since that order is itself part of what determines the
// computed environment; config file fingerprints ARE sorted by path so
// that P4 ("permuting YAML key order... does not change the id") holds
// regardless of merge-chain file globbing order.
type FingerprintInput struct {
	ResolvedVersions []ResolvedVersion
	OrderedPaths     []PathContribution
	OrderedEnvVars   []EnvVarContribution
	ConfigFiles      []ConfigFileModTime
	ConfigHash       string
}

// canonicalTuple is the exact JSON shape that gets hashed. Field order in
// the struct fixes the serialized order; this layout is frozen per spec §9's
// "freeze it with a version bump" note, so changing it requires bumping
// canonicalizationVersion.
type canonicalTuple struct {
	Version          int                   `json:"v"`
	ResolvedVersions []ResolvedVersion     `json:"resolved_versions"`
	OrderedPaths     []PathContribution    `json:"ordered_paths"`
	OrderedEnvVars   []EnvVarContribution  `json:"ordered_env_vars"`
	ConfigFiles      []ConfigFileModTime   `json:"config_files"`
	ConfigHash       string                `json:"config_hash"`
}

// canonicalizationVersion is embedded in every hashed tuple so that a future
// change to the canonicalization rule produces disjoint env_version_ids
// instead of silently colliding with the old rule's ids.
const canonicalizationVersion = 1

// Fingerprint computes env_version_id: BLAKE3 over the canonical JSON
// encoding of in. Deterministic regardless of map iteration order because
// every field here is an ordered slice, not a map.
func Fingerprint(in FingerprintInput) (string, error) {
	sortedFiles := append([]ConfigFileModTime{}, in.ConfigFiles...)
	sort.Slice(sortedFiles, func(i, j int) bool { return sortedFiles[i].Path < sortedFiles[j].Path })

	tuple := canonicalTuple{
		Version:          canonicalizationVersion,
		ResolvedVersions: orEmpty(in.ResolvedVersions),
		OrderedPaths:     orEmptyPaths(in.OrderedPaths),
		OrderedEnvVars:   orEmptyVars(in.OrderedEnvVars),
		ConfigFiles:      orEmptyFiles(sortedFiles),
		ConfigHash:       in.ConfigHash,
	}

	data, err := json.Marshal(tuple)
	if err != nil {
		return "", fmt.Errorf("envstore: encoding fingerprint tuple: %w", err)
	}

	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum), nil
}

// orEmpty* normalize nil slices to empty ones so that json.Marshal emits
// `[]` rather than `null`. Otherwise an empty `up:` config (spec's
// "Empty up: is valid; yields an empty EnvVersion") would hash differently
// depending on whether the caller passed nil or an allocated empty slice.
func orEmpty(v []ResolvedVersion) []ResolvedVersion {
	if v == nil {
		return []ResolvedVersion{}
	}
	return v
}

func orEmptyPaths(v []PathContribution) []PathContribution {
	if v == nil {
		return []PathContribution{}
	}
	return v
}

func orEmptyVars(v []EnvVarContribution) []EnvVarContribution {
	if v == nil {
		return []EnvVarContribution{}
	}
	return v
}

func orEmptyFiles(v []ConfigFileModTime) []ConfigFileModTime {
	if v == nil {
		return []ConfigFileModTime{}
	}
	return v
}
