// Package config loads and merges the layered YAML configuration described
// in spec §6: system pre-files, the global user file, $OMNI_CONFIG, system
// post-files, then the work directory's own .omni.yaml/.omni/config.yaml,
// last-wins. It also owns the on-disk trust store keyed by first-commit SHA.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/zeebo/blake3"
)

// EnvOmniConfig and friends name the environment variables §6 says are read.
const (
	EnvOmniConfig    = "OMNI_CONFIG"
	EnvOmniDataHome  = "OMNI_DATA_HOME"
	EnvOmniCacheHome = "OMNI_CACHE_HOME"
	EnvXDGConfigHome = "XDG_CONFIG_HOME"
	EnvXDGDataHome   = "XDG_DATA_HOME"
	EnvXDGCacheHome  = "XDG_CACHE_HOME"
)

// Paths resolves the filesystem layout from spec §6.
type Paths struct {
	DataHome  string
	CacheHome string
}

// ResolvePaths computes DataHome/CacheHome honoring OMNI_DATA_HOME /
// OMNI_CACHE_HOME, falling back to the XDG base directories and finally
// to ~/.local/share/omni and ~/.cache/omni.
func ResolvePaths() (Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolving home directory: %w", err)
	}

	data := os.Getenv(EnvOmniDataHome)
	if data == "" {
		if xdg := os.Getenv(EnvXDGDataHome); xdg != "" {
			data = filepath.Join(xdg, "omni")
		} else {
			data = filepath.Join(home, ".local", "share", "omni")
		}
	}

	cache := os.Getenv(EnvOmniCacheHome)
	if cache == "" {
		if xdg := os.Getenv(EnvXDGCacheHome); xdg != "" {
			cache = filepath.Join(xdg, "omni")
		} else {
			cache = filepath.Join(home, ".cache", "omni")
		}
	}

	return Paths{DataHome: data, CacheHome: cache}, nil
}

// ShimsDir returns $OMNI_DATA_HOME/shims.
func (p Paths) ShimsDir() string { return filepath.Join(p.DataHome, "shims") }

// CacheDBPath returns $OMNI_CACHE_HOME/cache.db.
func (p Paths) CacheDBPath() string { return filepath.Join(p.CacheHome, "cache.db") }

// Defaults holds the engine-wide tunables a work directory config may
// override: cleanup grace period, version-cache TTL, env-history retention.
type Defaults struct {
	CleanupAfter     time.Duration `yaml:"cleanup_after"`
	VersionsExpire   time.Duration `yaml:"versions_expire"`
	VersionsRetention time.Duration `yaml:"versions_retention"`
	MaxHistoryPerWD  int           `yaml:"max_history_per_workdir"`
	MaxHistoryGlobal int           `yaml:"max_history_global"`
	HistoryRetention time.Duration `yaml:"history_retention"`
}

// DefaultDefaults is the fallback when no layer sets a value.
func DefaultDefaults() Defaults {
	return Defaults{
		CleanupAfter:      7 * 24 * time.Hour,
		VersionsExpire:    24 * time.Hour,
		VersionsRetention: 30 * 24 * time.Hour,
		MaxHistoryPerWD:   20,
		MaxHistoryGlobal:  500,
		HistoryRetention:  90 * 24 * time.Hour,
	}
}

// rawLayer is the shape every YAML layer is parsed into before merge. `Up`
// stays as raw yaml.MapSlice-compatible nodes until internal/operation
// parses each entry's tagged variant, since the set of valid keys depends
// on which backend owns that map's sole key.
type rawLayer struct {
	Defaults Defaults `yaml:"defaults"`
	Up       []yaml.MapSlice `yaml:"up"`
}

// WorkDirConfig is the effective, merged configuration for one work
// directory: the resolved `up:` operation list (still as raw per-entry
// maps; internal/operation.Parse turns them into step.Step values) plus
// resolved Defaults.
type WorkDirConfig struct {
	Defaults  Defaults
	UpEntries []yaml.MapSlice
	// SourceFiles lists, in merge order, every file that contributed a
	// layer, each paired with its modtime (feeds env_version_id's
	// per_config_file_modtimes component, spec §4.4).
	SourceFiles []FileFingerprint
}

// FileFingerprint names one contributing config file and its mtime.
type FileFingerprint struct {
	Path    string
	ModTime time.Time
}

// Load walks the merge chain in spec §6 order and returns the effective
// config for workDir (workDir == "" loads the global layers only).
func Load(workDir string) (*WorkDirConfig, error) {
	var layers []rawLayer
	var fingerprints []FileFingerprint

	addFile := func(path string) error {
		layer, fp, err := loadLayerFile(path)
		if err != nil {
			return err
		}
		if layer == nil {
			return nil
		}
		layers = append(layers, *layer)
		fingerprints = append(fingerprints, fp)
		return nil
	}
	addGlob := func(pattern string) error {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("globbing %s: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if err := addFile(m); err != nil {
				return err
			}
		}
		return nil
	}

	if err := addFile("/etc/omni/pre.yaml"); err != nil {
		return nil, err
	}
	if err := addGlob("/etc/omni/pre.d/*.yaml"); err != nil {
		return nil, err
	}

	if home, err := os.UserHomeDir(); err == nil {
		if err := addFile(filepath.Join(home, ".omni.yaml")); err != nil {
			return nil, err
		}
	}
	if xdg := os.Getenv(EnvXDGConfigHome); xdg != "" {
		if err := addFile(filepath.Join(xdg, "omni", "config.yaml")); err != nil {
			return nil, err
		}
	}
	if explicit := os.Getenv(EnvOmniConfig); explicit != "" {
		if err := addFile(explicit); err != nil {
			return nil, err
		}
	}

	if err := addFile("/etc/omni/post.yaml"); err != nil {
		return nil, err
	}
	if err := addGlob("/etc/omni/post.d/*.yaml"); err != nil {
		return nil, err
	}

	if workDir != "" {
		if err := addFile(filepath.Join(workDir, ".omni.yaml")); err != nil {
			return nil, err
		}
		if err := addFile(filepath.Join(workDir, ".omni", "config.yaml")); err != nil {
			return nil, err
		}
	}

	return mergeLayers(layers, fingerprints), nil
}

// ContentHash computes spec §4.4's "config-content hash" component of
// env_version_id: BLAKE3 over the canonical JSON encoding of the merged
// up: entries and resolved defaults. Deliberately independent of which
// files contributed them or their modtimes (those are tracked separately
// via SourceFiles/ConfigFileModTime), so two work directories with
// byte-identical effective config but different file layouts still agree
// on env_version_id wherever the rest of the fingerprint tuple matches.
func (c *WorkDirConfig) ContentHash() (string, error) {
	data, err := json.Marshal(struct {
		Defaults Defaults        `json:"defaults"`
		Up       []yaml.MapSlice `json:"up"`
	}{c.Defaults, c.UpEntries})
	if err != nil {
		return "", fmt.Errorf("config: encoding content hash input: %w", err)
	}
	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum), nil
}

func loadLayerFile(path string) (*rawLayer, FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, FileFingerprint{}, nil
		}
		return nil, FileFingerprint{}, fmt.Errorf("stat %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, FileFingerprint{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var layer rawLayer
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return nil, FileFingerprint{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	return &layer, FileFingerprint{Path: path, ModTime: info.ModTime()}, nil
}

// mergeLayers applies last-wins precedence: Defaults fields are overridden
// field-by-field by later non-zero layers; `up:` lists fully replace the
// prior layer's list rather than append (a work directory's up: is the
// complete declaration, not an extension of the global one).
func mergeLayers(layers []rawLayer, fingerprints []FileFingerprint) *WorkDirConfig {
	merged := DefaultDefaults()
	var upEntries []yaml.MapSlice

	for _, l := range layers {
		if l.Defaults.CleanupAfter != 0 {
			merged.CleanupAfter = l.Defaults.CleanupAfter
		}
		if l.Defaults.VersionsExpire != 0 {
			merged.VersionsExpire = l.Defaults.VersionsExpire
		}
		if l.Defaults.VersionsRetention != 0 {
			merged.VersionsRetention = l.Defaults.VersionsRetention
		}
		if l.Defaults.MaxHistoryPerWD != 0 {
			merged.MaxHistoryPerWD = l.Defaults.MaxHistoryPerWD
		}
		if l.Defaults.MaxHistoryGlobal != 0 {
			merged.MaxHistoryGlobal = l.Defaults.MaxHistoryGlobal
		}
		if l.Defaults.HistoryRetention != 0 {
			merged.HistoryRetention = l.Defaults.HistoryRetention
		}
		if l.Up != nil {
			upEntries = l.Up
		}
	}

	return &WorkDirConfig{
		Defaults:    merged,
		UpEntries:   upEntries,
		SourceFiles: fingerprints,
	}
}
