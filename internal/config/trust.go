package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

// TrustFilePath returns ~/.config/omni/trust.yaml (honoring XDG_CONFIG_HOME).
func TrustFilePath() (string, error) {
	if xdg := os.Getenv(EnvXDGConfigHome); xdg != "" {
		return filepath.Join(xdg, "omni", "trust.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "omni", "trust.yaml"), nil
}

// LoadTrustStore reads the trust file, returning an empty store if absent.
func LoadTrustStore() (*TrustStore, error) {
	path, err := TrustFilePath()
	if err != nil {
		return nil, err
	}

	store := &TrustStore{Repos: map[string]TrustedRepo{}, path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("reading trust store: %w", err)
	}
	if len(data) == 0 {
		return store, nil
	}
	if err := yaml.Unmarshal(data, store); err != nil {
		return nil, fmt.Errorf("parsing trust store: %w", err)
	}
	if store.Repos == nil {
		store.Repos = map[string]TrustedRepo{}
	}
	store.path = path
	return store, nil
}

// IsTrusted reports whether firstCommitSHA is in the trust set.
func (t *TrustStore) IsTrusted(firstCommitSHA string) bool {
	_, ok := t.Repos[firstCommitSHA]
	return ok
}

// Trust marks firstCommitSHA as trusted and persists the store.
func (t *TrustStore) Trust(firstCommitSHA, remoteURL string) error {
	if t.Repos == nil {
		t.Repos = map[string]TrustedRepo{}
	}
	t.Repos[firstCommitSHA] = TrustedRepo{RemoteURL: remoteURL, TrustedAt: time.Now()}
	return t.save()
}

// Untrust removes firstCommitSHA from the trust set and persists the store.
func (t *TrustStore) Untrust(firstCommitSHA string) error {
	delete(t.Repos, firstCommitSHA)
	return t.save()
}

func (t *TrustStore) save() error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o700); err != nil {
		return fmt.Errorf("creating trust store directory: %w", err)
	}
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshaling trust store: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0o600); err != nil {
		return fmt.Errorf("writing trust store: %w", err)
	}
	return nil
}
