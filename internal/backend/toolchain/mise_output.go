package toolchain

import (
	"encoding/json"
	"strings"
)

// parseMiseListVersions parses `mise ls <tool> --installed --json`, whose
// shape is a JSON array of objects each carrying at least a "version" field.
func parseMiseListVersions(stdout string) []string {
	var rows []struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal([]byte(stdout), &rows); err != nil {
		return nil
	}
	versions := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Version != "" {
			versions = append(versions, r.Version)
		}
	}
	return versions
}

// parseMiseLsRemote parses `mise ls-remote <tool>`'s plain newline-delimited
// version list.
func parseMiseLsRemote(stdout string) []string {
	lines := strings.Split(stdout, "\n")
	versions := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			versions = append(versions, l)
		}
	}
	return versions
}
