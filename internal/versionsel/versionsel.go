// Package versionsel implements the version-constraint language shared by
// every backend that resolves a version range against a list of available
// versions: exact, prefix, ~, ^, >, >=, <, <=, x-wildcards, *, ||-delimited
// ranges, plus the two sentinel forms "latest" and "auto" that bypass
// semver-range matching entirely.
package versionsel

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrNoMatch means no candidate satisfied the constraint.
var ErrNoMatch = errors.New("versionsel: no candidate satisfies constraint")

// ErrInvalidConstraint means the constraint string itself could not be parsed.
var ErrInvalidConstraint = errors.New("versionsel: invalid constraint")

// Sentinel is a constraint form handled outside semver-range matching.
type Sentinel int

const (
	// SentinelNone means the constraint is an ordinary semver range.
	SentinelNone Sentinel = iota
	// SentinelLatest selects the highest version after filtering.
	SentinelLatest
	// SentinelAuto defers to version-file scanning (.tool-versions, go.mod, ...);
	// callers must resolve it to a concrete constraint before calling Resolve.
	SentinelAuto
)

// Constraint is a parsed version constraint.
type Constraint struct {
	Raw      string
	Sentinel Sentinel
	semverC  *semver.Constraints
}

// Parse interprets raw per the forms above. "||"-delimited ranges are not
// combinable with "latest"/"auto" per spec; combining them is a parse error.
func Parse(raw string) (Constraint, error) {
	trimmed := strings.TrimSpace(raw)
	switch trimmed {
	case "", "*", "latest":
		return Constraint{Raw: trimmed, Sentinel: SentinelLatest}, nil
	case "auto":
		return Constraint{Raw: trimmed, Sentinel: SentinelAuto}, nil
	}

	clauses := strings.Split(trimmed, "||")
	translated := make([]string, 0, len(clauses))
	for _, part := range clauses {
		p := strings.TrimSpace(part)
		if p == "latest" || p == "auto" {
			return Constraint{}, fmt.Errorf("%w: %q combines || with latest/auto", ErrInvalidConstraint, raw)
		}
		if strings.HasPrefix(p, "^") {
			t, err := translateCaret(p)
			if err != nil {
				return Constraint{}, fmt.Errorf("%w: %q: %w", ErrInvalidConstraint, raw, err)
			}
			p = t
		}
		translated = append(translated, p)
	}

	c, err := semver.NewConstraint(strings.Join(translated, " || "))
	if err != nil {
		return Constraint{}, fmt.Errorf("%w: %q: %w", ErrInvalidConstraint, raw, err)
	}
	return Constraint{Raw: trimmed, Sentinel: SentinelNone, semverC: c}, nil
}

// translateCaret expands "^X[.Y[.Z]]" into an explicit ">=, <" range.
//
// This omni build treats "^" leniently at the 0.0.x boundary: ^0.0.Z means
// ">=0.0.Z <1.0.0" rather than npm/cargo's ">=0.0.Z <0.0.(Z+1)". The worked
// resolution example for github-release versioning (two zero-prefixed
// candidates straddling a patch bump) only makes sense under the lenient
// reading, so that's what's implemented; see DESIGN.md.
func translateCaret(clause string) (string, error) {
	rest := strings.TrimPrefix(clause, "^")
	parts := strings.Split(rest, ".")
	for _, p := range parts {
		if p == "x" || p == "X" || p == "*" {
			return "", fmt.Errorf("caret constraints do not support wildcards: %q", clause)
		}
	}

	var major, minor, patch int
	var err error
	major, err = atoi(parts, 0)
	if err != nil {
		return "", err
	}

	switch len(parts) {
	case 1:
		return fmt.Sprintf(">=%d.0.0, <%d.0.0", major, major+1), nil
	case 2:
		minor, err = atoi(parts, 1)
		if err != nil {
			return "", err
		}
		if major > 0 {
			return fmt.Sprintf(">=%d.%d.0, <%d.0.0", major, minor, major+1), nil
		}
		return fmt.Sprintf(">=%d.%d.0, <%d.%d.0", major, minor, major, minor+1), nil
	case 3:
		minor, err = atoi(parts, 1)
		if err != nil {
			return "", err
		}
		patch, err = atoi(parts, 2)
		if err != nil {
			return "", err
		}
		switch {
		case major > 0:
			return fmt.Sprintf(">=%d.%d.%d, <%d.0.0", major, minor, patch, major+1), nil
		case minor > 0:
			return fmt.Sprintf(">=%d.%d.%d, <%d.%d.0", major, minor, patch, major, minor+1), nil
		default:
			return fmt.Sprintf(">=%d.%d.%d, <%d.0.0", major, minor, patch, major+1), nil
		}
	default:
		return "", fmt.Errorf("unsupported caret constraint: %q", clause)
	}
}

func atoi(parts []string, idx int) (int, error) {
	var n int
	_, err := fmt.Sscanf(parts[idx], "%d", &n)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric component %q: %w", parts[idx], err)
	}
	return n, nil
}

// FilterOptions controls inclusion of non-final versions.
type FilterOptions struct {
	AllowPrerelease bool
	AllowBuild      bool
}

// Resolve picks the highest semver-ordered candidate in `available` that
// satisfies c, after filtering per opts. Unparsable candidate strings are
// skipped rather than erroring, since version lists from external sources
// routinely include non-semver tags.
func Resolve(c Constraint, available []string, opts FilterOptions) (string, error) {
	candidates := make([]*semver.Version, 0, len(available))
	byCanon := map[*semver.Version]string{}

	for _, raw := range available {
		v, err := semver.NewVersion(strings.TrimPrefix(raw, "v"))
		if err != nil {
			continue
		}
		if v.Prerelease() != "" && !opts.AllowPrerelease {
			continue
		}
		if v.Metadata() != "" && !opts.AllowBuild {
			continue
		}
		if c.Sentinel == SentinelNone && !c.semverC.Check(v) {
			continue
		}
		candidates = append(candidates, v)
		byCanon[v] = raw
	}

	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: %q against %d candidates", ErrNoMatch, c.Raw, len(available))
	}

	sort.Sort(semverVersions(candidates))
	best := candidates[len(candidates)-1]
	return byCanon[best], nil
}

type semverVersions []*semver.Version

func (s semverVersions) Len() int           { return len(s) }
func (s semverVersions) Less(i, j int) bool { return s[i].LessThan(s[j]) }
func (s semverVersions) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
