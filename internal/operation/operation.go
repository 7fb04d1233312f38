// Package operation parses the `up:` list into step.Step values and drives
// the pipeline (spec §4.1): trust gate, sequential up, reverse-order down,
// or-composition, and EnvVersion materialization.
//
// Dispatch follows spec §9's "closed sum type... deserialized by inspecting
// the sole map key": each `up:` entry is a one-key YAML map (or, for `or`,
// a `or:` key holding a list of such maps); the key names the backend kind
// and selects a factory from a package-level registry. Backend packages
// register themselves via blank import + init(), the same self-registration
// pattern cobra commands use.
package operation

import (
	"fmt"

	"github.com/goccy/go-yaml"

	"github.com/omnicli/omni/internal/step"
)

// Factory builds a step.Step from one operation's raw parameter node. The
// node is whatever value followed the sole map key (a scalar, a map, or a
// list, depending on the backend).
type Factory func(raw any) (step.Step, error)

var registry = map[string]Factory{}

// Register adds a backend's factory under kind and all of its aliases.
// Called from each backend package's init().
func Register(factory Factory, kinds ...string) {
	for _, k := range kinds {
		registry[k] = factory
	}
}

// ParseError carries the position of the offending `up:` entry, per spec
// §4.1's "failing fast with a position-annotated error on first invalid
// entry".
type ParseError struct {
	Index int
	Kind  string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("up[%d]: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("up[%d] (%s): %v", e.Index, e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Entry is one parsed `up:` item: its declared kind, position, and backend.
type Entry struct {
	Index int
	Kind  string
	Step  step.Step
}

// Parse turns the raw per-entry maps from config.WorkDirConfig.UpEntries
// into an ordered []Entry, failing on the first invalid one.
func Parse(raw []yaml.MapSlice) ([]Entry, error) {
	entries := make([]Entry, 0, len(raw))
	for i, m := range raw {
		entry, err := parseOne(i, m)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// soleKey extracts the (key, value) pair from a one-entry map, regardless
// of whether the decoder produced it as yaml.MapSlice (the type requested
// for top-level `up:` entries) or as a plain map (what decoding into a
// nested `interface{}`, as `or:`'s children are, produces by default).
func soleKey(raw any) (key string, value any, count int, err error) {
	switch m := raw.(type) {
	case yaml.MapSlice:
		if len(m) != 1 {
			return "", nil, len(m), nil
		}
		k, ok := m[0].Key.(string)
		if !ok {
			return "", nil, 1, fmt.Errorf("operation key must be a string, got %T", m[0].Key)
		}
		return k, m[0].Value, 1, nil
	case map[string]any:
		if len(m) != 1 {
			return "", nil, len(m), nil
		}
		for k, v := range m {
			return k, v, 1, nil
		}
	}
	return "", nil, 0, fmt.Errorf("operation entry must be a one-key map, got %T", raw)
}

func parseOne(index int, m any) (Entry, error) {
	kind, value, count, err := soleKey(m)
	if err != nil {
		return Entry{}, &ParseError{Index: index, Err: err}
	}
	if count != 1 {
		return Entry{}, &ParseError{Index: index, Err: fmt.Errorf("operation map must have exactly one key, got %d", count)}
	}

	if kind == "or" {
		s, err := parseOr(index, value)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Index: index, Kind: kind, Step: s}, nil
	}

	factory, ok := registry[kind]
	if !ok {
		return Entry{}, &ParseError{Index: index, Kind: kind, Err: fmt.Errorf("unrecognized operation kind %q", kind)}
	}

	s, err := factory(value)
	if err != nil {
		return Entry{}, &ParseError{Index: index, Kind: kind, Err: err}
	}
	return Entry{Index: index, Kind: kind, Step: s}, nil
}

func parseOr(index int, raw any) (step.Step, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, &ParseError{Index: index, Kind: "or", Err: fmt.Errorf("or: value must be a list, got %T", raw)}
	}

	children := make([]step.Step, 0, len(list))
	for i, childRaw := range list {
		childEntry, err := parseOne(index, childRaw)
		if err != nil {
			return nil, fmt.Errorf("or[%d]: %w", i, err)
		}
		children = append(children, childEntry.Step)
	}
	return newOrStep(children), nil
}
