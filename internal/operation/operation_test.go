package operation

import (
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/require"

	"github.com/omnicli/omni/internal/step"
)

func init() {
	Register(func(raw any) (step.Step, error) {
		return &fakeStep{kind: "test-kind"}, nil
	}, "test-kind")
}

func mustParseYAML(t *testing.T, doc string) []yaml.MapSlice {
	t.Helper()
	var raw struct {
		Up []yaml.MapSlice `yaml:"up"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(doc), &raw))
	return raw.Up
}

func TestParseDispatchesOnSoleMapKey(t *testing.T) {
	entries, err := Parse(mustParseYAML(t, `
up:
  - test-kind: 1.2.3
`))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "test-kind", entries[0].Kind)
}

func TestParseUnrecognizedKindIsPositionAnnotated(t *testing.T) {
	_, err := Parse(mustParseYAML(t, `
up:
  - test-kind: 1.0.0
  - nonexistent-backend: true
`))
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, 1, pe.Index)
}

func TestParseEmptyUpConfigIsValid(t *testing.T) {
	entries, err := Parse(mustParseYAML(t, `
defaults:
  cleanup_after: 1h
`))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestParseOrComposesChildren(t *testing.T) {
	entries, err := Parse(mustParseYAML(t, `
up:
  - or:
      - test-kind: 1.0.0
      - test-kind: 2.0.0
`))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "or", entries[0].Kind)
}
