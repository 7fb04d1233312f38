package omniterm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStepWritesGlyphAndKind(t *testing.T) {
	var buf bytes.Buffer
	term := New(&buf, false)
	term.Step(StatusOK, "go", "1.22.0")
	require.True(t, strings.Contains(buf.String(), "go"))
	require.True(t, strings.Contains(buf.String(), "1.22.0"))
}

func TestDebugfSilentWithoutVerbose(t *testing.T) {
	var buf bytes.Buffer
	term := New(&buf, false)
	term.Debugf("probing %s", "mise")
	require.Empty(t, buf.String())
}

func TestDebugfWritesWhenVerbose(t *testing.T) {
	var buf bytes.Buffer
	term := New(&buf, true)
	term.Debugf("probing %s", "mise")
	require.Contains(t, buf.String(), "probing mise")
}
