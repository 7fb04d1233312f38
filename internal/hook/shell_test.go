package hook

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseShellRejectsUnknown(t *testing.T) {
	_, err := ParseShell("powershell")
	require.Error(t, err)
}

func TestRenderBashExportAndUnset(t *testing.T) {
	out := Render(ShellBash, []Command{
		{Kind: CmdSet, Name: "GOROOT", Value: "/opt/go"},
		{Kind: CmdUnset, Name: "OLDVAR"},
	})
	require.Equal(t, "export GOROOT='/opt/go'\nunset OLDVAR\n", out)
}

func TestRenderFishSetAndErase(t *testing.T) {
	out := Render(ShellFish, []Command{
		{Kind: CmdSet, Name: "GOROOT", Value: "/opt/go"},
		{Kind: CmdUnset, Name: "OLDVAR"},
	})
	require.Equal(t, "set -gx GOROOT \"/opt/go\"\nset -e OLDVAR\n", out)
}

func TestShellQuotePosixEscapesSingleQuotes(t *testing.T) {
	require.Equal(t, `'it'\''s'`, shellQuotePosix("it's"))
}
