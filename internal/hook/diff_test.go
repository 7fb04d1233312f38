package hook

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeEmitsNothingWhenVersionsMatch(t *testing.T) {
	old := DynEnv{EnvVersionID: "v1", Vars: map[string]string{}}
	desired := Desired{EnvVersionID: "v1"}

	cmds, newDyn := Compute(old, desired, "/usr/bin", "", false)
	require.Nil(t, cmds)
	require.Equal(t, old, newDyn)
}

// TestComputeS3HookDiff reproduces spec.md's S3 "Hook diff" scenario: moving
// into a work directory with a go toolchain contribution, then back out.
func TestComputeS3HookDiff(t *testing.T) {
	empty := Empty()
	desired := Desired{
		EnvVersionID: "h1",
		Paths:        []string{"/home/u/.local/share/omni/mise/installs/go/1.22.0/bin"},
		Vars:         map[string]string{"GOROOT": "/home/u/.local/share/omni/mise/installs/go/1.22.0"},
	}

	cmds, newDyn := Compute(empty, desired, "/usr/bin", "", false)
	require.NotEmpty(t, cmds)

	var sawGoroot, sawPath, sawDynenv bool
	for _, c := range cmds {
		switch c.Name {
		case "GOROOT":
			require.Equal(t, CmdSet, c.Kind)
			require.Equal(t, desired.Vars["GOROOT"], c.Value)
			sawGoroot = true
		case "PATH":
			require.Equal(t, CmdSet, c.Kind)
			require.Contains(t, c.Value, desired.Paths[0])
			require.Contains(t, c.Value, "/usr/bin")
			sawPath = true
		case "__omni_dynenv":
			sawDynenv = true
		}
	}
	require.True(t, sawGoroot)
	require.True(t, sawPath)
	require.True(t, sawDynenv)
	require.Equal(t, "h1", newDyn.EnvVersionID)

	// Moving back to the parent directory: desired becomes empty again.
	backCmds, _ := Compute(newDyn, Desired{}, "", "", false)
	var unsetGoroot, unsetDynenv bool
	for _, c := range backCmds {
		if c.Kind == CmdUnset && c.Name == "GOROOT" {
			unsetGoroot = true
		}
		if c.Kind == CmdUnset && c.Name == "__omni_dynenv" {
			unsetDynenv = true
		}
	}
	require.True(t, unsetGoroot)
	require.True(t, unsetDynenv)
}

func TestComputeStripsShimsDirFromPath(t *testing.T) {
	old := Empty()
	old.BasePath = ""
	desired := Desired{EnvVersionID: "v1", Paths: []string{"/opt/go/bin"}}

	cmds, _ := Compute(old, desired, "/home/u/.omni/shims:/usr/bin", "/home/u/.omni/shims", false)
	for _, c := range cmds {
		if c.Name == "PATH" {
			require.NotContains(t, c.Value, "/home/u/.omni/shims")
		}
	}
}

func TestComputeKeepShimsPreservesShimsDir(t *testing.T) {
	old := Empty()
	desired := Desired{EnvVersionID: "v1", Paths: []string{"/opt/go/bin"}}

	cmds, _ := Compute(old, desired, "/home/u/.omni/shims:/usr/bin", "/home/u/.omni/shims", true)
	var path string
	for _, c := range cmds {
		if c.Name == "PATH" {
			path = c.Value
		}
	}
	require.Contains(t, path, "/home/u/.omni/shims")
}

func TestComputeIsIdempotentOnRepeatedInvocation(t *testing.T) {
	old := Empty()
	desired := Desired{EnvVersionID: "v1", Paths: []string{"/opt/go/bin"}, Vars: map[string]string{"GOROOT": "/opt/go"}}

	_, newDyn := Compute(old, desired, "/usr/bin", "", false)
	again, _ := Compute(newDyn, desired, "/usr/bin", "", false)
	require.Nil(t, again)
}
