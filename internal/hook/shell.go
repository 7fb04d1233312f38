package hook

import (
	"fmt"
	"strings"
)

// Shell names a supported shell syntax for rendering Commands.
type Shell string

const (
	ShellBash Shell = "bash"
	ShellZsh  Shell = "zsh"
	ShellFish Shell = "fish"
)

// ParseShell validates a `hook env <shell>`/`hook init <shell>` argument.
func ParseShell(name string) (Shell, error) {
	switch Shell(name) {
	case ShellBash, ShellZsh, ShellFish:
		return Shell(name), nil
	default:
		return "", fmt.Errorf("hook: unsupported shell %q", name)
	}
}

// Render renders cmds as shell-native source lines, one per command, in
// order. Output is deterministic given deterministic input (P5).
func Render(shell Shell, cmds []Command) string {
	var b strings.Builder
	for _, c := range cmds {
		b.WriteString(renderOne(shell, c))
		b.WriteByte('\n')
	}
	return b.String()
}

func renderOne(shell Shell, c Command) string {
	switch shell {
	case ShellFish:
		if c.Kind == CmdUnset {
			return fmt.Sprintf("set -e %s", c.Name)
		}
		return fmt.Sprintf("set -gx %s %s", c.Name, shellQuoteFish(c.Value))
	default: // bash, zsh
		if c.Kind == CmdUnset {
			return fmt.Sprintf("unset %s", c.Name)
		}
		return fmt.Sprintf("export %s=%s", c.Name, shellQuotePosix(c.Value))
	}
}

// shellQuotePosix wraps v in single quotes, escaping any embedded single
// quote the POSIX way (close, escaped quote, reopen).
func shellQuotePosix(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}

// shellQuoteFish wraps v in double quotes, escaping embedded quotes and
// backslashes (fish's `set` takes one argument per value, space-separated,
// so unquoted values with spaces would be misparsed as multiple args).
func shellQuoteFish(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}
