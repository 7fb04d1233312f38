package prompttui

import (
	"errors"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

// ErrNotInteractive is returned by RunTrustPrompt when stdin is not a
// terminal: a non-interactive caller (CI, an editor task runner, the
// dynamic-env hook's own re-exec) must fail closed rather than block
// indefinitely on a TTY read.
var ErrNotInteractive = errors.New("prompttui: trust prompt requires an interactive terminal")

// ErrCancelled is returned when the user aborts the prompt with ctrl+c/esc.
var ErrCancelled = errors.New("prompttui: trust prompt cancelled")

// ErrDeclined is returned when the user explicitly selects "No".
var ErrDeclined = errors.New("prompttui: trust declined")

// RunTrustPrompt shows the trust prompt and returns the user's decision. It
// fails closed with ErrNotInteractive if stdin is not a terminal, rather
// than ever defaulting to trusted.
func RunTrustPrompt(info TrustPromptInfo) error {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return ErrNotInteractive
	}

	model := NewTrustPromptModel(info)
	program := tea.NewProgram(model)
	if _, err := program.Run(); err != nil {
		return err
	}

	result := model.Result()
	if result == nil || result.Cancelled {
		return ErrCancelled
	}
	if !result.Trusted {
		return ErrDeclined
	}
	return nil
}
