// Package prompttui holds the full-screen Bubble Tea prompts omni shows on
// a real terminal: today, just the repository trust gate (spec §3 / §7's
// NotTrusted kind), rendered with a small local style set (prompttui is the
// only package that needs a full-screen alt-buffer look; internal/omniterm's
// styles are tuned for single-line status output and stay package-private
// there).
package prompttui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	trustTitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	trustTextStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	trustInfoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	trustSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	trustNormalStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	trustHintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// TrustPromptInfo is the information shown to the user while deciding
// whether to trust a work directory's operation definitions.
type TrustPromptInfo struct {
	RemoteURL      string // canonical remote URL, or empty for a local-only directory
	FirstCommitSHA string // short form of the repo's root commit, for display
}

// TrustPromptResult is the user's decision.
type TrustPromptResult struct {
	Trusted   bool
	Cancelled bool
}

// TrustPromptModel is a Bubble Tea model prompting the user to trust a work
// directory before omni runs any backend step defined in its config.
type TrustPromptModel struct {
	info          TrustPromptInfo
	selectedIndex int // 0 = Yes, 1 = No
	result        *TrustPromptResult
	quitting      bool
}

// NewTrustPromptModel creates a new trust prompt model.
func NewTrustPromptModel(info TrustPromptInfo) *TrustPromptModel {
	return &TrustPromptModel{
		info:          info,
		selectedIndex: 0, // default to "Yes"
	}
}

// Result returns the user's choice once the prompt has completed, or nil
// while still running.
func (m *TrustPromptModel) Result() *TrustPromptResult {
	return m.result
}

// Init implements tea.Model.
func (m *TrustPromptModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *TrustPromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		return m.handleKeyPress(keyMsg)
	}
	return m, nil
}

func (m *TrustPromptModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.result = &TrustPromptResult{Cancelled: true}
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		if m.selectedIndex > 0 {
			m.selectedIndex--
		}

	case "down", "j":
		if m.selectedIndex < 1 {
			m.selectedIndex++
		}

	case "enter":
		// An explicit choice, not a cancellation: Cancelled is reserved
		// for ctrl+c/esc (abort without deciding).
		m.result = &TrustPromptResult{
			Trusted:   m.selectedIndex == 0,
			Cancelled: false,
		}
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View implements tea.Model.
func (m *TrustPromptModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(trustTitleStyle.Render("Work Directory Trust Required"))
	b.WriteString("\n\n")

	b.WriteString(trustTextStyle.Render("omni will run backend steps defined by this directory's config"))
	b.WriteString("\n")
	b.WriteString(trustTextStyle.Render("(.omni.yaml custom commands, install hooks, etc.)."))
	b.WriteString("\n\n")

	if m.info.RemoteURL != "" {
		b.WriteString(trustTextStyle.Render("Repository: "))
		b.WriteString(trustInfoStyle.Render(m.info.RemoteURL))
		b.WriteString("\n")
	}
	b.WriteString(trustTextStyle.Render("First commit: "))
	b.WriteString(trustInfoStyle.Render(m.info.FirstCommitSHA))
	b.WriteString("\n\n")

	options := []string{"Yes, trust this work directory", "No, cancel"}
	for i, option := range options {
		cursor := "  "
		style := trustNormalStyle
		if i == m.selectedIndex {
			cursor = "> "
			style = trustSelectedStyle
		}
		b.WriteString(style.Render(cursor + option))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(trustHintStyle.Render("[up/down to select, enter to confirm, esc to cancel]"))

	return b.String()
}
