package prompttui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

func TestTrustPromptDefaultsToYes(t *testing.T) {
	m := NewTrustPromptModel(TrustPromptInfo{FirstCommitSHA: "abc123"})
	require.Equal(t, 0, m.selectedIndex)
}

func TestTrustPromptDownThenEnterSelectsNo(t *testing.T) {
	m := NewTrustPromptModel(TrustPromptInfo{FirstCommitSHA: "abc123"})
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	require.NotNil(t, m.Result())
	require.False(t, m.Result().Trusted)
	require.False(t, m.Result().Cancelled)
	require.NotNil(t, cmd)
}

func TestTrustPromptEnterWithoutMovingSelectsYes(t *testing.T) {
	m := NewTrustPromptModel(TrustPromptInfo{FirstCommitSHA: "abc123"})
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	require.NotNil(t, m.Result())
	require.True(t, m.Result().Trusted)
}

func TestTrustPromptEscCancels(t *testing.T) {
	m := NewTrustPromptModel(TrustPromptInfo{FirstCommitSHA: "abc123"})
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})

	require.NotNil(t, m.Result())
	require.True(t, m.Result().Cancelled)
}

func TestTrustPromptDownDoesNotOverflowPastNo(t *testing.T) {
	m := NewTrustPromptModel(TrustPromptInfo{FirstCommitSHA: "abc123"})
	for i := 0; i < 5; i++ {
		_, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	}
	require.Equal(t, 1, m.selectedIndex)
}

func TestTrustPromptViewShowsRemoteURLWhenPresent(t *testing.T) {
	m := NewTrustPromptModel(TrustPromptInfo{RemoteURL: "github.com/example/repo", FirstCommitSHA: "abc123"})
	require.Contains(t, m.View(), "github.com/example/repo")
}

func TestRunTrustPromptFailsClosedWithoutTTY(t *testing.T) {
	err := RunTrustPrompt(TrustPromptInfo{FirstCommitSHA: "abc123"})
	require.ErrorIs(t, err, ErrNotInteractive)
}
