package ui

import "github.com/charmbracelet/lipgloss"

// ANSI colors only, so output reads the same on light and dark terminals.
var (
	TitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true).MarginBottom(1)

	UsageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))

	// DescStyle is dimmed so descriptions sit behind names
	DescStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	FlagStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))

	ErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Section renders a titled block of KEY=value lines for terminal output.
func Section(title, body string) string {
	if body == "" {
		body = DescStyle.Render("(empty)") + "\n"
	}
	return TitleStyle.Render(title) + "\n" + body
}

// Failure renders a section that could not be produced.
func Failure(title string, err error) string {
	return TitleStyle.Render(title) + "\n" + ErrorStyle.Render(err.Error()) + "\n"
}
