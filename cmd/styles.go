package cmd

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rubiojr/quack/pkg/highlight"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1).
			Margin(0, 0, 1, 0)

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	matchStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("214"))

	urlStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	currentPageStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("86")).
				Underline(true)
)

// highlightTitle renders title with every occurrence of query emphasised.
func highlightTitle(title, query string) string {
	segments, _ := highlight.Split(title, query)
	var b strings.Builder
	for _, seg := range segments {
		if seg.Highlighted {
			b.WriteString(matchStyle.Render(seg.Text))
		} else {
			b.WriteString(resultStyle.Render(seg.Text))
		}
	}
	return b.String()
}
