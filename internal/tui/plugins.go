package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/aurras/internal/plugin"
)

// RenderPluginTable draws the loaded plugins as a static table, best
// candidates first within each intent being the registry's concern.
func RenderPluginTable(plugins []*plugin.Descriptor) string {
	rows := make([]table.Row, 0, len(plugins))
	nameW, intentW := len("Plugin"), len("Intents")
	for _, d := range plugins {
		intents := strings.Join(d.AcceptedIntents, ", ")
		nameW = max(nameW, len(d.Name))
		intentW = max(intentW, len(intents))
		rows = append(rows, table.Row{
			d.Name,
			strconv.Itoa(d.Priority),
			string(d.Kind),
			intents,
			d.Version,
		})
	}

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Plugin", Width: nameW},
			{Title: "Prio", Width: 5},
			{Title: "Kind", Width: 8},
			{Title: "Intents", Width: intentW},
			{Title: "Version", Width: 8},
		}),
		table.WithRows(rows),
		table.WithHeight(len(rows)+1),
		table.WithFocused(false),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Cell
	t.SetStyles(s)

	return t.View()
}
