package cli

import (
	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
)

// NewTable creates a lipgloss table with the claudia styling.
func NewTable(headers ...string) *ltable.Table {
	return ltable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			style := lipgloss.NewStyle().Padding(0, 1)
			if row%2 == 1 {
				style = style.Background(colorSubtle)
			}
			return style
		})
}

// KeyValueTable renders label/value pairs without a header row.
func KeyValueTable(rows [][2]string) string {
	t := ltable.New().
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return mutedStyle.PaddingRight(2)
			}
			return lipgloss.NewStyle()
		})
	for _, r := range rows {
		t = t.Row(r[0], r[1])
	}
	return t.String()
}
