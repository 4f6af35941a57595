package grants

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var tableHeaders = []string{"title", "sponsor", "amount", "similarity", "feasibility", "why_fit", "deadline", "url"}

// Render formats the table for terminal display.
func (t *Table) Render() string {
	if t.Len() == 0 {
		return "no grants to display"
	}

	rows := make([][]string, 0, t.Len())
	for _, item := range t.Items {
		rows = append(rows, []string{
			item.Title,
			item.Sponsor,
			item.Amount,
			fmt.Sprintf("%.3f", item.Similarity),
			string(item.Feasibility),
			item.WhyFit,
			item.Deadline,
			item.URL,
		})
	}

	rendered := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(tableHeaders...).
		Rows(rows...)

	return rendered.String()
}
