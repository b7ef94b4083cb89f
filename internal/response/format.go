package response

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
)

var (
	intentStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	fallbackStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("214")).Padding(0, 1)
	timingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	headingStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("147"))
	moreStyle     = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	flaggedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	meterFill     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	meterOver     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

const meterWidth = 20

// Format renders a View for a terminal of the given width. The fallback badge
// is always part of the header line when the result is degraded.
func Format(v View, width int) string {
	if width <= 20 {
		width = 80
	}
	var lines []string

	header := intentStyle.Render(v.IntentLabel)
	if v.Fallback {
		header += " " + fallbackStyle.Render("⚠ "+FallbackLabel)
	}
	header += " " + timingStyle.Render(v.Timing)
	lines = append(lines, header)

	if v.Reply != "" {
		lines = append(lines, wordwrap.String(v.Reply, width))
	}
	if v.Body != nil {
		if body := formatBody(*v.Body, width); body != "" {
			lines = append(lines, body)
		}
	}
	return strings.Join(lines, "\n")
}

func formatBody(b Body, width int) string {
	var lines []string
	if b.Heading != "" {
		lines = append(lines, headingStyle.Render(b.Heading))
	}
	switch b.Kind {
	case KindBudgetList:
		for _, r := range b.Rows {
			lines = append(lines, formatMeterRow(r, width))
		}
	case KindPrefill, KindStatusSummary:
		for _, r := range b.Rows {
			if len(r.Cells) == 2 {
				lines = append(lines, fmt.Sprintf("%-10s %s", r.Cells[0]+":", r.Cells[1]))
			}
		}
	default:
		for _, r := range b.Rows {
			lines = append(lines, truncate.StringWithTail("• "+strings.Join(r.Cells, "  "), uint(width), "…"))
		}
	}
	if b.More != "" {
		lines = append(lines, moreStyle.Render(b.More))
	}
	if b.Text != "" {
		lines = append(lines, indent.String(wordwrap.String(b.Text, width-2), 2))
	}
	if b.Warning != "" {
		lines = append(lines, warningStyle.Render(wordwrap.String("⚠ "+b.Warning, width)))
	}
	if b.Hint != "" {
		lines = append(lines, moreStyle.Render(b.Hint))
	}
	return strings.Join(lines, "\n")
}

func formatMeterRow(r Row, width int) string {
	filled := min(max(r.Percent, 0), 100) * meterWidth / 100
	style := meterFill
	if r.Flagged {
		style = meterOver
	}
	bar := style.Render(strings.Repeat("█", filled)) + strings.Repeat("░", meterWidth-filled)
	label := strings.Join(r.Cells, "  ")
	if r.Flagged {
		label = flaggedStyle.Render(label + "  (over budget)")
	}
	return truncate.StringWithTail(bar+" "+label, uint(width), "…")
}
