// Package display renders session results for the terminal.
package display

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/reflexcoder/autoagent/internal/agent"
	"github.com/reflexcoder/autoagent/internal/dataflows"
	"github.com/reflexcoder/autoagent/internal/earning"
	"github.com/reflexcoder/autoagent/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		Padding(0, 1).
		MarginBottom(1)

	boxStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#3B82F6")).
		Padding(1, 2).
		Width(72)

	gainStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Bold(true)

	lossStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444")).
		Bold(true)

	dimStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280"))
)

// RenderSession formats a finished session for the terminal.
func RenderSession(result *agent.SessionResult) string {
	if result == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Session %s — %s %s", result.SessionID, result.Mode, result.Symbol)))
	b.WriteString("\n")

	var lines []string
	lines = append(lines, fmt.Sprintf("Episodes:   %d", len(result.Episodes)))
	lines = append(lines, fmt.Sprintf("Total net:  %s", renderNet(result.TotalNet.String())))
	if result.TargetReached {
		lines = append(lines, gainStyle.Render("Earning target reached"))
	}

	if n := len(result.Episodes); n > 0 {
		last := result.Episodes[n-1]
		lines = append(lines, "")
		lines = append(lines, dimStyle.Render(fmt.Sprintf(
			"Last episode: %d steps, reward %.2f, epsilon %.3f (%s)",
			last.Steps, last.Reward, last.Epsilon, last.Strategy)))
		if last.Commentary != "" {
			lines = append(lines, "")
			lines = append(lines, "Advisor: "+last.Commentary)
		}
	}

	b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")
	b.WriteString(RenderReport(result.Report))
	return b.String()
}

// RenderReport formats the per-strategy earnings scorecard.
func RenderReport(report earning.Report) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("%-16s %7s %12s %9s", "STRATEGY", "PLAYS", "NET", "WIN RATE"))
	for _, s := range report.Strategies {
		lines = append(lines, fmt.Sprintf("%-16s %7d %12s %8.0f%%",
			s.Name, s.Plays, renderNet(s.Net.StringFixed(2)), s.WinRate*100))
	}
	lines = append(lines, strings.Repeat("─", 48))
	lines = append(lines, fmt.Sprintf("%-16s %7s %12s", "TOTAL", "", renderNet(report.Total.StringFixed(2))))
	return boxStyle.Render(strings.Join(lines, "\n"))
}

// RenderQuote formats a live quote with its news sentiment score.
// info is optional exchange metadata for broker-listed symbols.
func RenderQuote(q *models.MarketData, sentiment float64, info *dataflows.SymbolInfo) string {
	if q == nil {
		return ""
	}

	title := q.Symbol
	if info != nil && info.Name != "" {
		title = fmt.Sprintf("%s — %s", q.Symbol, info.Name)
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Price:      %s", q.Close.StringFixed(2)))
	lines = append(lines, fmt.Sprintf("Open:       %s", q.Open.StringFixed(2)))
	lines = append(lines, fmt.Sprintf("High/Low:   %s / %s", q.High.StringFixed(2), q.Low.StringFixed(2)))
	lines = append(lines, fmt.Sprintf("Volume:     %d", q.Volume))
	if info != nil {
		lines = append(lines, dimStyle.Render(fmt.Sprintf(
			"Exchange:   %s (%s, lot %d)", info.Exchange, info.Currency, info.LotSize)))
	}
	lines = append(lines, fmt.Sprintf("Sentiment:  %s", renderSentiment(sentiment)))

	return titleStyle.Render(title) + "\n" + boxStyle.Render(strings.Join(lines, "\n"))
}

func renderSentiment(score float64) string {
	s := fmt.Sprintf("%+.2f", score)
	switch {
	case score > 0:
		return gainStyle.Render(s)
	case score < 0:
		return lossStyle.Render(s)
	default:
		return dimStyle.Render(s)
	}
}

func renderNet(s string) string {
	if strings.HasPrefix(s, "-") {
		return lossStyle.Render(s)
	}
	return gainStyle.Render(s)
}
