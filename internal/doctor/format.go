package doctor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme holds the styles of the human report.
type Theme struct {
	OK    lipgloss.Style
	Error lipgloss.Style
	Warn  lipgloss.Style
	Dim   lipgloss.Style
}

// NewDefaultTheme returns the report styles. Colors degrade to plain text
// when the output is not a terminal.
func NewDefaultTheme() Theme {
	return Theme{
		OK:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF00")),
		Error: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF0000")),
		Warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		Dim:   lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
	}
}

// FormatHuman renders r for a terminal.
func FormatHuman(r *Result) string {
	return NewDefaultTheme().Format(r)
}

// Format renders r with the theme's styles.
func (t Theme) Format(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString(t.OK.Render("Configuration valid.") + "\n")
		return b.String()
	case r.Valid:
		b.WriteString(t.OK.Render("Configuration valid"))
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	default:
		b.WriteString(t.Error.Render("Configuration invalid"))
		fmt.Fprintf(&b, " (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		b.WriteString("  " + t.Error.Render("ERROR") + " " + t.issue(e) + "\n")
	}
	for _, w := range r.Warnings {
		b.WriteString("  " + t.Warn.Render("WARN ") + " " + t.issue(w) + "\n")
	}

	return b.String()
}

func (t Theme) issue(i Issue) string {
	category := t.Dim.Render("[" + i.Category + "]")
	if i.Field != "" {
		return fmt.Sprintf("%s %s: %s", category, i.Field, i.Message)
	}
	return fmt.Sprintf("%s %s", category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
