package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sdgteacher/sdgchat/internal/chat"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	labelStyle   = lipgloss.NewStyle().Bold(true)

	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("135")).Bold(true)
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Italic(true)
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	tourStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
)

func render(style lipgloss.Style, text string) string {
	if noColor {
		return text
	}
	return style.Render(text)
}

func printSuccess(format string, args ...any) {
	fmt.Fprintln(os.Stderr, render(successStyle, "✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, render(errorStyle, "✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(os.Stderr, render(warningStyle, "⚠ "+fmt.Sprintf(format, args...)))
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", render(labelStyle, label+":"), fmt.Sprintf(format, args...))
}

func printStep(format string, args ...any) {
	fmt.Fprintln(os.Stderr, render(stepStyle, "→ "+fmt.Sprintf(format, args...)))
}

// formatEntry renders one transcript entry as a header line and its text.
func formatEntry(e chat.Entry) string {
	var b strings.Builder

	var who string
	switch {
	case e.Failed:
		who = render(failedStyle, "assistant")
	case e.Role == chat.RoleUser:
		who = render(userStyle, "you")
	default:
		who = render(assistantStyle, "assistant")
	}
	b.WriteString(who)

	var meta []string
	if !e.Time.IsZero() {
		meta = append(meta, e.Time.Local().Format("Jan 2 15:04"))
	}
	if e.Mode != "" {
		meta = append(meta, e.Mode)
	}
	if e.Media != "" {
		meta = append(meta, e.Media)
	}
	if e.Locket {
		meta = append(meta, "locket")
	}
	if len(meta) > 0 {
		b.WriteString(" ")
		b.WriteString(render(timestampStyle, "("+strings.Join(meta, ", ")+")"))
	}

	b.WriteString("\n")
	text := e.Text
	if e.Failed {
		text = render(failedStyle, text)
	}
	b.WriteString(text)
	return b.String()
}

func printEntries(entries []chat.Entry) {
	for _, e := range entries {
		fmt.Println(formatEntry(e))
		fmt.Println()
	}
}
