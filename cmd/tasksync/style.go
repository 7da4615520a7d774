package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mistakeknot/tasksync/internal/core"
	"github.com/mistakeknot/tasksync/internal/push"
)

var (
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	projectStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	pinStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	priorityStyles = map[core.Priority]lipgloss.Style{
		core.PriorityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		core.PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		core.PriorityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
	}
)

func renderNotification(n push.Notification) string {
	if n.Level == push.LevelError {
		return errorStyle.Render("✗ " + n.Text)
	}
	return successStyle.Render("✓ " + n.Text)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func statusMark(s core.Status) string {
	switch s {
	case core.StatusCompleted:
		return "[x]"
	case core.StatusDeleted:
		return "[-]"
	default:
		return "[ ]"
	}
}

func renderTask(t core.Task, pinned bool) string {
	var b strings.Builder
	if pinned {
		b.WriteString(pinStyle.Render("*"))
	} else {
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, " %s %s  %s", statusMark(t.Status), mutedStyle.Render(shortID(t.UUID)), t.Description)
	if t.Project != "" {
		b.WriteString("  " + projectStyle.Render(t.Project))
	}
	if st, ok := priorityStyles[t.Priority]; ok {
		b.WriteString("  " + st.Render(string(t.Priority)))
	}
	if len(t.Tags) > 0 {
		b.WriteString("  " + mutedStyle.Render("+"+strings.Join(t.Tags, " +")))
	}
	if t.Due != "" {
		b.WriteString("  " + mutedStyle.Render("due:"+t.Due))
	}
	return b.String()
}
