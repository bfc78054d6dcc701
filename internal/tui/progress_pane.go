package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/checkout-runner/internal/events"
)

// ProgressPaneModel shows run-wide counts.
type ProgressPaneModel struct {
	total     int
	succeeded int
	failed    int
	running   int
	finished  bool // Bus closed; no more updates
	width     int
	height    int
	focused   bool
}

// NewProgressPaneModel creates a new progress pane model.
func NewProgressPaneModel(total int) ProgressPaneModel {
	return ProgressPaneModel{total: total, running: total}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.RunProgressEvent:
		m.total = msg.Total
		m.succeeded = msg.Succeeded
		m.failed = msg.Failed
		m.running = msg.Running
	case busClosedMsg:
		m.finished = true
	}

	return m, nil
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Run")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Total:     %d\n", m.total))
	b.WriteString(fmt.Sprintf("Ordered:   %s\n", StyleStatusComplete.Render(fmt.Sprint(m.succeeded))))
	b.WriteString(fmt.Sprintf("Running:   %s\n", StyleStatusRunning.Render(fmt.Sprint(m.running))))
	b.WriteString(fmt.Sprintf("Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprint(m.failed))))
	b.WriteString("\n")

	if m.total > 0 {
		barWidth := min(m.width-4, 40)
		okWidth := (m.succeeded * barWidth) / m.total
		failedWidth := (m.failed * barWidth) / m.total
		runningWidth := max(0, barWidth-okWidth-failedWidth)

		bar := StyleStatusComplete.Render(strings.Repeat("=", okWidth))
		bar += StyleStatusFailed.Render(strings.Repeat("!", failedWidth))
		bar += StyleStatusRunning.Render(strings.Repeat("-", runningWidth))

		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n", bar, m.succeeded+m.failed, m.total))
	}

	if m.finished {
		b.WriteString("\n")
		b.WriteString(StyleHelp.Render("All tasks finished. Press q to exit."))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// Finished reports whether the run is over.
func (m ProgressPaneModel) Finished() bool {
	return m.finished
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
