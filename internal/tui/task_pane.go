package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/checkout-runner/internal/events"
)

// Task statuses shown in the list.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCrashed   = "crashed"
)

// maxLogLines bounds each task's attempt log; the oldest lines go first.
const maxLogLines = 500

// TaskState is what the dashboard knows about one task.
type TaskState struct {
	Name      string
	Status    string
	Phase     string // Phase of the latest attempt
	Attempts  int    // Attempts across all phases
	Proxy     string
	Log       []string // Most recent maxLogLines lines
	StartTime time.Time
	Duration  time.Duration
}

func (t *TaskState) appendLog(line string) {
	if len(t.Log) >= maxLogLines {
		t.Log = t.Log[len(t.Log)-maxLogLines+1:]
	}
	t.Log = append(t.Log, line)
}

// TaskPaneModel is the task list plus the selected task's attempt log.
type TaskPaneModel struct {
	tasks       map[string]*TaskState // name -> state
	taskOrder   []string              // insertion order for display
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int // for debouncing
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
	}
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		if _, exists := m.tasks[msg.Name]; !exists {
			m.tasks[msg.Name] = &TaskState{
				Name:      msg.Name,
				Status:    StatusRunning,
				StartTime: msg.Timestamp,
				Log: []string{
					fmt.Sprintf("products %v, limit %d", msg.ProductIDs, msg.PriceLimit),
				},
			}
			m.taskOrder = append(m.taskOrder, msg.Name)
			if len(m.taskOrder) == 1 {
				m.selectedIdx = 0
				m.updateViewportContent()
			}
		}

	case events.PhaseAttemptEvent:
		if t, exists := m.tasks[msg.Name]; exists {
			t.Phase = msg.Phase
			t.Attempts++
			t.appendLog(formatAttempt(msg))
			return m, m.scheduleRefresh(msg.Name)
		}

	case events.ProxyRotatedEvent:
		if t, exists := m.tasks[msg.Name]; exists {
			t.Proxy = msg.Proxy
			t.appendLog("  proxy -> " + msg.Proxy)
			return m, m.scheduleRefresh(msg.Name)
		}

	case events.TaskCompletedEvent:
		if t, exists := m.tasks[msg.Name]; exists {
			t.Status = StatusCompleted
			t.Duration = msg.Duration
			t.appendLog(fmt.Sprintf("\n[Order created in %v]\n%s", msg.Duration.Round(time.Millisecond), msg.Order))
			if m.selectedTask() == msg.Name {
				m.updateViewportContent()
			}
		}

	case events.TaskFailedEvent:
		if t, exists := m.tasks[msg.Name]; exists {
			t.Status = StatusFailed
			if msg.Crashed {
				t.Status = StatusCrashed
			}
			t.Duration = msg.Duration
			t.appendLog(fmt.Sprintf("\n[%s: %v]", t.Status, msg.Err))
			if m.selectedTask() == msg.Name {
				m.updateViewportContent()
			}
		}

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// scheduleRefresh debounces viewport refreshes for busy tasks.
func (m *TaskPaneModel) scheduleRefresh(name string) tea.Cmd {
	if m.selectedTask() != name {
		return nil
	}
	m.updateTag++
	tag := m.updateTag
	return tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{tag: tag}
	})
}

func formatAttempt(e events.PhaseAttemptEvent) string {
	result := "ok"
	if e.Err != nil {
		result = e.Err.Error()
	}
	line := fmt.Sprintf("%s #%d (%dms): %s", e.Phase, e.Attempt, e.Duration.Milliseconds(), result)
	if e.Detail != "" {
		line += " [" + e.Detail + "]"
	}
	return line
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 28
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.taskOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, name := range m.taskOrder {
		t := m.tasks[name]
		label := t.Name
		if t.Status == StatusRunning && t.Phase != "" {
			label += " " + t.Phase
		}
		label = truncate(label, width-4)

		line := fmt.Sprintf("%s %s", StatusIcon(t.Status), label)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// truncate shortens s to at most width terminal cells, ending in "...".
func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+3 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case StatusRunning:
		return StyleStatusRunning.Render("●")
	case StatusCompleted:
		return StyleStatusComplete.Render("✓")
	case StatusFailed:
		return StyleStatusFailed.Render("✗")
	case StatusCrashed:
		return StyleStatusCrashed.Render("!")
	default:
		return StyleStatusPending.Render("○")
	}
}

func (m TaskPaneModel) selectedTask() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.taskOrder) {
		return m.taskOrder[m.selectedIdx]
	}
	return ""
}

// Task returns the state of a task by name.
func (m TaskPaneModel) Task(name string) (TaskState, bool) {
	t, ok := m.tasks[name]
	if !ok {
		return TaskState{}, false
	}
	return *t, true
}

func (m *TaskPaneModel) updateViewportContent() {
	t, exists := m.tasks[m.selectedTask()]
	if !exists {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	m.viewport.SetContent(strings.Join(t.Log, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-28-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
