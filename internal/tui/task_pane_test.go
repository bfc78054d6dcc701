package tui

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/checkout-runner/internal/events"
)

func TestTaskPane_LogIsBounded(t *testing.T) {
	m := NewTaskPaneModel()
	m, _ = m.Update(events.TaskStartedEvent{Name: "a"})

	const extra = 25
	for i := 1; i <= maxLogLines+extra; i++ {
		m, _ = m.Update(events.PhaseAttemptEvent{
			Name:    "a",
			Phase:   "price_gate",
			Attempt: i,
			Err:     errors.New("price too high"),
		})
	}

	state, ok := m.Task("a")
	if !ok {
		t.Fatal("task a not tracked")
	}
	if len(state.Log) != maxLogLines {
		t.Fatalf("expected %d log lines, got %d", maxLogLines, len(state.Log))
	}
	if state.Attempts != maxLogLines+extra {
		t.Errorf("expected %d attempts, got %d", maxLogLines+extra, state.Attempts)
	}
	last := fmt.Sprintf("price_gate #%d ", maxLogLines+extra)
	if !strings.HasPrefix(state.Log[len(state.Log)-1], last) {
		t.Errorf("expected newest line last, got %q", state.Log[len(state.Log)-1])
	}
	if strings.HasPrefix(state.Log[0], "products") {
		t.Error("expected the oldest lines to be dropped")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
	}{
		{"ascii fits", "alpha", 24},
		{"ascii long", "alpha-beta-gamma-delta-epsilon price_gate", 24},
		{"cyrillic", "заказ-для-клиента-номер-один price_gate", 24},
		{"wide", "注文タスク注文タスク注文タスク", 24},
		{"tiny", "заказ", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.width)
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q) produced invalid UTF-8 %q", tt.in, got)
			}
			if w := lipgloss.Width(got); w > tt.width {
				t.Errorf("truncate(%q) width %d exceeds %d", tt.in, w, tt.width)
			}
			if lipgloss.Width(tt.in) <= tt.width && got != tt.in {
				t.Errorf("truncate(%q) changed a label that fits: %q", tt.in, got)
			}
		})
	}
}

func TestTaskPane_RendersMultiByteNames(t *testing.T) {
	m := NewTaskPaneModel()
	m.SetSize(100, 20)
	name := "заказ-для-клиента-номер-один"
	m, _ = m.Update(events.TaskStartedEvent{Name: name})
	m, _ = m.Update(events.PhaseAttemptEvent{Name: name, Phase: "cart_fill", Attempt: 1})

	view := m.View()
	if !utf8.ValidString(view) {
		t.Fatal("task list rendered invalid UTF-8")
	}
	if !strings.Contains(view, "заказ") {
		t.Errorf("task list missing the name prefix:\n%s", view)
	}
}
