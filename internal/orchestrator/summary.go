package orchestrator

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderSummary writes a table of outcomes to w.
func RenderSummary(w io.Writer, outcomes []Outcome) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Task", "Outcome", "Duration", "Detail"})
	t.SetColumnConfigs([]table.ColumnConfig{{Name: "Detail", WidthMax: 80}})

	succeeded := 0
	for _, o := range outcomes {
		detail := string(o.Order)
		if o.Err != nil {
			detail = o.Err.Error()
		}
		if o.Kind == Succeeded {
			succeeded++
		}
		t.AppendRow(table.Row{o.TaskName, o.Kind, o.Duration.Round(time.Millisecond), detail})
	}

	t.AppendFooter(table.Row{"", "", "succeeded", succeeded})
	t.Render()
}
