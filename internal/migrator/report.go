package migrator

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const (
	ExitOK      = 0
	ExitFatal   = 1
	ExitPartial = 2
)

type Report struct {
	Items    []Item
	Duration time.Duration
}

func (r *Report) Succeeded() []Item {
	var out []Item
	for _, i := range r.Items {
		if !i.Failed() {
			out = append(out, i)
		}
	}
	return out
}

func (r *Report) Failed() []Item {
	var out []Item
	for _, i := range r.Items {
		if i.Failed() {
			out = append(out, i)
		}
	}
	return out
}

// ExitCode is ExitOK when no item failed and ExitPartial otherwise.
func (r *Report) ExitCode() int {
	if len(r.Failed()) > 0 {
		return ExitPartial
	}
	return ExitOK
}

// Render writes the succeeded and failed items as two tables followed by a
// summary line.
func (r *Report) Render(w io.Writer) error {
	succeeded := newTable(w, "Succeeded", table.Row{"Source URL", "Destination URL", "External ID", "State"})
	for _, i := range r.Succeeded() {
		succeeded.AppendRow(table.Row{i.Asset.SourceURL, i.Asset.DestinationURL, i.Asset.ExternalID, i.State()})
	}
	succeeded.Render()

	failed := newTable(w, "Failed", table.Row{"Source URL", "State", "Cause"})
	for _, i := range r.Failed() {
		cause := i.Err
		if cause == nil {
			cause = i.Inconsistent
		}
		failed.AppendRow(table.Row{i.Asset.SourceURL, i.State(), cause.Error()})
	}
	failed.Render()

	_, err := fmt.Fprintf(w, "discovered: %d, succeeded: %d, failed: %d, duration: %s\n",
		len(r.Items), len(r.Succeeded()), len(r.Failed()), r.Duration.Round(time.Millisecond))
	return err
}

func newTable(w io.Writer, title string, header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(title)
	tw.AppendHeader(header)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AlignHeader: text.AlignLeft, WidthMax: 80},
	})
	return tw
}
