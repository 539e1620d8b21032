package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"stgpx/internal/application/backup"
	"stgpx/internal/history"
	"stgpx/internal/scrapers/sportstracker"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return usageError("unknown format %q, expected table, json or yaml", format)
}

func writeStructured(w io.Writer, format string, value any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		err := enc.Encode(value)
		if err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q", format)
}

type activityRow struct {
	Index int    `json:"index" yaml:"index"`
	ID    string `json:"id" yaml:"id"`
	URL   string `json:"url" yaml:"url"`
}

func writeActivities(w io.Writer, format string, refs []sportstracker.ActivityRef) error {
	rows := make([]activityRow, len(refs))
	for i, ref := range refs {
		rows[i] = activityRow{Index: i + 1, ID: ref.ID(), URL: ref.URL}
	}
	if format != formatTable {
		return writeStructured(w, format, rows)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Workout", "URL"})
	for _, r := range rows {
		t.AppendRow(table.Row{r.Index, r.ID, r.URL})
	}
	t.AppendFooter(table.Row{"", "Total", len(rows)})
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}

type outcomeRow struct {
	Index    int    `json:"index" yaml:"index"`
	ID       string `json:"id" yaml:"id"`
	URL      string `json:"url" yaml:"url"`
	Result   string `json:"result" yaml:"result"`
	Duration string `json:"duration" yaml:"duration"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

type downloadReport struct {
	Activities int          `json:"activities" yaml:"activities"`
	Skipped    int          `json:"skipped" yaml:"skipped"`
	Outcomes   []outcomeRow `json:"outcomes" yaml:"outcomes"`
	// activities that were never attempted because the batch aborted
	NotAttempted int      `json:"not_attempted" yaml:"not_attempted"`
	Removed      []string `json:"removed_duplicates,omitempty" yaml:"removed_duplicates,omitempty"`
}

func newDownloadReport(result backup.Result) downloadReport {
	report := downloadReport{
		Activities: len(result.Activities),
		Skipped:    result.Skipped,
		Outcomes:   make([]outcomeRow, len(result.Outcomes)),
	}
	for i, o := range result.Outcomes {
		row := outcomeRow{
			Index:    i + 1,
			ID:       o.Ref.ID(),
			URL:      o.Ref.URL,
			Result:   "ok",
			Duration: o.Duration.Round(time.Millisecond).String(),
		}
		if o.Err != nil {
			row.Result = "failed"
			row.Error = o.Err.Error()
		}
		report.Outcomes[i] = row
	}
	report.NotAttempted = len(result.Activities) - result.Skipped - len(result.Outcomes)
	if result.Cleanup != nil {
		report.Removed = result.Cleanup.Removed
	}
	return report
}

func writeDownloadReport(w io.Writer, format string, result backup.Result) error {
	report := newDownloadReport(result)
	if format != formatTable {
		return writeStructured(w, format, report)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Workout", "Result", "Duration", "Error"})
	for _, r := range report.Outcomes {
		t.AppendRow(table.Row{r.Index, r.ID, r.Result, r.Duration, r.Error})
	}
	t.AppendFooter(table.Row{
		"",
		fmt.Sprintf("%d found", report.Activities),
		fmt.Sprintf("%d failed", result.Failed()),
		fmt.Sprintf("%d skipped", report.Skipped),
		fmt.Sprintf("%d not attempted", report.NotAttempted),
	})
	t.SetStyle(table.StyleRounded)
	t.Render()

	for _, name := range report.Removed {
		fmt.Fprintf(w, "removed duplicate %s\n", name)
	}
	return nil
}

func writeRuns(w io.Writer, format string, runs []history.RunSummary) error {
	if format != formatTable {
		return writeStructured(w, format, runs)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Run", "Mode", "Started", "Duration", "Status", "Activities", "Exported", "Failed", "Error"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.ID[:8],
			r.Mode,
			r.StartedAt.Format(time.DateTime),
			r.Duration.Round(time.Second).String(),
			r.Status,
			r.Activities,
			r.Exported,
			r.Failed,
			r.Error,
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}
