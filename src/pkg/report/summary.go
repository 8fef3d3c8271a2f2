package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gh-nvat/layoutchk/src/pkg/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// WriteSummary prints the per-platform candidate and completion counts.
func WriteSummary(w io.Writer, run *models.RunReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Rebaseline summary")
	t.AppendHeader(table.Row{"Platform", "State", "Revision", "Candidates", "Rebaselined", "Denied", "Incomplete"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Candidates", Align: text.AlignRight},
		{Name: "Rebaselined", Align: text.AlignRight},
		{Name: "Denied", Align: text.AlignRight},
		{Name: "Incomplete", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, p := range run.Platforms {
		state := string(p.State)
		if p.Error != "" {
			state += ": " + p.Error
		}
		t.AppendRow(table.Row{
			p.Platform,
			state,
			p.Revision,
			len(p.Candidates),
			len(p.Rebaselined),
			len(p.Denied),
			strings.Join(p.Incomplete(), "\n"),
		})
	}
	t.Render()
}

// Classification is one row of the classify command output.
type Classification struct {
	Test     string   `json:"test"`
	Result   string   `json:"result,omitempty"`
	Failures []string `json:"failures"`
	Error    string   `json:"error,omitempty"`
}

// WriteClassifications prints classify results as a table.
func WriteClassifications(w io.Writer, rows []Classification) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Test", "Result", "Failures"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Failures", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, r := range rows {
		result := r.Result
		if r.Error != "" {
			result = "ERROR: " + r.Error
		}
		t.AppendRow(table.Row{r.Test, result, strings.Join(r.Failures, ", ")})
	}
	t.Render()
}

// WriteJSON writes v as indented JSON to path, creating parent directories.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	logger.WithField("path", path).Info("Exported report")
	return nil
}

// WriteSummaryMarkdown renders the summary as a markdown table.
func WriteSummaryMarkdown(w io.Writer, run *models.RunReport) {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Platform", "State", "Revision", "Candidates", "Rebaselined", "Incomplete"})
	for _, p := range run.Platforms {
		t.AppendRow(table.Row{p.Platform, p.State, p.Revision, len(p.Candidates), len(p.Rebaselined), strings.Join(p.Incomplete(), "<br>")})
	}
	fmt.Fprintf(w, "## Rebaseline %s\n\n%s\n", run.RunID, t.RenderMarkdown())
}
