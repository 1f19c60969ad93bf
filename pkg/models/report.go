package models

import (
	"fmt"
	"strings"
	"time"
)

// RunStatus is the overall verdict of a validation run.
type RunStatus string

const (
	RunPassed  RunStatus = "passed"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// ReportSummary aggregates test results for a run.
type ReportSummary struct {
	Total      int     `json:"total"`
	Passed     int     `json:"passed"`
	Failed     int     `json:"failed"`
	Errors     int     `json:"errors"`
	Skipped    int     `json:"skipped"`
	PassRate   float64 `json:"pass_rate"`
	DurationMs float64 `json:"duration_ms"`
}

// ValidationReport is the final product of an orchestration run. It is
// produced exactly once, never mutated after return, and serializes to
// a self-describing record that report viewers and history stores can
// reconstruct without re-running anything.
type ValidationReport struct {
	ReportID            string        `json:"report_id"`
	Name                string        `json:"name"`
	GeneratedAt         time.Time     `json:"generated_at"`
	OverallStatus       RunStatus     `json:"overall_status"`
	Summary             ReportSummary `json:"summary"`
	TestResults         []TestResult  `json:"test_results"`
	HasCriticalFailures bool          `json:"has_critical_failures"`
}

// ResultsWithStatus returns the results matching the given status.
func (r *ValidationReport) ResultsWithStatus(status TestStatus) []TestResult {
	var out []TestResult
	for _, tr := range r.TestResults {
		if tr.Status == status {
			out = append(out, tr)
		}
	}
	return out
}

// Markdown renders a human-readable summary of the report.
func (r *ValidationReport) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Validation Report: %s\n\n", r.Name)
	fmt.Fprintf(&b, "**Report ID:** %s\n", r.ReportID)
	fmt.Fprintf(&b, "**Generated:** %s\n", r.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "**Overall Status:** %s\n\n", strings.ToUpper(string(r.OverallStatus)))

	b.WriteString("| Metric | Value |\n|--------|-------|\n")
	fmt.Fprintf(&b, "| Total | %d |\n", r.Summary.Total)
	fmt.Fprintf(&b, "| Passed | %d |\n", r.Summary.Passed)
	fmt.Fprintf(&b, "| Failed | %d |\n", r.Summary.Failed)
	fmt.Fprintf(&b, "| Errors | %d |\n", r.Summary.Errors)
	fmt.Fprintf(&b, "| Skipped | %d |\n", r.Summary.Skipped)
	fmt.Fprintf(&b, "| Pass Rate | %.1f%% |\n", r.Summary.PassRate)
	fmt.Fprintf(&b, "| Duration | %.0fms |\n\n", r.Summary.DurationMs)

	for _, status := range []TestStatus{StatusFailed, StatusError, StatusSkipped} {
		results := r.ResultsWithStatus(status)
		if len(results) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", titleCase(string(status)))
		for _, tr := range results {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", tr.Name, tr.Severity, tr.Message)
			if tr.SourceResult != nil {
				fmt.Fprintf(&b, "  - source rows: %d (%.0fms)\n", tr.SourceResult.RowCount, tr.SourceResult.ExecutionTimeMs)
			}
			if tr.TargetResult != nil {
				fmt.Fprintf(&b, "  - target rows: %d (%.0fms)\n", tr.TargetResult.RowCount, tr.TargetResult.ExecutionTimeMs)
			}
		}
		b.WriteString("\n")
	}

	if passed := r.ResultsWithStatus(StatusPassed); len(passed) > 0 {
		b.WriteString("## Passed\n\n")
		for _, tr := range passed {
			fmt.Fprintf(&b, "- **%s**: %s\n", tr.Name, tr.Message)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
