package models

import "time"

// Row is one result row keyed by column name.
type Row map[string]any

// QueryExecutionResult is the unit of execution proof: every number in
// a report traces back to one of these. RowCount is the true count of
// rows the query produced; SampleRows is bounded by the executor's
// sample cap and exists for evidence, never for verdicts.
type QueryExecutionResult struct {
	DatabaseID      string    `json:"database_id"`
	SQL             string    `json:"sql"`
	RowCount        int64     `json:"row_count"`
	Columns         []string  `json:"columns,omitempty"`
	SampleRows      []Row     `json:"sample_rows,omitempty"`
	ExecutionTimeMs float64   `json:"execution_time_ms"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	ErrorKind       string    `json:"error_kind,omitempty"`
	ExecutedAt      time.Time `json:"executed_at"`
}

// TestStatus is the outcome of one executed test case.
type TestStatus string

const (
	StatusPassed  TestStatus = "passed"
	StatusFailed  TestStatus = "failed"
	StatusError   TestStatus = "error"
	StatusSkipped TestStatus = "skipped"
)

// TestResult captures one test case's outcome with its evidence.
// Created exactly once per test case per run; immutable afterwards.
type TestResult struct {
	TestCaseID   string                `json:"test_case_id"`
	Name         string                `json:"name"`
	Status       TestStatus            `json:"status"`
	Severity     Severity              `json:"severity"`
	Message      string                `json:"message"`
	SourceResult *QueryExecutionResult `json:"source_result,omitempty"`
	TargetResult *QueryExecutionResult `json:"target_result,omitempty"`
	DurationMs   float64               `json:"duration_ms"`
}
