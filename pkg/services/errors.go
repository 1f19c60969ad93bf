package services

import "fmt"

// ErrorKind tags failures with the category the report surfaces.
type ErrorKind string

const (
	ErrKindUnsafeStatement  ErrorKind = "UnsafeStatement"
	ErrKindUnknownReference ErrorKind = "UnknownReference"
	ErrKindMissingQuery     ErrorKind = "MissingQuery"
	ErrKindTimeout          ErrorKind = "Timeout"
	ErrKindConnection       ErrorKind = "ConnectionError"
	ErrKindQuery            ErrorKind = "QueryError"
	ErrKindGeneration       ErrorKind = "GenerationError"
	ErrKindComparison       ErrorKind = "ComparisonError"
)

// CompilationError rejects a test case spec before scheduling.
type CompilationError struct {
	Kind   ErrorKind
	Detail string
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// GenerationError marks a failure of the rule-to-test-case step,
// which is fatal to a run.
type GenerationError struct {
	Detail string
	Cause  error
}

func (e *GenerationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", ErrKindGeneration, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", ErrKindGeneration, e.Detail)
}

func (e *GenerationError) Unwrap() error { return e.Cause }
