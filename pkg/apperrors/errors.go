package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrNoSchemaAvailable = errors.New("no schema snapshot available")
	ErrNoTestCases       = errors.New("no test cases were generated")
	ErrUnknownDatabase   = errors.New("unknown database id")
)
