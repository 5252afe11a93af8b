package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrExportCapacity    = errors.New("export capacity reached")
	ErrStatementRejected = errors.New("statement rejected")
	ErrEmptyCompletion   = errors.New("completion returned no content")
	ErrNoJSON            = errors.New("no JSON object in completion")
	ErrCircuitOpen       = errors.New("circuit breaker open")
)
