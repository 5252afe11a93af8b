package mssql

import (
	"errors"
	"fmt"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"
)

// ExecErrorKind separates failures the name-equality repair can fix from the rest.
type ExecErrorKind string

const (
	KindInvalidColumn ExecErrorKind = "invalid_column"
	KindSyntax        ExecErrorKind = "syntax"
	KindOther         ExecErrorKind = "other"
)

// SQL Server error numbers.
const (
	errInvalidColumn     = 207
	errSyntaxNear        = 102
	errSyntaxKeyword     = 156
	errUnclosedQuotation = 105
)

// ExecError is a failed query execution.
type ExecError struct {
	Kind  ExecErrorKind
	Query string
	Cause error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("execute query (%s): %v", e.Kind, e.Cause)
}

func (e *ExecError) Unwrap() error {
	return e.Cause
}

// Repairable reports whether the failure may be fixed by rewriting name predicates.
func (e *ExecError) Repairable() bool {
	return e.Kind == KindInvalidColumn || e.Kind == KindSyntax
}

func newExecError(query string, err error) *ExecError {
	return &ExecError{Kind: classifyExecError(err), Query: query, Cause: err}
}

func classifyExecError(err error) ExecErrorKind {
	var sqlErr mssqldb.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Number {
		case errInvalidColumn:
			return KindInvalidColumn
		case errSyntaxNear, errSyntaxKeyword, errUnclosedQuotation:
			return KindSyntax
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "invalid column name"):
		return KindInvalidColumn
	case strings.Contains(msg, "incorrect syntax"), strings.Contains(msg, "unclosed quotation mark"):
		return KindSyntax
	default:
		return KindOther
	}
}
