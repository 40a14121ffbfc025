package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ClassifyError maps an execution failure to an ErrorKind. SQLSTATE codes
// are used when the error carries one; other errors fall back to message
// patterns.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorOther
	}
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}

	if code := SQLState(err); code != "" {
		switch code {
		case "42P01", "42703", "3F000", "42883", "42704":
			return ErrorSchemaAbsence
		case "57014":
			return ErrorTimeout
		}
		if strings.HasPrefix(code, "42") || code == "22P02" || code == "22007" || code == "22008" {
			return ErrorSyntax
		}
		return ErrorOther
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "undefinedtable"),
		strings.Contains(msg, "undefinedcolumn"),
		strings.Contains(msg, "no such table"),
		strings.Contains(msg, "no such column"),
		strings.Contains(msg, "unknown column"):
		return ErrorSchemaAbsence
	case strings.Contains(msg, "syntax error"),
		strings.Contains(msg, "invalid input syntax"):
		return ErrorSyntax
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "canceling statement"):
		return ErrorTimeout
	}
	return ErrorOther
}

// SQLState returns the PostgreSQL error code carried by err, if any.
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
