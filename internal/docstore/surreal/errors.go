package surreal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nfrund/classhub/internal/docstore"
)

// ErrNotConnected is returned when no healthy connection is available.
var ErrNotConnected = errors.New("database not connected")

// DBError is a driver failure annotated with the statement that caused it.
type DBError struct {
	err     error
	context string
	query   string
}

// NewDBError creates a new DBError with the given error and context.
func NewDBError(err error, context string) *DBError {
	return &DBError{err: err, context: context}
}

// WithQuery adds query information to the error.
func (e *DBError) WithQuery(query string) *DBError {
	e.query = query
	return e
}

func (e *DBError) Error() string {
	msg := e.context
	if e.query != "" {
		msg = fmt.Sprintf("%s\nQuery: %s", msg, e.query)
	}
	if e.err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DBError) Unwrap() error {
	return e.err
}

// classify maps SurrealDB failure messages onto docstore sentinels so callers can
// use errors.Is regardless of backend.
func classify(err error, context, query string) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, preconditionMarker):
		err = fmt.Errorf("%w: %v", docstore.ErrPreconditionFailed, err)
	case strings.Contains(msg, "already exists"):
		err = fmt.Errorf("%w: %v", docstore.ErrAlreadyExists, err)
	case strings.Contains(msg, "conflict"):
		// Optimistic transaction lost against a concurrent writer.
		err = fmt.Errorf("%w: %v", docstore.ErrPreconditionFailed, err)
	}
	return NewDBError(err, context).WithQuery(query)
}
