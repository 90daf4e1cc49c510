package storage

import (
	"github.com/roman-kulish/survey-transfer/internal/flightlog"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// toArgs converts the entry's column values into statement arguments.
func toArgs(e *flightlog.Entry) []any {
	values := e.Values()
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
