package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by lookups that miss.
var ErrNotFound = errors.New("not found")

// ParseError reports a structurally invalid input.
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func parseErrorf(path, format string, args ...interface{}) error {
	return errors.WithStack(&ParseError{Path: path, Reason: fmt.Sprintf(format, args...)})
}

// IsParseError reports whether err wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
