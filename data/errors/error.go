package errors

import (
	"fmt"
)

// sentinel is implemented by errors created with newError, so callers can
// still match the wrapped cause with errors.Is.
type sentinel struct {
	text string
	err  error
}

func (s *sentinel) Error() string {
	return s.text
}

func (s *sentinel) Unwrap() error {
	return s.err
}

func newError(err error, format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if err != nil {
		text = fmt.Sprintf("%s: %v", text, err)
	}

	return &sentinel{text: "vfs: " + text, err: err}
}
