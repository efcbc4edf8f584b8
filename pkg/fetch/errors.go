package fetch

import (
	"fmt"

	"github.com/duckstack/duckstack/pkg/tabular"
)

// PathError reports a response path that does not lead to a record array.
type PathError = tabular.PathError

// FetchError reports a failed upstream request: transport failure, timeout,
// non-2xx status or a body that is not valid JSON.
type FetchError struct {
	Source     string
	StatusCode int
	Timeout    bool
	Body       string // leading bytes of a non-2xx response
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		msg := fmt.Sprintf("source %q: upstream returned status %d", e.Source, e.StatusCode)
		if e.Body != "" {
			msg += ": " + e.Body
		}
		return msg
	case e.Timeout:
		return fmt.Sprintf("source %q: upstream request timed out", e.Source)
	default:
		return fmt.Sprintf("source %q: %v", e.Source, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }
