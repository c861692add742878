package generator

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when the backend answered successfully but
// the payload carries no usable HTML.
var ErrMalformedResponse = errors.New("generator: malformed response")

// UpstreamError reports a generation backend that could not be reached or
// answered with a failure.
type UpstreamError struct {
	Backend    string
	StatusCode int // 0 when the request never got a response
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s generator: upstream status %d: %s", e.Backend, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s generator: upstream status %d", e.Backend, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s generator: %v", e.Backend, e.Err)
	default:
		return fmt.Sprintf("%s generator: upstream failure", e.Backend)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsUpstream reports whether err came from the generation backend rather than
// from local processing.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) || errors.Is(err, ErrMalformedResponse)
}
