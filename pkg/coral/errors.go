package coral

import "fmt"

// ProtocolError is a non-2xx response from the Coral server. It usually
// means a malformed request rather than transience, so the client never
// retries it; 5xx retry policy belongs to the caller.
type ProtocolError struct {
	Status int
	Body   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("coral server returned status %d: %s", e.Status, e.Body)
}

// Retryable reports whether the caller may reasonably retry the request
// under its own policy. 4xx means the request shape is wrong; retrying it
// verbatim cannot help.
func (e *ProtocolError) Retryable() bool {
	return e.Status >= 500
}

// TransportError is a connection-level failure (refused, reset, timeout).
// These are the errors the listener's backoff policy retries.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("coral %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
