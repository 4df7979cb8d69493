package llm

import "fmt"

// TransportError represents a failed call to a model provider: the
// endpoint was unreachable, timed out, or returned a non-success status.
// Transport failures count against the caller's retry budget the same
// way malformed responses do.
type TransportError struct {
	// Provider is the name of the provider that encountered the error.
	Provider string

	// Message is a human-readable error message.
	Message string

	// Err is the underlying error (if any).
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s transport error: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s transport error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
