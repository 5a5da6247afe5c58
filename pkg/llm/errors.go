package llm

import "errors"

// Gateway error taxonomy. Callers branch with errors.Is; the wrapped error
// carries provider detail.
var (
	// ErrTransport covers network and client-side failures that happened
	// before an HTTP status was received.
	ErrTransport = errors.New("llm: transport error")

	// ErrHTTP covers non-2xx provider responses and malformed success
	// responses.
	ErrHTTP = errors.New("llm: provider error")

	// ErrNonJSON means the response text contained no parseable JSON object.
	ErrNonJSON = errors.New("llm: response is not valid JSON")

	// ErrSchema means the response JSON did not match the expected shape.
	ErrSchema = errors.New("llm: response does not match schema")

	// ErrTimeout means the call ran out of time waiting on the provider.
	ErrTimeout = errors.New("llm: request timed out")
)
