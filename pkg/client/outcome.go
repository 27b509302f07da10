package client

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Sternrassler/graph-harvester/pkg/record"
)

// OutcomeKind tags the result of a single request attempt.
type OutcomeKind int

const (
	// OutcomeOK carries a 2xx response.
	OutcomeOK OutcomeKind = iota

	// OutcomeRetriable means the server throttled the request; reissue it
	// after Wait.
	OutcomeRetriable

	// OutcomeFatal carries an error that must not be retried.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeRetriable:
		return "retriable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of one attempt. Throttling is an expected
// result, not an error.
type Outcome struct {
	Kind     OutcomeKind
	Response *Response
	Wait     time.Duration
	Err      error
}

// OK wraps a successful response.
func OK(resp *Response) Outcome {
	return Outcome{Kind: OutcomeOK, Response: resp}
}

// Retriable signals throttling. resp may be nil.
func Retriable(wait time.Duration, resp *Response) Outcome {
	return Outcome{Kind: OutcomeRetriable, Wait: wait, Response: resp}
}

// Fatal wraps a non-retriable error.
func Fatal(err error) Outcome {
	return Outcome{Kind: OutcomeFatal, Err: err}
}

// Response is a fully read HTTP response.
type Response struct {
	Method     string
	URL        string // decoded, for logs and diagnostics
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the body into v, keeping numbers as json.Number.
func (r *Response) Decode(v any) error {
	return record.Unmarshal(r.Body, v)
}

// JSON returns the body as raw JSON.
func (r *Response) JSON() json.RawMessage {
	return json.RawMessage(r.Body)
}
