// Package errors defines the typed error kinds the dispatcher distinguishes
// (§7), following the teacher's sentinel-plus-typed-struct idiom so callers
// can use errors.Is against a stable sentinel while still carrying detail.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownModel is the sentinel for UnknownModelError.
	ErrUnknownModel = errors.New("unknown virtual model")
	// ErrPoolEmpty is the sentinel for PoolEmptyError.
	ErrPoolEmpty = errors.New("pool has no endpoints")
	// ErrAllCandidatesFailed is the sentinel for AllCandidatesFailedError.
	ErrAllCandidatesFailed = errors.New("all candidates failed")
	// ErrTranslation is the sentinel for TranslationError.
	ErrTranslation = errors.New("translation error")
	// ErrClientDisconnect is the sentinel for ClientDisconnectError.
	ErrClientDisconnect = errors.New("client disconnected")
)

// UnknownModelError is returned when the requested virtual model name does
// not match any pool mapping.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown virtual model %q", e.Model)
}

func (e *UnknownModelError) Is(target error) bool { return target == ErrUnknownModel }

// PoolEmptyError is returned when a pool has no endpoints at all.
type PoolEmptyError struct {
	Pool string
}

func (e *PoolEmptyError) Error() string {
	return fmt.Sprintf("pool %q has no endpoints", e.Pool)
}

func (e *PoolEmptyError) Is(target error) bool { return target == ErrPoolEmpty }

// CandidateFailure is one endpoint's failure within an exhausted attempt
// sequence, kept for the aggregate error summary.
type CandidateFailure struct {
	Provider   string
	EndpointID int64
	Err        error
}

// AllCandidatesFailedError is returned when every candidate in a pool was
// tried and failed.
type AllCandidatesFailedError struct {
	Pool       string
	Candidates []CandidateFailure
}

func (e *AllCandidatesFailedError) Error() string {
	msg := fmt.Sprintf("pool %q: all %d candidates failed", e.Pool, len(e.Candidates))
	for _, c := range e.Candidates {
		msg += fmt.Sprintf("; %s(#%d): %v", c.Provider, c.EndpointID, c.Err)
	}
	return msg
}

func (e *AllCandidatesFailedError) Is(target error) bool { return target == ErrAllCandidatesFailed }

// UpstreamTransportError wraps a connection-level failure (DNS, TLS,
// connection refused, read/write). Retriable; cools the endpoint.
type UpstreamTransportError struct {
	Provider string
	Cause    error
}

func (e *UpstreamTransportError) Error() string {
	return fmt.Sprintf("upstream transport error from %q: %v", e.Provider, e.Cause)
}

func (e *UpstreamTransportError) Unwrap() error { return e.Cause }

// UpstreamTimeoutError is returned when the pool timeout elapses before the
// first response byte/event. Retriable; cools the endpoint.
type UpstreamTimeoutError struct {
	Provider string
	Timeout  string
}

func (e *UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("upstream timeout from %q after %s", e.Provider, e.Timeout)
}

// UpstreamHTTPError is a non-2xx upstream response. Retriable; cooldown
// length depends on Status (§4.2, §7).
type UpstreamHTTPError struct {
	Provider string
	Status   int
	Body     string
}

func (e *UpstreamHTTPError) Error() string {
	return fmt.Sprintf("upstream %q returned HTTP %d", e.Provider, e.Status)
}

// FullCooldown reports whether this status warrants the pool's full
// cooldown rather than the short cap (§4.2, §7).
func (e *UpstreamHTTPError) FullCooldown() bool {
	switch e.Status {
	case 401, 403, 408, 425, 429:
		return true
	}
	return e.Status >= 500
}

// UpstreamMalformedError is an unparseable non-streaming body, or a
// pre-first-event streaming error. Retriable; short cooldown.
type UpstreamMalformedError struct {
	Provider string
	Cause    error
}

func (e *UpstreamMalformedError) Error() string {
	return fmt.Sprintf("upstream %q returned a malformed response: %v", e.Provider, e.Cause)
}

func (e *UpstreamMalformedError) Unwrap() error { return e.Cause }

// TranslationError means the request cannot be expressed in the target
// wire format. Surfaced as 400 without consuming a candidate.
type TranslationError struct {
	Reason string
}

func (e *TranslationError) Error() string { return fmt.Sprintf("translation error: %s", e.Reason) }

func (e *TranslationError) Is(target error) bool { return target == ErrTranslation }

// ClientDisconnectError marks a request whose client closed the connection
// before the gateway finished. Logged with status 499.
type ClientDisconnectError struct{}

func (e *ClientDisconnectError) Error() string { return "client disconnected" }

func (e *ClientDisconnectError) Is(target error) bool { return target == ErrClientDisconnect }

// StatusCode maps a Dispatch error to the HTTP status the client-facing
// handler should respond with (§7). Unrecognised errors map to 500.
func StatusCode(err error) int {
	switch err.(type) {
	case *UnknownModelError, *TranslationError:
		return 400
	case *PoolEmptyError, *AllCandidatesFailedError:
		return 503
	case *ClientDisconnectError:
		return 499
	default:
		return 500
	}
}
