package exportwatch

import (
	"net/http"
	"strings"
	"time"

	"github.com/jpalmerr/exportwatch/internal/poller"
)

// State is the lifecycle position of a [Session].
//
// A session moves from [StateIdle] to [StatePolling] when started and then
// to exactly one terminal state. [StateDone] and [StateTimedOut] are the two
// outcomes reported through callbacks; [StateFailed] and [StateCancelled]
// report neither.
type State string

const (
	// StateIdle is a session that has not issued its first poll.
	StateIdle State = State(poller.StateIdle)

	// StatePolling is a session waiting on a response or on its next tick.
	StatePolling State = State(poller.StatePolling)

	// StateDone is a session whose export reported ready.
	StateDone State = State(poller.StateDone)

	// StateTimedOut is a session whose execution budget ran out.
	StateTimedOut State = State(poller.StateTimedOut)

	// StateFailed is a session stopped by an unusable response
	// (network error, non-2xx status, malformed body).
	StateFailed State = State(poller.StateFailed)

	// StateCancelled is a session stopped by [Session.Cancel] or its context.
	StateCancelled State = State(poller.StateCancelled)
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return poller.State(s).Terminal()
}

// Response is one decoded answer from an export status endpoint.
//
// When a session completes, the ready Response is handed to the done
// callback in full, mirroring the wire contract where the whole body is
// passed through.
type Response struct {
	// Ready is the verdict of the session's [ReadyExtractor].
	Ready bool

	// StatusCode is the HTTP status code returned by the endpoint.
	StatusCode int

	// Header holds the response headers.
	Header http.Header

	// Body is the raw response body, limited to 1MB.
	Body []byte

	// Fields is the decoded JSON object. nil when the body is valid JSON
	// but not an object.
	Fields map[string]any

	// Latency is the time taken by the request.
	Latency time.Duration

	// CheckedAt is when the response was evaluated.
	CheckedAt time.Time
}

// Field returns the value at a dot-separated path in the decoded body,
// e.g. "file.url".
func (r Response) Field(path string) (any, bool) {
	return lookupPath(r.Fields, strings.Split(path, "."))
}

// String returns the value at path when it is a string, or "".
func (r Response) String(path string) string {
	v, ok := r.Field(path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// DownloadURL returns the location of the generated file as reported by the
// status endpoint. It checks "url", "download_url" and "file" in that order.
func (r Response) DownloadURL() string {
	for _, key := range []string{"url", "download_url", "file"} {
		if s := r.String(key); s != "" {
			return s
		}
	}
	return ""
}

// lookupPath walks nested JSON objects.
func lookupPath(data map[string]any, parts []string) (any, bool) {
	var current any = data
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
