package exportwatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/jpalmerr/exportwatch/internal/poller"
)

var (
	// ErrTimedOut matches every [*TimeoutError].
	ErrTimedOut = errors.New("export not ready before execution budget was exhausted")

	// ErrCancelled is returned by [Session.Wait] for cancelled sessions.
	ErrCancelled = poller.ErrCancelled
)

// TimeoutError reports that the execution budget was exhausted.
type TimeoutError struct {
	// Elapsed is the consumed budget: interval multiplied by the number of
	// unsuccessful polls.
	Elapsed time.Duration

	// Polls is the number of completed polls.
	Polls int

	// Last is the final not-ready response.
	Last Response
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("export not ready after %s (%d polls)", e.Elapsed, e.Polls)
}

// Is makes errors.Is(err, ErrTimedOut) true.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimedOut
}

// ElapsedSeconds returns Elapsed in seconds.
func (e *TimeoutError) ElapsedSeconds() float64 {
	return e.Elapsed.Seconds()
}

// StatusError reports a non-2xx answer from the status endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// DecodeError reports a status body that is not valid JSON.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "malformed status body: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// maxErrorBody caps the body excerpt kept in a StatusError.
const maxErrorBody = 256

func bodyExcerpt(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}

var errInvalidRegex = errors.New("pattern must contain a capture group")
