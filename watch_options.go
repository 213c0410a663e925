package exportwatch

import (
	"errors"
	"fmt"
	"time"
)

// watchConfig holds mutable state during watch construction.
type watchConfig struct {
	labels         map[string]string
	headers        map[string]string
	interval       time.Duration
	maxExecution   time.Duration
	requestTimeout time.Duration
	extractor      ReadyExtractor
}

// WatchOption configures a [Watch] during construction.
//
// Options return an error if validation fails.
type WatchOption func(*watchConfig) error

// WithInterval sets the delay between polls.
//
// Each unsuccessful poll consumes one interval of the execution budget.
// Defaults to [DefaultInterval].
//
// Returns an error if the duration is zero or negative.
func WithInterval(d time.Duration) WatchOption {
	return func(cfg *watchConfig) error {
		if d <= 0 {
			return errors.New("interval must be positive")
		}
		cfg.interval = d
		return nil
	}
}

// WithMaxExecution sets the execution budget. The session times out once
// the number of unsuccessful polls multiplied by the interval reaches it.
//
// Returns an error if the duration is zero or negative.
func WithMaxExecution(d time.Duration) WatchOption {
	return func(cfg *watchConfig) error {
		if d <= 0 {
			return errors.New("max execution must be positive")
		}
		cfg.maxExecution = d
		return nil
	}
}

// WithLabels adds metadata labels shown in logs and the status API.
//
// Returns an error if an odd number of arguments is provided.
func WithLabels(keyValues ...string) WatchOption {
	return func(cfg *watchConfig) error {
		return putPairs(cfg.labels, "WithLabels", keyValues)
	}
}

// WithHeaders adds HTTP headers sent with every poll, typically a session
// cookie or an Authorization header.
//
// Example:
//
//	w, err := exportwatch.NewWatch("", url,
//	    exportwatch.WithMaxExecution(time.Minute),
//	    exportwatch.WithHeaders("Cookie", "sessionid=abc"),
//	)
//
// Returns an error if an odd number of arguments is provided.
func WithHeaders(keyValues ...string) WatchOption {
	return func(cfg *watchConfig) error {
		return putPairs(cfg.headers, "WithHeaders", keyValues)
	}
}

// WithTimeout sets the per-request timeout. It bounds a single poll, not the
// session: the execution budget is only checked between polls.
// Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) WatchOption {
	return func(cfg *watchConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithReadyExtractor sets how a response is judged ready.
// If not specified, [DefaultReadyExtractor] is used.
func WithReadyExtractor(e ReadyExtractor) WatchOption {
	return func(cfg *watchConfig) error {
		cfg.extractor = e
		return nil
	}
}

// putPairs copies alternating key-value arguments into dst.
func putPairs(dst map[string]string, option string, keyValues []string) error {
	if len(keyValues)%2 != 0 {
		return fmt.Errorf("%s requires an even number of arguments (key-value pairs)", option)
	}
	for i := 0; i < len(keyValues); i += 2 {
		dst[keyValues[i]] = keyValues[i+1]
	}
	return nil
}
