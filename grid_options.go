package exportwatch

import (
	"errors"
	"fmt"
	"time"
)

// gridConfig holds configuration during watch grid construction.
type gridConfig struct {
	urlTemplate  string
	dimensions   map[string][]string
	staticLabels map[string]string
	headers      map[string]string
	timeout      time.Duration
	extractor    ReadyExtractor
	interval     time.Duration
	maxExecution time.Duration
}

// GridOption configures watch grid generation for [NewWatchGrid].
type GridOption func(*gridConfig) error

// WithURLTemplate sets the status URL template.
// The template uses Go's text/template syntax with dimension keys as variables.
//
// Example:
//
//	WithURLTemplate("https://app.example.com/export/{{.id}}/status")
//
// Returns an error if the template string is empty.
func WithURLTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		if tmpl == "" {
			return errors.New("URL template required")
		}
		cfg.urlTemplate = tmpl
		return nil
	}
}

// WithDimensions sets the dimension values for cartesian product expansion.
// Each key becomes a template variable.
//
// Example:
//
//	WithDimensions(map[string][]string{
//	    "id":     {"17", "18"},
//	    "format": {"xlsx", "csv"},
//	})
//
// Returns an error if the map is empty, any dimension has no values,
// or any value is an empty string.
func WithDimensions(dims map[string][]string) GridOption {
	return func(cfg *gridConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		for k, vals := range dims {
			if len(vals) == 0 {
				return fmt.Errorf("dimension '%s' has no values", k)
			}
			for i, v := range vals {
				if v == "" {
					return fmt.Errorf("dimension '%s' contains empty value at index %d", k, i)
				}
			}
		}
		cfg.dimensions = dims
		return nil
	}
}

// WithGridLabels adds static labels to all generated watches.
// On collision, static labels take precedence over dimension labels.
func WithGridLabels(keyValues ...string) GridOption {
	return func(cfg *gridConfig) error {
		return putPairs(cfg.staticLabels, "WithGridLabels", keyValues)
	}
}

// WithGridHeaders adds HTTP headers to all generated watches.
func WithGridHeaders(keyValues ...string) GridOption {
	return func(cfg *gridConfig) error {
		return putPairs(cfg.headers, "WithGridHeaders", keyValues)
	}
}

// WithGridTimeout sets the per-request timeout for all generated watches.
// Zero keeps the watch default.
func WithGridTimeout(d time.Duration) GridOption {
	return func(cfg *gridConfig) error {
		if d < 0 {
			return errors.New("timeout cannot be negative")
		}
		cfg.timeout = d
		return nil
	}
}

// WithGridReadyExtractor sets the [ReadyExtractor] for all generated watches.
func WithGridReadyExtractor(e ReadyExtractor) GridOption {
	return func(cfg *gridConfig) error {
		cfg.extractor = e
		return nil
	}
}

// WithGridInterval sets the poll interval for all generated watches.
// Zero keeps [DefaultInterval].
func WithGridInterval(d time.Duration) GridOption {
	return func(cfg *gridConfig) error {
		if d < 0 {
			return errors.New("interval cannot be negative")
		}
		cfg.interval = d
		return nil
	}
}

// WithGridMaxExecution sets the execution budget for all generated watches.
// Required.
func WithGridMaxExecution(d time.Duration) GridOption {
	return func(cfg *gridConfig) error {
		if d <= 0 {
			return errors.New("max execution must be positive")
		}
		cfg.maxExecution = d
		return nil
	}
}
