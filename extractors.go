package exportwatch

import (
	"math"
	"regexp"
	"strings"
)

// ReadyExtractor decides whether a decoded status response means the export
// is ready.
//
// ReadyExtractor should be a pure function of the response. It is called
// within a panic recovery boundary: a panicking extractor fails the session
// with an error carrying a correlation ID, and the stack trace is logged.
type ReadyExtractor func(resp Response) bool

// DefaultReadyExtractor is used when a [Watch] has no extractor. It reads
// the top-level "ready" field.
var DefaultReadyExtractor = ReadyField("ready")

// ReadyField returns a [ReadyExtractor] that tests the truthiness of a JSON
// field addressed with dot notation.
//
// Truthiness follows the rules the browser-side helper relied on:
//   - booleans are themselves
//   - numbers are truthy unless 0 or NaN
//   - strings are truthy unless empty
//   - objects and arrays are truthy
//   - null and missing fields are falsy
//
// Example:
//
//	// For response: {"export": {"ready": true}}
//	extractor := exportwatch.ReadyField("export.ready")
func ReadyField(path string) ReadyExtractor {
	parts := strings.Split(path, ".")
	return func(resp Response) bool {
		v, ok := lookupPath(resp.Fields, parts)
		if !ok {
			return false
		}
		return truthy(v)
	}
}

// truthy applies JavaScript truthiness to a decoded JSON value.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	default:
		// objects and arrays
		return true
	}
}

// ReadyStatus returns a [ReadyExtractor] that is ready when the string field
// at path equals one of values (case-insensitive).
//
// Example:
//
//	// For response: {"status": "COMPLETE"}
//	extractor := exportwatch.ReadyStatus("status", "complete", "finished")
func ReadyStatus(path string, values ...string) ReadyExtractor {
	parts := strings.Split(path, ".")
	return func(resp Response) bool {
		v, ok := lookupPath(resp.Fields, parts)
		if !ok {
			return false
		}
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, want := range values {
			if strings.EqualFold(s, want) {
				return true
			}
		}
		return false
	}
}

// ReadyRegex returns a [ReadyExtractor] that matches the raw body against a
// regular expression. The first capture group is compared
// (case-insensitively) with readyMatch.
//
// Returns an error if the pattern is invalid or has no capture group.
func ReadyRegex(pattern, readyMatch string) (ReadyExtractor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if re.NumSubexp() < 1 {
		return nil, errInvalidRegex
	}

	return func(resp Response) bool {
		matches := re.FindSubmatch(resp.Body)
		if len(matches) < 2 {
			return false
		}
		return strings.EqualFold(string(matches[1]), readyMatch)
	}, nil
}

// MustReadyRegex is like [ReadyRegex] but panics if the pattern is invalid.
func MustReadyRegex(pattern, readyMatch string) ReadyExtractor {
	extractor, err := ReadyRegex(pattern, readyMatch)
	if err != nil {
		panic("exportwatch: invalid regex pattern: " + err.Error())
	}
	return extractor
}

// ReadyContains returns a [ReadyExtractor] that is ready when the raw body
// contains text (case-insensitive).
func ReadyContains(text string) ReadyExtractor {
	lower := strings.ToLower(text)
	return func(resp Response) bool {
		return strings.Contains(strings.ToLower(string(resp.Body)), lower)
	}
}

// AnyReady returns a [ReadyExtractor] that is ready when any of extractors is.
//
// Example:
//
//	extractor := exportwatch.AnyReady(
//	    exportwatch.ReadyField("ready"),
//	    exportwatch.ReadyStatus("state", "complete"),
//	)
func AnyReady(extractors ...ReadyExtractor) ReadyExtractor {
	return func(resp Response) bool {
		for _, extractor := range extractors {
			if extractor != nil && extractor(resp) {
				return true
			}
		}
		return false
	}
}
