package exportwatch

import (
	"errors"
	"net/url"
	"time"
)

const (
	// DefaultInterval is the delay between polls when none is configured.
	DefaultInterval = 10 * time.Second

	defaultRequestTimeout = 10 * time.Second
)

// Watch describes one export status URL and how to poll it.
//
// Watch is immutable after creation via [NewWatch]. Getters return copies
// of mutable data. A Watch can be started any number of times with
// [Poller.Start]; each start creates an independent [Session].
type Watch struct {
	name           string
	url            string
	labels         map[string]string
	headers        map[string]string
	interval       time.Duration
	maxExecution   time.Duration
	requestTimeout time.Duration
	extractor      ReadyExtractor
}

// Name returns the display name. Defaults to the URL.
func (w Watch) Name() string {
	return w.name
}

// URL returns the status URL.
func (w Watch) URL() string {
	return w.url
}

// Labels returns a copy of the watch labels.
func (w Watch) Labels() map[string]string {
	return copyMap(w.labels)
}

// Headers returns a copy of the headers sent with every poll.
func (w Watch) Headers() map[string]string {
	return copyMap(w.headers)
}

// Interval returns the delay between polls. Defaults to [DefaultInterval].
func (w Watch) Interval() time.Duration {
	return w.interval
}

// MaxExecution returns the execution budget.
func (w Watch) MaxExecution() time.Duration {
	return w.maxExecution
}

// Timeout returns the per-request timeout. Defaults to 10 seconds.
func (w Watch) Timeout() time.Duration {
	return w.requestTimeout
}

// Extractor returns the [ReadyExtractor], or nil when the default is used.
func (w Watch) Extractor() ReadyExtractor {
	return w.extractor
}

// NewWatch creates a [Watch] for rawURL.
//
// name is a human-readable identifier used in logs and the status API;
// when empty the URL is used. rawURL must be an absolute http or https URL.
// [WithMaxExecution] is required; the interval defaults to 10 seconds.
//
// Example:
//
//	w, err := exportwatch.NewWatch("orders export", "https://app.example.com/export/1/status",
//	    exportwatch.WithInterval(5*time.Second),
//	    exportwatch.WithMaxExecution(30*time.Second),
//	)
func NewWatch(name, rawURL string, opts ...WatchOption) (Watch, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Watch{}, errors.New("invalid URL: " + err.Error())
	}
	if parsedURL.Scheme == "" {
		return Watch{}, errors.New("URL must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return Watch{}, errors.New("URL scheme must be http or https")
	}

	cfg := &watchConfig{
		labels:         make(map[string]string),
		headers:        make(map[string]string),
		interval:       DefaultInterval,
		requestTimeout: defaultRequestTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Watch{}, err
		}
	}

	if cfg.maxExecution <= 0 {
		return Watch{}, errors.New("max execution is required")
	}

	if name == "" {
		name = rawURL
	}

	return Watch{
		name:           name,
		url:            rawURL,
		labels:         cfg.labels,
		headers:        cfg.headers,
		interval:       cfg.interval,
		maxExecution:   cfg.maxExecution,
		requestTimeout: cfg.requestTimeout,
		extractor:      cfg.extractor,
	}, nil
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
