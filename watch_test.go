package exportwatch

import (
	"testing"
	"time"
)

func TestNewWatch_Defaults(t *testing.T) {
	w, err := NewWatch("", statusURL, WithMaxExecution(time.Minute))
	if err != nil {
		t.Fatalf("NewWatch() error = %v", err)
	}

	if w.Name() != statusURL {
		t.Errorf("Name() = %q, want URL fallback", w.Name())
	}
	if w.URL() != statusURL {
		t.Errorf("URL() = %q", w.URL())
	}
	if w.Interval() != DefaultInterval {
		t.Errorf("Interval() = %v, want %v", w.Interval(), DefaultInterval)
	}
	if w.MaxExecution() != time.Minute {
		t.Errorf("MaxExecution() = %v", w.MaxExecution())
	}
	if w.Timeout() != 10*time.Second {
		t.Errorf("Timeout() = %v, want 10s", w.Timeout())
	}
	if w.Extractor() != nil {
		t.Error("Extractor() should be nil when the default is used")
	}
}

func TestNewWatch_Options(t *testing.T) {
	w, err := NewWatch("orders", "https://app.example.com/export/3/status",
		WithInterval(2*time.Second),
		WithMaxExecution(20*time.Second),
		WithTimeout(3*time.Second),
		WithLabels("team", "billing", "format", "xlsx"),
		WithHeaders("Authorization", "Bearer t"),
		WithReadyExtractor(ReadyContains("done")),
	)
	if err != nil {
		t.Fatalf("NewWatch() error = %v", err)
	}

	if w.Name() != "orders" || w.Interval() != 2*time.Second || w.Timeout() != 3*time.Second {
		t.Errorf("watch = %+v", w)
	}
	if w.Labels()["team"] != "billing" || w.Labels()["format"] != "xlsx" {
		t.Errorf("Labels() = %v", w.Labels())
	}
	if w.Headers()["Authorization"] != "Bearer t" {
		t.Errorf("Headers() = %v", w.Headers())
	}
	if w.Extractor() == nil {
		t.Error("Extractor() not set")
	}
}

func TestNewWatch_Errors(t *testing.T) {
	tests := []struct {
		name string
		url  string
		opts []WatchOption
	}{
		{"missing max execution", statusURL, nil},
		{"no scheme", "exports.test/1", []WatchOption{WithMaxExecution(time.Second)}},
		{"bad scheme", "file:///tmp/x", []WatchOption{WithMaxExecution(time.Second)}},
		{"unparseable", "http://[::1", []WatchOption{WithMaxExecution(time.Second)}},
		{"zero interval", statusURL, []WatchOption{WithInterval(0), WithMaxExecution(time.Second)}},
		{"negative max execution", statusURL, []WatchOption{WithMaxExecution(-time.Second)}},
		{"odd labels", statusURL, []WatchOption{WithMaxExecution(time.Second), WithLabels("a")}},
		{"odd headers", statusURL, []WatchOption{WithMaxExecution(time.Second), WithHeaders("a")}},
		{"negative timeout", statusURL, []WatchOption{WithMaxExecution(time.Second), WithTimeout(-1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewWatch("x", tt.url, tt.opts...); err == nil {
				t.Error("NewWatch() expected error, got nil")
			}
		})
	}
}

func TestWatch_Immutability(t *testing.T) {
	w, err := NewWatch("x", statusURL,
		WithMaxExecution(time.Second),
		WithLabels("env", "prod"),
		WithHeaders("X-Token", "a"),
	)
	if err != nil {
		t.Fatalf("NewWatch() error = %v", err)
	}

	w.Labels()["env"] = "changed"
	w.Headers()["X-Token"] = "changed"

	if w.Labels()["env"] != "prod" || w.Headers()["X-Token"] != "a" {
		t.Error("getters must return copies")
	}
}
