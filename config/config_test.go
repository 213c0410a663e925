package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestParse_MinimalConfig(t *testing.T) {
	yaml := `
max_execution: 5m
watches:
  - name: Orders
    url: https://app.example.com/export/1/status
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Interval.Duration() != 10*time.Second {
		t.Errorf("Interval = %v, want 10s", cfg.Interval.Duration())
	}
	if cfg.TransportErrors != TransportErrorsFail {
		t.Errorf("TransportErrors = %q, want fail", cfg.TransportErrors)
	}
	if cfg.Listen != "" {
		t.Errorf("Listen = %q, want empty", cfg.Listen)
	}

	w := cfg.Watches[0]
	if w.Interval.Duration() != 10*time.Second || w.MaxExecution.Duration() != 5*time.Minute {
		t.Errorf("global defaults not applied: interval %v, max_execution %v",
			w.Interval.Duration(), w.MaxExecution.Duration())
	}
}

func TestParse_FullWatchConfig(t *testing.T) {
	yaml := `
listen: ":9090"
interval: 30s
max_execution: 10m
transport_errors: not_ready

watches:
  - name: Full
    url: https://app.example.com/export/2/status
    interval: 5s
    max_execution: 1m
    timeout: 3s
    headers:
      Cookie: sessionid=abc
    labels:
      team: billing
    ready: field:export.ready
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Listen != ":9090" || cfg.TransportErrors != TransportErrorsNotReady {
		t.Errorf("cfg = %+v", cfg)
	}

	w := cfg.Watches[0]
	if w.Interval.Duration() != 5*time.Second {
		t.Errorf("Interval = %v, want 5s", w.Interval.Duration())
	}
	if w.MaxExecution.Duration() != time.Minute {
		t.Errorf("MaxExecution = %v, want 1m", w.MaxExecution.Duration())
	}
	if w.Timeout.Duration() != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", w.Timeout.Duration())
	}
	if w.Headers["Cookie"] != "sessionid=abc" || w.Labels["team"] != "billing" {
		t.Errorf("headers %v labels %v", w.Headers, w.Labels)
	}
	if w.Ready.Type != "field" || w.Ready.Path != "export.ready" {
		t.Errorf("Ready = %+v", w.Ready)
	}
}

func TestParse_GridConfig(t *testing.T) {
	yaml := `
max_execution: 5m
grids:
  - name: Monthly
    url_template: "https://app.example.com/export/{{.id}}/status"
    dimensions:
      id: ["41", "42"]
    interval: 2s
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	g := cfg.Grids[0]
	if g.Name != "Monthly" || len(g.Dimensions["id"]) != 2 {
		t.Errorf("grid = %+v", g)
	}
	if g.Interval.Duration() != 2*time.Second || g.MaxExecution.Duration() != 5*time.Minute {
		t.Errorf("grid timing = %v/%v", g.Interval.Duration(), g.MaxExecution.Duration())
	}
}

func TestParse_ReadyShorthand(t *testing.T) {
	tests := []struct {
		name  string
		ready string
		want  ReadyConfig
	}{
		{"empty", `""`, ReadyConfig{}},
		{"default", "default", ReadyConfig{Type: "default"}},
		{"field", "field:ready", ReadyConfig{Type: "field", Path: "ready"}},
		{"nested field", "field:export.ready", ReadyConfig{Type: "field", Path: "export.ready"}},
		{"status single", "status:state=complete", ReadyConfig{Type: "status", Path: "state", Values: []string{"complete"}}},
		{"status multiple", "status:state=complete|done", ReadyConfig{Type: "status", Path: "state", Values: []string{"complete", "done"}}},
		{"contains", "contains:Export complete", ReadyConfig{Type: "contains", Text: "Export complete"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yaml := `
max_execution: 1m
watches:
  - name: W
    url: https://example.com
    ready: ` + tt.ready + "\n"
			cfg, err := Parse([]byte(yaml))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := cfg.Watches[0].Ready; !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Ready = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParse_ReadyShorthandErrors(t *testing.T) {
	for _, ready := range []string{"bogus", "http", "json:status", "status:state"} {
		t.Run(ready, func(t *testing.T) {
			yaml := `
max_execution: 1m
watches:
  - name: W
    url: https://example.com
    ready: ` + ready + "\n"
			if _, err := Parse([]byte(yaml)); err == nil {
				t.Errorf("Parse() with ready %q expected error", ready)
			}
		})
	}
}

func TestParse_ReadyStructured(t *testing.T) {
	yaml := `
max_execution: 1m
watches:
  - name: W
    url: https://example.com
    ready:
      type: regex
      pattern: 'state=(\w+)'
      match: done
  - name: S
    url: https://example.com/s
    ready:
      type: status
      path: state
      values: [complete, finished]
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := ReadyConfig{Type: "regex", Pattern: `state=(\w+)`, Match: "done"}
	if got := cfg.Watches[0].Ready; !reflect.DeepEqual(got, want) {
		t.Errorf("Ready = %+v, want %+v", got, want)
	}
	if got := cfg.Watches[1].Ready.Values; !reflect.DeepEqual(got, []string{"complete", "finished"}) {
		t.Errorf("Values = %v", got)
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("EXPORT_HOST", "app.internal")
	t.Setenv("APP_SESSION", "s3cret")
	t.Setenv("PROXY_ADDR", "127.0.0.1:1080")

	yaml := `
max_execution: 1m
proxy: socks5://${PROXY_ADDR}
watches:
  - name: W
    url: https://${EXPORT_HOST}/export/${EXPORT_ID:-7}/status
    headers:
      Cookie: sessionid=${APP_SESSION}
grids:
  - name: G
    url_template: "https://${EXPORT_HOST}/export/{{.id}}/status"
    dimensions:
      id: ["1"]
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Watches[0].URL != "https://app.internal/export/7/status" {
		t.Errorf("URL = %q", cfg.Watches[0].URL)
	}
	if cfg.Watches[0].Headers["Cookie"] != "sessionid=s3cret" {
		t.Errorf("Cookie = %q", cfg.Watches[0].Headers["Cookie"])
	}
	if cfg.Proxy != "socks5://127.0.0.1:1080" {
		t.Errorf("Proxy = %q", cfg.Proxy)
	}
	if cfg.Grids[0].URLTemplate != "https://app.internal/export/{{.id}}/status" {
		t.Errorf("URLTemplate = %q", cfg.Grids[0].URLTemplate)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		wantErrLike string
	}{
		{
			name:        "no watches or grids",
			yaml:        `max_execution: 1m`,
			wantErrLike: "at least one watch or grid",
		},
		{
			name: "watch missing name",
			yaml: `
max_execution: 1m
watches:
  - url: https://example.com
`,
			wantErrLike: "name is required",
		},
		{
			name: "watch missing url",
			yaml: `
max_execution: 1m
watches:
  - name: W
`,
			wantErrLike: "url is required",
		},
		{
			name: "duplicate names",
			yaml: `
max_execution: 1m
watches:
  - name: W
    url: https://example.com/1
  - name: W
    url: https://example.com/2
`,
			wantErrLike: "duplicate watch name",
		},
		{
			name: "missing max_execution",
			yaml: `
watches:
  - name: W
    url: https://example.com
`,
			wantErrLike: "max_execution is required",
		},
		{
			name: "bad scheme",
			yaml: `
max_execution: 1m
watches:
  - name: W
    url: ftp://example.com
`,
			wantErrLike: "scheme must be http or https",
		},
		{
			name: "no scheme",
			yaml: `
max_execution: 1m
watches:
  - name: W
    url: example.com/status
`,
			wantErrLike: "must have a scheme",
		},
		{
			name: "interval too small",
			yaml: `
max_execution: 1m
watches:
  - name: W
    url: https://example.com
    interval: 100ms
`,
			wantErrLike: "interval must be at least 1s",
		},
		{
			name: "global interval too small",
			yaml: `
interval: 500ms
max_execution: 1m
watches:
  - name: W
    url: https://example.com
`,
			wantErrLike: "interval must be at least 1s",
		},
		{
			name: "interval too large",
			yaml: `
max_execution: 3h
watches:
  - name: W
    url: https://example.com
    interval: 2h
`,
			wantErrLike: "must not exceed 1h",
		},
		{
			name: "timeout too small",
			yaml: `
max_execution: 1m
watches:
  - name: W
    url: https://example.com
    timeout: 10ms
`,
			wantErrLike: "timeout must be at least 1s",
		},
		{
			name: "unknown transport_errors",
			yaml: `
max_execution: 1m
transport_errors: retry
watches:
  - name: W
    url: https://example.com
`,
			wantErrLike: "transport_errors must be",
		},
		{
			name: "regex without capture group",
			yaml: `
max_execution: 1m
watches:
  - name: W
    url: https://example.com
    ready:
      type: regex
      pattern: 'done'
      match: done
`,
			wantErrLike: "capture group",
		},
		{
			name: "status without values",
			yaml: `
max_execution: 1m
watches:
  - name: W
    url: https://example.com
    ready:
      type: status
      path: state
`,
			wantErrLike: "requires a path and values",
		},
		{
			name: "grid missing template",
			yaml: `
max_execution: 1m
grids:
  - name: G
    dimensions:
      id: ["1"]
`,
			wantErrLike: "url_template is required",
		},
		{
			name: "grid invalid template",
			yaml: `
max_execution: 1m
grids:
  - name: G
    url_template: "https://example.com/{{.id"
    dimensions:
      id: ["1"]
`,
			wantErrLike: "invalid url_template",
		},
		{
			name: "grid without dimensions",
			yaml: `
max_execution: 1m
grids:
  - name: G
    url_template: "https://example.com/{{.id}}"
`,
			wantErrLike: "at least one dimension",
		},
		{
			name: "grid duplicate dimension value",
			yaml: `
max_execution: 1m
grids:
  - name: G
    url_template: "https://example.com/{{.id}}"
    dimensions:
      id: ["1", "1"]
`,
			wantErrLike: "duplicate value",
		},
		{
			name: "missing env var",
			yaml: `
max_execution: 1m
watches:
  - name: W
    url: https://${EXPORTWATCH_TEST_UNSET_HOST}/status
`,
			wantErrLike: "is not set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErrLike) {
				t.Errorf("Parse() error = %v, want error containing %q", err, tt.wantErrLike)
			}
		})
	}
}

func TestParse_ErrorContext(t *testing.T) {
	yaml := `
max_execution: 1m
watches:
  - name: First
    url: https://example.com/1
  - name: Second
    url: https://example.com/2
    interval: 1ms
`
	_, err := Parse([]byte(yaml))
	if err == nil || !strings.Contains(err.Error(), "watches[1] (Second)") {
		t.Errorf("Parse() error = %v, want indexed context", err)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("watches: [")); err == nil {
		t.Error("Parse() expected error for invalid YAML")
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	yaml := `
max_execution: forever
watches:
  - name: W
    url: https://example.com
`
	_, err := Parse([]byte(yaml))
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("Parse() error = %v, want invalid duration", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watches.yaml")
	data := []byte(`
max_execution: 1m
watches:
  - name: W
    url: https://example.com
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Watches) != 1 {
		t.Errorf("len(Watches) = %d, want 1", len(cfg.Watches))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() on missing file expected error")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "value")
	t.Setenv("EMPTY_VAR", "") // set but empty

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"no vars", "plain text", "plain text", false},
		{"simple var", "${TEST_VAR}", "value", false},
		{"var in text", "prefix ${TEST_VAR} suffix", "prefix value suffix", false},
		{"multiple vars", "${TEST_VAR}-${TEST_VAR}", "value-value", false},
		{"with default (var set)", "${TEST_VAR:-default}", "value", false},
		{"with default (var unset)", "${UNSET:-default}", "default", false},
		{"missing required", "${MISSING}", "", true},
		{"empty default (var unset)", "${UNSET:-}", "", false},
		{"set but empty var", "${EMPTY_VAR}", "", false},
		{"set but empty with default", "${EMPTY_VAR:-fallback}", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// UNSET and MISSING are expected to not exist in environment
			got, err := expandEnvVars(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expandEnvVars() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expandEnvVars() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.want)
			}
		})
	}
}
