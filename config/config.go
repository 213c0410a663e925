// Package config provides YAML configuration parsing for exportwatch jobs.
//
// A job file lists the exports the CLI's run command watches concurrently,
// as an alternative to driving the SDK programmatically.
//
// Example configuration:
//
//	listen: ":9090"
//	interval: 5s
//	max_execution: 10m
//
//	watches:
//	  - name: Orders export
//	    url: https://app.example.com/export/17/status
//	    headers:
//	      Cookie: "sessionid=${APP_SESSION}"
//	    ready: field:ready
//
//	grids:
//	  - name: Monthly report
//	    url_template: "https://app.example.com/export/{{.id}}/status"
//	    dimensions:
//	      id: ["41", "42"]
//	    ready: status:state=complete|done
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// minInterval is the minimum allowed poll interval for job files.
// This prevents accidental hammering of export endpoints.
const minInterval = 1 * time.Second

const (
	// TransportErrorsFail ends a session on an unusable response.
	TransportErrorsFail = "fail"

	// TransportErrorsNotReady counts an unusable response as not ready.
	TransportErrorsNotReady = "not_ready"
)

// Config is the root configuration structure of a job file.
//
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Listen is the address of the status API (e.g. ":9090").
	// Empty disables it.
	Listen string `yaml:"listen"`

	// Interval is the default delay between polls. Defaults to 10s.
	Interval Duration `yaml:"interval"`

	// MaxExecution is the default execution budget. Required unless
	// every watch and grid sets its own.
	MaxExecution Duration `yaml:"max_execution"`

	// Proxy routes all requests through a socks5, http or https proxy.
	// Supports environment variable substitution.
	Proxy string `yaml:"proxy"`

	// TransportErrors is "fail" (default) or "not_ready".
	TransportErrors string `yaml:"transport_errors"`

	// Watches defines individual export status URLs.
	Watches []WatchConfig `yaml:"watches"`

	// Grids defines watch batches that expand via cartesian product.
	Grids []GridConfig `yaml:"grids"`
}

// WatchConfig defines a single export to watch.
type WatchConfig struct {
	// Name is the display name used in logs and the status API.
	Name string `yaml:"name"`

	// URL is the export status URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Interval overrides the global interval.
	Interval Duration `yaml:"interval"`

	// MaxExecution overrides the global execution budget.
	MaxExecution Duration `yaml:"max_execution"`

	// Timeout is the per-request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Headers are sent with each poll. Values support environment
	// variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Labels are metadata key-value pairs shown in the status API.
	Labels map[string]string `yaml:"labels"`

	// Ready determines when a response means the export is ready.
	Ready ReadyConfig `yaml:"ready"`
}

// GridConfig defines a batch of watches expanded via cartesian product.
//
// For example, with dimensions {id: [41, 42], format: [csv, xlsx]}, the
// grid expands to 4 watches.
type GridConfig struct {
	// Name is the base name for generated watches.
	Name string `yaml:"name"`

	// URLTemplate is a Go template for generating status URLs.
	// Dimension keys are available as template variables: {{.id}}
	URLTemplate string `yaml:"url_template"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`

	Interval     Duration          `yaml:"interval"`
	MaxExecution Duration          `yaml:"max_execution"`
	Timeout      Duration          `yaml:"timeout"`
	Headers      map[string]string `yaml:"headers"`
	Labels       map[string]string `yaml:"labels"`
	Ready        ReadyConfig       `yaml:"ready"`
}

// ReadyConfig specifies how to decide that a status response is ready.
//
// It supports two formats in YAML:
//
// Shorthand string:
//
//	ready: default
//	ready: field:export.ready
//	ready: status:state=complete|done
//	ready: contains:Export complete
//
// Structured object:
//
//	ready:
//	  type: regex
//	  pattern: 'state=(\w+)'
//	  match: done
type ReadyConfig struct {
	// Type is "default", "field", "status", "contains" or "regex".
	Type string

	// Path is the JSON field path (field, status).
	Path string

	// Values are the accepted field values (status).
	Values []string

	// Text is the substring to search for (contains).
	Text string

	// Pattern and Match configure a regex with one capture group.
	Pattern string
	Match   string
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for ReadyConfig.
func (r *ReadyConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		return r.parseShorthand(s)

	case yaml.MappingNode:
		// temporary struct to avoid infinite recursion
		var raw struct {
			Type    string   `yaml:"type"`
			Path    string   `yaml:"path"`
			Values  []string `yaml:"values"`
			Text    string   `yaml:"text"`
			Pattern string   `yaml:"pattern"`
			Match   string   `yaml:"match"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		*r = ReadyConfig(raw)
		return nil
	}

	return fmt.Errorf("ready must be a string or object, got %v", node.Kind)
}

// ParseReady parses a ready check written in shorthand syntax and validates it.
func ParseReady(s string) (ReadyConfig, error) {
	var r ReadyConfig
	if err := r.parseShorthand(s); err != nil {
		return ReadyConfig{}, err
	}
	if err := validateReady(&r, "ready"); err != nil {
		return ReadyConfig{}, err
	}
	return r, nil
}

// parseShorthand parses ready shorthand syntax.
//
// Supported formats:
//   - "default" → top-level ready field
//   - "field:path" → truthiness of a JSON field
//   - "status:path=v1|v2" → JSON string field equals one of the values
//   - "contains:text" → body contains text
func (r *ReadyConfig) parseShorthand(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if s == "default" {
		r.Type = s
		return nil
	}

	kind, value, ok := strings.Cut(s, ":")
	if !ok {
		return fmt.Errorf("unknown ready check %q (expected 'default', 'field:path', 'status:path=value', or 'contains:text')", s)
	}

	r.Type = kind
	switch kind {
	case "field":
		r.Path = value
	case "status":
		path, values, ok := strings.Cut(value, "=")
		if !ok {
			return fmt.Errorf("ready check %q: expected status:path=value", s)
		}
		r.Path = path
		r.Values = strings.Split(values, "|")
	case "contains":
		r.Text = value
	default:
		return fmt.Errorf("unknown ready check type %q", kind)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML job file.
//
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML job configuration.
//
// Environment variables are expanded in url, url_template, proxy and
// header values. Interval defaults to 10s. Global interval and budget are
// copied into watches and grids that do not set their own.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Interval == 0 {
		cfg.Interval = Duration(10 * time.Second)
	}
	if cfg.TransportErrors == "" {
		cfg.TransportErrors = TransportErrorsFail
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables, applies the global
// defaults and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Interval.Duration() < minInterval {
		return fmt.Errorf("interval must be at least %s, got %s", minInterval, c.Interval.Duration())
	}
	if c.MaxExecution < 0 {
		return fmt.Errorf("max_execution cannot be negative, got %s", c.MaxExecution.Duration())
	}

	switch c.TransportErrors {
	case TransportErrorsFail, TransportErrorsNotReady:
	default:
		return fmt.Errorf("transport_errors must be %q or %q, got %q", TransportErrorsFail, TransportErrorsNotReady, c.TransportErrors)
	}

	if c.Proxy != "" {
		expanded, err := expandEnvVars(c.Proxy)
		if err != nil {
			return fmt.Errorf("proxy: %w", err)
		}
		c.Proxy = expanded
	}

	seen := make(map[string]struct{})
	for i := range c.Watches {
		w := &c.Watches[i]

		if w.Name == "" {
			return fmt.Errorf("watches[%d]: name is required", i)
		}
		ctx := fmt.Sprintf("watches[%d] (%s)", i, w.Name)

		if _, dup := seen[w.Name]; dup {
			return fmt.Errorf("%s: duplicate watch name", ctx)
		}
		seen[w.Name] = struct{}{}

		if w.URL == "" {
			return fmt.Errorf("%s: url is required", ctx)
		}
		expanded, err := expandEnvVars(w.URL)
		if err != nil {
			return fmt.Errorf("%s: url: %w", ctx, err)
		}
		w.URL = expanded

		if err := validateURL(w.URL); err != nil {
			return fmt.Errorf("%s: %w", ctx, err)
		}

		if err := c.applyTiming(ctx, &w.Interval, &w.MaxExecution, w.Timeout); err != nil {
			return err
		}
		if err := expandHeaders(ctx, w.Headers); err != nil {
			return err
		}
		if err := validateReady(&w.Ready, ctx); err != nil {
			return err
		}
	}

	for i := range c.Grids {
		g := &c.Grids[i]

		if g.Name == "" {
			return fmt.Errorf("grids[%d]: name is required", i)
		}
		ctx := fmt.Sprintf("grids[%d] (%s)", i, g.Name)

		if g.URLTemplate == "" {
			return fmt.Errorf("%s: url_template is required", ctx)
		}
		expanded, err := expandEnvVars(g.URLTemplate)
		if err != nil {
			return fmt.Errorf("%s: url_template: %w", ctx, err)
		}
		g.URLTemplate = expanded

		// fail fast before the SDK tries to use an invalid template
		if _, err := template.New("").Parse(g.URLTemplate); err != nil {
			return fmt.Errorf("%s: invalid url_template: %w", ctx, err)
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("%s: at least one dimension is required", ctx)
		}
		for dimName, dimValues := range g.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("%s: dimension %q has no values", ctx, dimName)
			}
			seenValues := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := seenValues[v]; exists {
					return fmt.Errorf("%s: dimension %q has duplicate value %q", ctx, dimName, v)
				}
				seenValues[v] = struct{}{}
			}
		}

		if err := c.applyTiming(ctx, &g.Interval, &g.MaxExecution, g.Timeout); err != nil {
			return err
		}
		if err := expandHeaders(ctx, g.Headers); err != nil {
			return err
		}
		if err := validateReady(&g.Ready, ctx); err != nil {
			return err
		}
	}

	if len(c.Watches) == 0 && len(c.Grids) == 0 {
		return errors.New("at least one watch or grid must be defined")
	}

	return nil
}

// applyTiming fills in the global interval and budget and validates them.
func (c *Config) applyTiming(ctx string, interval, maxExecution *Duration, timeout Duration) error {
	if *interval == 0 {
		*interval = c.Interval
	}
	if interval.Duration() < minInterval {
		return fmt.Errorf("%s: interval must be at least %s, got %s", ctx, minInterval, interval.Duration())
	}
	if interval.Duration() > time.Hour {
		return fmt.Errorf("%s: interval must not exceed 1h, got %s", ctx, interval.Duration())
	}

	if *maxExecution == 0 {
		*maxExecution = c.MaxExecution
	}
	if maxExecution.Duration() <= 0 {
		return fmt.Errorf("%s: max_execution is required (set it here or globally)", ctx)
	}

	if timeout != 0 && timeout.Duration() < time.Second {
		return fmt.Errorf("%s: timeout must be at least 1s if specified, got %s", ctx, timeout.Duration())
	}
	return nil
}

func validateURL(raw string) error {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return errors.New("url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	return nil
}

func expandHeaders(ctx string, headers map[string]string) error {
	for k, v := range headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("%s: headers[%s]: %w", ctx, k, err)
		}
		headers[k] = expanded
	}
	return nil
}

// validateReady validates a ready check configuration.
func validateReady(r *ReadyConfig, context string) error {
	switch r.Type {
	case "", "default":
		// empty means default, which is valid
	case "field":
		if r.Path == "" {
			return fmt.Errorf("%s: ready type 'field' requires a path", context)
		}
	case "status":
		if r.Path == "" || len(r.Values) == 0 {
			return fmt.Errorf("%s: ready type 'status' requires a path and values", context)
		}
	case "contains":
		if r.Text == "" {
			return fmt.Errorf("%s: ready type 'contains' requires text", context)
		}
	case "regex":
		if r.Pattern == "" || r.Match == "" {
			return fmt.Errorf("%s: ready type 'regex' requires a pattern and match", context)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("%s: invalid ready pattern: %w", context, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("%s: ready pattern must contain a capture group", context)
		}
	default:
		return fmt.Errorf("%s: unknown ready type %q", context, r.Type)
	}

	return nil
}
