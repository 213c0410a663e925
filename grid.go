package exportwatch

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/template"
)

// NewWatchGrid creates one [Watch] per combination of dimension values.
//
// This is how a batch of exports is watched: the status URL template is
// expanded over the cartesian product of the dimensions. Dimension values
// are URL-encoded before interpolation. Missing template keys cause an
// error.
//
// Each watch is named "Base Name (val1/val2)" (values from alphabetically
// sorted keys) and labelled with its dimension values. Static labels from
// [WithGridLabels] take precedence on collision.
//
// Example:
//
//	watches, err := exportwatch.NewWatchGrid("Monthly export",
//	    exportwatch.WithURLTemplate("https://app.example.com/export/{{.id}}/status"),
//	    exportwatch.WithDimensions(map[string][]string{"id": {"41", "42"}}),
//	    exportwatch.WithGridMaxExecution(5*time.Minute),
//	)
func NewWatchGrid(baseName string, opts ...GridOption) ([]Watch, error) {
	if strings.TrimSpace(baseName) == "" {
		return nil, errors.New("base name cannot be empty")
	}

	cfg := &gridConfig{
		staticLabels: make(map[string]string),
		headers:      make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	switch {
	case cfg.urlTemplate == "":
		return nil, errors.New("URL template required")
	case len(cfg.dimensions) == 0:
		return nil, errors.New("at least one dimension required")
	case cfg.maxExecution <= 0:
		return nil, errors.New("max execution required")
	}

	tmpl, err := template.New("url").Option("missingkey=error").Parse(cfg.urlTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid URL template: %w", err)
	}

	shared := cfg.watchOptions()
	cells := cartesianProduct(cfg.dimensions)
	watches := make([]Watch, 0, len(cells))

	for _, cell := range cells {
		rawURL, err := renderURL(tmpl, cell)
		if err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}

		// dimension values label the watch; static labels win on collision
		labels := make(map[string]string, len(cell)+len(cfg.staticLabels))
		for k, v := range cell {
			labels[k] = v
		}
		for k, v := range cfg.staticLabels {
			labels[k] = v
		}

		name := formatWatchName(baseName, cell)
		w, err := NewWatch(name, rawURL, append(shared, WithLabels(sortedPairs(labels)...))...)
		if err != nil {
			return nil, fmt.Errorf("failed to create watch '%s': %w", name, err)
		}
		watches = append(watches, w)
	}

	return watches, nil
}

// watchOptions returns the options every watch of the grid shares.
func (cfg *gridConfig) watchOptions() []WatchOption {
	opts := []WatchOption{WithMaxExecution(cfg.maxExecution)}
	if cfg.interval > 0 {
		opts = append(opts, WithInterval(cfg.interval))
	}
	if cfg.timeout > 0 {
		opts = append(opts, WithTimeout(cfg.timeout))
	}
	if len(cfg.headers) > 0 {
		opts = append(opts, WithHeaders(sortedPairs(cfg.headers)...))
	}
	if cfg.extractor != nil {
		opts = append(opts, WithReadyExtractor(cfg.extractor))
	}
	return opts[:len(opts):len(opts)]
}

// cartesianProduct returns every combination of dimension values.
// Keys are visited in sorted order and values keep their slice order, so
// the last key varies fastest. Returns nil if any dimension is empty.
//
//	{"x": ["a","b"], "y": ["1","2"]} -> x=a,y=1  x=a,y=2  x=b,y=1  x=b,y=2
func cartesianProduct(dims map[string][]string) []map[string]string {
	if len(dims) == 0 {
		return nil
	}
	keys := sortedKeys(dims)
	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
	}

	var (
		out  []map[string]string
		walk func(depth int, cell map[string]string)
	)
	walk = func(depth int, cell map[string]string) {
		if depth == len(keys) {
			c := make(map[string]string, len(cell))
			for k, v := range cell {
				c[k] = v
			}
			out = append(out, c)
			return
		}
		key := keys[depth]
		for _, v := range dims[key] {
			cell[key] = v
			walk(depth+1, cell)
		}
	}
	walk(0, make(map[string]string, len(keys)))
	return out
}

// renderURL executes tmpl with the cell's values query-escaped.
func renderURL(tmpl *template.Template, cell map[string]string) (string, error) {
	escaped := make(map[string]string, len(cell))
	for k, v := range cell {
		escaped[k] = url.QueryEscape(v)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, escaped); err != nil {
		return "", err
	}
	return b.String(), nil
}

// formatWatchName returns "Base (v1/v2)" with values ordered by key.
func formatWatchName(baseName string, cell map[string]string) string {
	keys := sortedKeys(cell)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = cell[k]
	}
	return baseName + " (" + strings.Join(values, "/") + ")"
}

// sortedPairs flattens m into key-value pairs ordered by key.
func sortedPairs(m map[string]string) []string {
	pairs := make([]string, 0, len(m)*2)
	for _, k := range sortedKeys(m) {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
