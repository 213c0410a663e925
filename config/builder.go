package config

import (
	"fmt"
	"sort"

	"github.com/jpalmerr/exportwatch"
)

// BuildWatches converts parsed configuration into SDK Watch values.
//
// It processes both direct watches and grids, returning a combined slice.
// Grid dimensions are expanded by [exportwatch.NewWatchGrid].
func BuildWatches(cfg *Config) ([]exportwatch.Watch, error) {
	var watches []exportwatch.Watch

	for _, wc := range cfg.Watches {
		w, err := buildWatch(wc)
		if err != nil {
			return nil, fmt.Errorf("watch %q: %w", wc.Name, err)
		}
		watches = append(watches, w)
	}

	for _, gc := range cfg.Grids {
		grid, err := buildGrid(gc)
		if err != nil {
			return nil, fmt.Errorf("grid %q: %w", gc.Name, err)
		}
		watches = append(watches, grid...)
	}

	return watches, nil
}

// PollerOptions returns the [exportwatch.Poller] options the job file asks for.
func PollerOptions(cfg *Config) []exportwatch.Option {
	var opts []exportwatch.Option
	if cfg.Proxy != "" {
		opts = append(opts, exportwatch.WithProxy(cfg.Proxy))
	}
	if cfg.TransportErrors == TransportErrorsNotReady {
		opts = append(opts, exportwatch.WithTransportErrorPolicy(exportwatch.TreatTransportErrorAsNotReady))
	}
	return opts
}

// buildWatch converts a single WatchConfig to an SDK Watch.
func buildWatch(wc WatchConfig) (exportwatch.Watch, error) {
	opts := []exportwatch.WatchOption{
		exportwatch.WithInterval(wc.Interval.Duration()),
		exportwatch.WithMaxExecution(wc.MaxExecution.Duration()),
	}

	if wc.Timeout != 0 {
		opts = append(opts, exportwatch.WithTimeout(wc.Timeout.Duration()))
	}

	if len(wc.Headers) > 0 {
		opts = append(opts, exportwatch.WithHeaders(mapToKeyValuePairs(wc.Headers)...))
	}

	if len(wc.Labels) > 0 {
		opts = append(opts, exportwatch.WithLabels(mapToKeyValuePairs(wc.Labels)...))
	}

	extractor, err := BuildReadyExtractor(wc.Ready)
	if err != nil {
		return exportwatch.Watch{}, err
	}
	if extractor != nil {
		opts = append(opts, exportwatch.WithReadyExtractor(extractor))
	}

	return exportwatch.NewWatch(wc.Name, wc.URL, opts...)
}

// buildGrid expands a GridConfig into watches.
func buildGrid(gc GridConfig) ([]exportwatch.Watch, error) {
	opts := []exportwatch.GridOption{
		exportwatch.WithURLTemplate(gc.URLTemplate),
		exportwatch.WithDimensions(gc.Dimensions),
		exportwatch.WithGridInterval(gc.Interval.Duration()),
		exportwatch.WithGridMaxExecution(gc.MaxExecution.Duration()),
	}

	if gc.Timeout != 0 {
		opts = append(opts, exportwatch.WithGridTimeout(gc.Timeout.Duration()))
	}

	if len(gc.Headers) > 0 {
		opts = append(opts, exportwatch.WithGridHeaders(mapToKeyValuePairs(gc.Headers)...))
	}

	if len(gc.Labels) > 0 {
		opts = append(opts, exportwatch.WithGridLabels(mapToKeyValuePairs(gc.Labels)...))
	}

	extractor, err := BuildReadyExtractor(gc.Ready)
	if err != nil {
		return nil, err
	}
	if extractor != nil {
		opts = append(opts, exportwatch.WithGridReadyExtractor(extractor))
	}

	return exportwatch.NewWatchGrid(gc.Name, opts...)
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}

// BuildReadyExtractor converts a ReadyConfig to a [exportwatch.ReadyExtractor].
// Returns nil for default/empty checks (the SDK uses its default).
func BuildReadyExtractor(rc ReadyConfig) (exportwatch.ReadyExtractor, error) {
	switch rc.Type {
	case "", "default":
		return nil, nil
	case "field":
		return exportwatch.ReadyField(rc.Path), nil
	case "status":
		return exportwatch.ReadyStatus(rc.Path, rc.Values...), nil
	case "contains":
		return exportwatch.ReadyContains(rc.Text), nil
	case "regex":
		return exportwatch.ReadyRegex(rc.Pattern, rc.Match)
	default:
		return nil, fmt.Errorf("unknown ready type %q", rc.Type)
	}
}
