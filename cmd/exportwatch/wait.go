package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/exportwatch"
	"github.com/jpalmerr/exportwatch/config"
)

// waitCmd polls a single export status URL.
var waitCmd = &cobra.Command{
	Use:   "wait URL",
	Short: "Poll one export until it is ready",
	Long: `Poll an export status URL until it reports ready or the budget runs out.

The first poll is issued immediately, then one poll per interval. Each
unsuccessful poll consumes one interval of the budget. When the export is
ready its status body is printed to stdout.

Exit codes:
  0 - Export is ready
  1 - Budget exhausted, request failed, or interrupted

Example:
  exportwatch wait https://app.example.com/export/17/status --max 5m
  exportwatch wait "$URL" -i 5s --max 2m -H "Cookie: sessionid=$SESSION" --ready status:state=complete`,
	Args: cobra.ExactArgs(1),
	RunE: runWait,
}

func init() {
	rootCmd.AddCommand(waitCmd)

	waitCmd.Flags().DurationP("interval", "i", exportwatch.DefaultInterval, "delay between polls")
	waitCmd.Flags().Duration("max", 0, "execution budget (required)")
	waitCmd.Flags().Duration("timeout", 10*time.Second, "per-request timeout")
	waitCmd.Flags().StringArrayP("header", "H", nil, `request header as "Key: Value" (repeatable)`)
	waitCmd.Flags().String("proxy", "", "proxy URL (socks5://, http://)")
	waitCmd.Flags().String("ready", "", `ready check: field:path, status:path=v1|v2, contains:text`)
	waitCmd.Flags().Bool("errors-as-not-ready", false, "keep polling after network errors and bad responses")
	_ = waitCmd.MarkFlagRequired("max")
}

func runWait(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)

	interval, _ := cmd.Flags().GetDuration("interval")
	maxExecution, _ := cmd.Flags().GetDuration("max")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	headerFlags, _ := cmd.Flags().GetStringArray("header")
	proxyURL, _ := cmd.Flags().GetString("proxy")
	readyFlag, _ := cmd.Flags().GetString("ready")
	errorsAsNotReady, _ := cmd.Flags().GetBool("errors-as-not-ready")

	headers, err := parseHeaders(headerFlags)
	if err != nil {
		return err
	}

	watchOpts := []exportwatch.WatchOption{
		exportwatch.WithInterval(interval),
		exportwatch.WithMaxExecution(maxExecution),
		exportwatch.WithTimeout(timeout),
		exportwatch.WithHeaders(headers...),
	}

	if readyFlag != "" {
		extractor, err := parseReadyFlag(readyFlag)
		if err != nil {
			return err
		}
		watchOpts = append(watchOpts, exportwatch.WithReadyExtractor(extractor))
	}

	w, err := exportwatch.NewWatch("", args[0], watchOpts...)
	if err != nil {
		return fmt.Errorf("invalid watch: %w", err)
	}

	opts := []exportwatch.Option{exportwatch.WithLogger(logger)}
	if proxyURL != "" {
		opts = append(opts, exportwatch.WithProxy(proxyURL))
	}
	if errorsAsNotReady {
		opts = append(opts, exportwatch.WithTransportErrorPolicy(exportwatch.TreatTransportErrorAsNotReady))
	}

	p, err := exportwatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resp, err := p.Poll(ctx, w)
	if err != nil {
		var te *exportwatch.TimeoutError
		if errors.As(err, &te) {
			return fmt.Errorf("export not ready after %gs", te.ElapsedSeconds())
		}
		return err
	}

	out := cmd.OutOrStdout()
	if _, err := out.Write(resp.Body); err != nil {
		return err
	}
	if len(resp.Body) > 0 && resp.Body[len(resp.Body)-1] != '\n' {
		fmt.Fprintln(out)
	}
	return nil
}

// parseHeaders turns "Key: Value" flags into key-value pairs.
func parseHeaders(flags []string) ([]string, error) {
	pairs := make([]string, 0, len(flags)*2)
	for _, h := range flags {
		k, v, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid header %q (expected \"Key: Value\")", h)
		}
		pairs = append(pairs, strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return pairs, nil
}

// parseReadyFlag reuses the job file's shorthand syntax.
func parseReadyFlag(s string) (exportwatch.ReadyExtractor, error) {
	cfg, err := config.ParseReady(s)
	if err != nil {
		return nil, err
	}
	extractor, err := config.BuildReadyExtractor(cfg)
	if err != nil {
		return nil, err
	}
	if extractor == nil {
		return exportwatch.DefaultReadyExtractor, nil
	}
	return extractor, nil
}
