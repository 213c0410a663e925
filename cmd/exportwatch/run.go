package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/exportwatch"
	"github.com/jpalmerr/exportwatch/config"
)

// statusLinger keeps the status API up briefly after every session ended
// so a final scrape can observe the terminal states.
const statusLinger = 2 * time.Second

// runCmd polls every export in a job file concurrently.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll every export in a job file",
	Long: `Poll every export defined in a job file concurrently.

The command returns once every session has ended. With --listen (or
listen: in the job file) a status API is served while the sessions run:
  GET /api/sessions       session snapshots
  GET /api/sessions/{id}  one session
  GET /api/sse            live snapshot updates
  GET /metrics            Prometheus metrics
  GET /healthz            liveness

Exit codes:
  0 - Every export is ready
  1 - At least one export timed out, failed, or was interrupted

Example:
  exportwatch run -c watches.yaml
  exportwatch run -c watches.yaml --listen :9090`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", "", "path to job file (required)")
	runCmd.Flags().String("listen", "", "status API address, overrides the job file")
	_ = runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Listen = listen
	}

	watches, err := config.BuildWatches(cfg)
	if err != nil {
		return fmt.Errorf("failed to build watches: %w", err)
	}

	logger.Info("config loaded",
		"watches", len(cfg.Watches),
		"grids", len(cfg.Grids),
		"sessions", len(watches),
	)

	opts := append([]exportwatch.Option{exportwatch.WithLogger(logger)}, config.PollerOptions(cfg)...)
	p, err := exportwatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}
	defer p.Close()

	// cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Listen != "" {
		serveCtx, stopServe := context.WithCancel(context.Background())
		defer stopServe()
		if _, err := p.ServeStatus(serveCtx, cfg.Listen); err != nil {
			return err
		}
	}

	failed := runSessions(ctx, p, watches, logger)

	if cfg.Listen != "" && ctx.Err() == nil {
		time.Sleep(statusLinger)
	}

	printSummary(cmd, p.Sessions())

	if failed > 0 {
		return fmt.Errorf("%d of %d exports not ready", failed, len(watches))
	}
	return nil
}

// runSessions starts a session per watch and waits for all of them.
// Returns the number of sessions that did not end ready.
func runSessions(ctx context.Context, p *exportwatch.Poller, watches []exportwatch.Watch, logger *slog.Logger) int {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)

	for _, w := range watches {
		s, err := p.Start(ctx, w, exportwatch.Handlers{
			OnDone: func(r exportwatch.Response) {
				logger.Info("download available", "name", w.Name(), "download_url", r.DownloadURL())
			},
		})
		if err != nil {
			logger.Error("failed to start session", "name", w.Name(), "error", err)
			mu.Lock()
			failed++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-s.Done()
			if s.State() != exportwatch.StateDone {
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return failed
}

func printSummary(cmd *cobra.Command, sessions []exportwatch.SessionInfo) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATE\tPOLLS\tELAPSED\tERROR")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.Name, s.State, s.Polls, s.Elapsed, s.Err)
	}
	_ = tw.Flush()
}
