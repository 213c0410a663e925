package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jpalmerr/exportwatch"
)

func main() {
	// start mock export backend (see mock_server.go)
	go StartMockExportServer(":9999")
	time.Sleep(100 * time.Millisecond)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := exportwatch.New()
	if err != nil {
		slog.Error("failed to create poller", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	addr, err := p.ServeStatus(ctx, ":8080")
	if err != nil {
		slog.Error("failed to start status API", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  exportwatch demo")
	fmt.Printf("  sessions: http://%s/api/sessions\n", addr)
	fmt.Printf("  metrics:  http://%s/metrics\n", addr)
	fmt.Println()

	var wg sync.WaitGroup

	// callback form: interval and budget in seconds
	wg.Add(1)
	_, err = p.StartPolling("http://localhost:9999/export/1/status", 2, 30,
		func(r exportwatch.Response) {
			defer wg.Done()
			fmt.Println("export 1 ready:", r.DownloadURL())
		},
		func(elapsed float64) {
			defer wg.Done()
			fmt.Printf("export 1 gave up after %.0fs\n", elapsed)
		},
	)
	if err != nil {
		slog.Error("failed to start polling", "error", err)
		os.Exit(1)
	}

	// grid: one session per export in a batch, awaited with Poll
	watches, err := exportwatch.NewWatchGrid("Monthly report",
		exportwatch.WithURLTemplate("http://localhost:9999/export/{{.id}}/status"),
		exportwatch.WithDimensions(map[string][]string{"id": {"41", "42", "43"}}),
		exportwatch.WithGridInterval(time.Second),
		exportwatch.WithGridMaxExecution(12*time.Second),
	)
	if err != nil {
		slog.Error("failed to create watch grid", "error", err)
		os.Exit(1)
	}

	for _, w := range watches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := p.Poll(ctx, w)
			switch {
			case err == nil:
				fmt.Printf("%s ready: %s\n", w.Name(), resp.DownloadURL())
			case errors.Is(err, exportwatch.ErrTimedOut):
				fmt.Printf("%s: %v\n", w.Name(), err)
			default:
				fmt.Printf("%s failed: %v\n", w.Name(), err)
			}
		}()
	}

	wg.Wait()

	fmt.Println()
	for _, s := range p.Sessions() {
		fmt.Printf("  %-28s %-10s polls=%d elapsed=%s\n", s.Name, s.State, s.Polls, s.Elapsed)
	}
}
