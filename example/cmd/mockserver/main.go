// Standalone mock export backend for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/exportwatch run -c example/watches.yaml
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	readyAfter := flag.Int("ready-after", 3, "polls answered not ready before an export is ready")
	flag.Parse()

	fmt.Printf("Mock export server starting on %s\n", *addr)
	fmt.Printf("Each export is ready after %d polls\n", *readyAfter)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		polls = make(map[string]int)
		mu    sync.Mutex
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /export/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, err := strconv.Atoi(id); err != nil {
			http.Error(w, `{"error": "unknown export"}`, http.StatusNotFound)
			return
		}

		mu.Lock()
		polls[id]++
		n := polls[id]
		mu.Unlock()

		resp := map[string]any{"ready": false, "polls": n}
		if n > *readyAfter {
			resp["ready"] = true
			resp["url"] = "/media/exports/" + id + ".xlsx"
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("mock server error", "error", err)
		os.Exit(1)
	}
}
