package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mockExport tracks when a simulated export finishes generating.
type mockExport struct {
	startedAt time.Time
	readyAt   time.Time
}

// StartMockExportServer runs a simulated export backend. Each export ID
// becomes ready 5-20 seconds after it is first polled.
// Call this in a goroutine before starting sessions.
func StartMockExportServer(addr string) {
	var (
		exports = make(map[string]*mockExport)
		mu      sync.Mutex
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /export/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		// simulate small latency variance
		time.Sleep(time.Duration(20+rand.Intn(80)) * time.Millisecond)

		now := time.Now()
		mu.Lock()
		exp, exists := exports[id]
		if !exists {
			exp = &mockExport{
				startedAt: now,
				readyAt:   now.Add(time.Duration(5+rand.Intn(16)) * time.Second),
			}
			exports[id] = exp
			slog.Info("export generation started", "id", id, "ready_in", exp.readyAt.Sub(now).Round(time.Second).String())
		}
		mu.Unlock()

		resp := map[string]any{"ready": false}
		if now.After(exp.readyAt) {
			resp["ready"] = true
			resp["url"] = "/media/exports/" + id + ".xlsx"
		} else {
			total := exp.readyAt.Sub(exp.startedAt)
			resp["progress"] = int(100 * now.Sub(exp.startedAt) / total)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}
