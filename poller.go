package exportwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/exportwatch/internal/clock"
	"github.com/jpalmerr/exportwatch/internal/metrics"
	"github.com/jpalmerr/exportwatch/internal/poller"
	"github.com/jpalmerr/exportwatch/internal/server"
	"github.com/jpalmerr/exportwatch/internal/store"
)

// Clock schedules poll timers. See [WithClock].
type Clock = clock.Clock

// ManualClock is a virtual [Clock] whose time only moves on Advance.
type ManualClock = clock.Manual

// NewManualClock creates a [ManualClock] starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return clock.NewManual(start)
}

// Fetcher performs one status request. See [WithFetcher].
type Fetcher = poller.Fetcher

// FetchResult is what a [Fetcher] returns for one request.
type FetchResult = poller.Response

// Handlers are the callbacks of a session. All are optional.
//
// At most one of them fires per session, at most once. Callbacks run on the
// session's timer goroutine; long-running work should be handed off.
// Panics are recovered and logged.
type Handlers struct {
	// OnDone receives the ready response.
	OnDone func(Response)

	// OnTimeout receives the consumed budget when it is exhausted.
	OnTimeout func(elapsed time.Duration)

	// OnFailure receives the error of an unusable response under
	// [FailOnTransportError].
	OnFailure func(err error)
}

// Poller starts and tracks export poll sessions.
//
// A Poller holds no per-session state: every [Poller.Start] creates an
// independent [Session], so any number of sessions may run concurrently.
// The HTTP connection pool, logger, clock, metrics and session registry are
// shared.
type Poller struct {
	logger      *slog.Logger
	clock       Clock
	fetcher     Fetcher
	client      *poller.Client
	errorPolicy TransportErrorPolicy
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	sessions    *store.MemoryStore

	mu     sync.Mutex
	active map[string]*Session
	closed bool
}

// New creates a [Poller].
//
// Defaults:
//   - Logger: slog.Default()
//   - Clock: the system clock
//   - HTTP: a pooled client honouring proxy environment variables
//   - Transport errors: [FailOnTransportError]
//   - Finished sessions retained: 256
func New(opts ...Option) (*Poller, error) {
	cfg := &pollerConfig{
		clock:          clock.System,
		errorPolicy:    FailOnTransportError,
		retainFinished: store.DefaultRetainFinished,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.fetcher != nil && (cfg.httpClient != nil || cfg.proxyURL != "") {
		return nil, errors.New("WithFetcher cannot be combined with WithHTTPClient or WithProxy")
	}
	if cfg.httpClient != nil && cfg.proxyURL != "" {
		return nil, errors.New("WithHTTPClient cannot be combined with WithProxy")
	}

	var client *poller.Client
	fetcher := cfg.fetcher
	if fetcher == nil {
		switch {
		case cfg.proxyURL != "":
			c, err := poller.NewProxyClient(cfg.proxyURL)
			if err != nil {
				return nil, err
			}
			client = c
		default:
			client = poller.NewClientFrom(cfg.httpClient)
		}
		fetcher = client
	}

	registry := cfg.registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m, err := metrics.New(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return &Poller{
		logger:      logger,
		clock:       cfg.clock,
		fetcher:     fetcher,
		client:      client,
		errorPolicy: cfg.errorPolicy,
		registry:    registry,
		metrics:     m,
		sessions:    store.NewMemoryStore(cfg.retainFinished),
		active:      make(map[string]*Session),
	}, nil
}

// StartPolling polls url until the export is ready or the budget runs out.
//
// This is the plain callback form: intervalSeconds defaults to 10 when not
// positive, maxExecutionSeconds is the budget, onDone receives the ready
// response and onError the elapsed seconds on timeout. The first poll is
// issued immediately. Transport failures end the session without calling
// either callback; use [Session.Wait] or [Poller.Start] to observe them.
//
// Example:
//
//	_, err := p.StartPolling("https://app.example.com/export/1/status", 5, 30,
//	    func(r exportwatch.Response) { fmt.Println("ready:", r.DownloadURL()) },
//	    func(elapsed float64) { fmt.Printf("gave up after %.0fs\n", elapsed) },
//	)
func (p *Poller) StartPolling(url string, intervalSeconds, maxExecutionSeconds float64, onDone func(Response), onError func(elapsedSeconds float64)) (*Session, error) {
	if maxExecutionSeconds <= 0 {
		return nil, errors.New("max execution seconds must be positive")
	}

	opts := []WatchOption{WithMaxExecution(secondsToDuration(maxExecutionSeconds))}
	if intervalSeconds > 0 {
		opts = append(opts, WithInterval(secondsToDuration(intervalSeconds)))
	}

	w, err := NewWatch("", url, opts...)
	if err != nil {
		return nil, err
	}

	h := Handlers{OnDone: onDone}
	if onError != nil {
		h.OnTimeout = func(elapsed time.Duration) { onError(elapsed.Seconds()) }
	}
	return p.Start(context.Background(), w, h)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Start begins a session for w and issues the first poll immediately.
//
// Start is non-blocking. Cancelling ctx cancels the session. The returned
// [Session] can be waited on or cancelled.
//
// Returns an error if the Poller is closed or w is the zero Watch.
func (p *Poller) Start(ctx context.Context, w Watch, h Handlers) (*Session, error) {
	if w.url == "" {
		return nil, errors.New("watch has no URL; create it with NewWatch")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s := &Session{
		id:        uuid.NewString(),
		watch:     w,
		poller:    p,
		startedAt: p.clock.Now(),
	}

	extractor := w.extractor
	if extractor == nil {
		extractor = DefaultReadyExtractor
	}

	loop, err := poller.NewLoop(poller.Config[Response]{
		URL:              w.url,
		Headers:          w.headers,
		Interval:         w.interval,
		MaxExecution:     w.maxExecution,
		RequestTimeout:   w.requestTimeout,
		Fetcher:          p.fetcher,
		Clock:            p.clock,
		Evaluate:         p.evaluator(extractor),
		Logger:           p.logger.With("session_id", s.id),
		ErrorsAsNotReady: p.errorPolicy == TreatTransportErrorAsNotReady,
		OnAttempt:        func(a poller.Attempt[Response]) { p.onAttempt(s, a) },
		OnFinish:         func(r poller.Result[Response]) { p.onFinish(s, r, h) },
	})
	if err != nil {
		return nil, err
	}
	s.loop = loop

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New("poller is closed")
	}
	p.active[s.id] = s
	p.mu.Unlock()

	p.metrics.SessionStarted()
	p.logger.Info("export poll session started",
		"session_id", s.id,
		"name", w.name,
		"url", w.url,
		"interval", w.interval.String(),
		"max_execution", w.maxExecution.String(),
		"labels", w.labels,
	)

	loop.Start(ctx)
	// the registry entry is written after Start so it never reads as idle
	p.publish(s)
	return s, nil
}

// Poll starts a session for w and blocks until it ends.
//
// Returns the ready response, a [*TimeoutError] (matching [ErrTimedOut]),
// the transport error under [FailOnTransportError], or an error matching
// both [ErrCancelled] and ctx.Err() when ctx ends first.
func (p *Poller) Poll(ctx context.Context, w Watch) (Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := p.Start(ctx, w, Handlers{})
	if err != nil {
		return Response{}, err
	}

	<-s.Done()
	resp, err := s.result()
	if errors.Is(err, ErrCancelled) && ctx.Err() != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
	return resp, err
}

// Sessions returns snapshots of active and recently finished sessions,
// ordered by start time.
func (p *Poller) Sessions() []SessionInfo {
	all := p.sessions.GetAll()
	infos := make([]SessionInfo, len(all))
	for i, snap := range all {
		infos[i] = snapshotToInfo(snap)
	}
	return infos
}

// Lookup returns the snapshot of the session with the given ID.
func (p *Poller) Lookup(id string) (SessionInfo, bool) {
	snap, ok := p.sessions.Get(id)
	if !ok {
		return SessionInfo{}, false
	}
	return snapshotToInfo(snap), true
}

// Active returns the number of sessions that have not reached a terminal state.
func (p *Poller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// ServeStatus starts the status API on addr and returns the bound address.
//
// The API serves session snapshots at /api/sessions, a Server-Sent Events
// stream at /api/sse, the metrics registry at /metrics and /healthz. It
// shuts down when ctx is cancelled.
func (p *Poller) ServeStatus(ctx context.Context, addr string) (net.Addr, error) {
	srv := server.NewServer(p.sessions, p.registry, addr, p.logger)
	return srv.Start(ctx)
}

// StatusHandler returns the status API as an [http.Handler] for mounting
// on an existing server.
func (p *Poller) StatusHandler() http.Handler {
	return server.NewServer(p.sessions, p.registry, "", p.logger).Handler()
}

// Close cancels every active session and releases idle connections.
// Start fails after Close. Safe to call multiple times.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	active := make([]*Session, 0, len(p.active))
	for _, s := range p.active {
		active = append(active, s)
	}
	p.mu.Unlock()

	for _, s := range active {
		s.Cancel()
	}
	if p.client != nil {
		p.client.Close()
	}
}

// evaluator turns a raw poll response into a [Response] and a verdict.
func (p *Poller) evaluator(extractor ReadyExtractor) poller.Evaluator[Response] {
	return func(raw poller.Response) (Response, bool, error) {
		resp := Response{
			StatusCode: raw.StatusCode,
			Header:     raw.Header,
			Body:       raw.Body,
			Latency:    raw.Latency,
			CheckedAt:  p.clock.Now(),
		}

		if raw.StatusCode < 200 || raw.StatusCode > 299 {
			return resp, false, &StatusError{StatusCode: raw.StatusCode, Body: bodyExcerpt(raw.Body)}
		}

		fields, err := decodeFields(raw.Body)
		if err != nil {
			return resp, false, &DecodeError{Err: err}
		}
		resp.Fields = fields
		resp.Ready = extractor(resp)
		return resp, resp.Ready, nil
	}
}

// decodeFields parses a status body. Valid JSON that is not an object
// yields nil fields, which no field extractor treats as ready.
func decodeFields(body []byte) (map[string]any, error) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, err
	}
	fields, _ := data.(map[string]any)
	return fields, nil
}

// onAttempt records a completed poll.
func (p *Poller) onAttempt(s *Session, a poller.Attempt[Response]) {
	result := "not_ready"
	switch {
	case a.Err != nil:
		result = "error"
	case a.Ready:
		result = "ready"
	}
	p.metrics.ObservePoll(result, a.Response.Latency)

	attrs := []any{
		"session_id", s.id,
		"url", s.watch.url,
		"polls", a.Polls,
		"elapsed", a.Elapsed.String(),
		"status_code", a.Response.StatusCode,
		"latency_ms", a.Response.Latency.Milliseconds(),
	}
	if a.Err != nil {
		p.logger.Warn("export status poll failed", append(attrs, "error", a.Err.Error())...)
	} else {
		p.logger.Debug("export status polled", append(attrs, "ready", a.Ready)...)
	}

	p.publish(s)
}

// onFinish reports the terminal result to the registry, metrics, logs and
// the session's callbacks.
func (p *Poller) onFinish(s *Session, r poller.Result[Response], h Handlers) {
	p.mu.Lock()
	delete(p.active, s.id)
	p.mu.Unlock()

	s.setFinished(p.clock.Now())
	p.metrics.SessionFinished(string(r.State), r.Elapsed)
	p.publish(s)

	attrs := []any{
		"session_id", s.id,
		"url", s.watch.url,
		"polls", r.Polls,
		"elapsed", r.Elapsed.String(),
	}

	switch r.State {
	case poller.StateDone:
		p.logger.Info("export ready", attrs...)
		if h.OnDone != nil {
			invokeCallbackSafe(p.logger, s.id, func() { h.OnDone(r.Value) })
		}
	case poller.StateTimedOut:
		p.logger.Warn("export poll session timed out", attrs...)
		if h.OnTimeout != nil {
			invokeCallbackSafe(p.logger, s.id, func() { h.OnTimeout(r.Elapsed) })
		}
	case poller.StateFailed:
		p.logger.Warn("export poll session failed", append(attrs, "error", r.Err.Error())...)
		if h.OnFailure != nil {
			invokeCallbackSafe(p.logger, s.id, func() { h.OnFailure(r.Err) })
		}
	case poller.StateCancelled:
		p.logger.Info("export poll session cancelled", attrs...)
	}
}

// publish writes the session's current snapshot to the registry.
func (p *Poller) publish(s *Session) {
	p.sessions.Update(s.snapshot(p.clock.Now()))
}

// invokeCallbackSafe calls a session callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(logger *slog.Logger, sessionID string, cb func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("session callback panicked",
				"panic", r,
				"session_id", sessionID,
			)
		}
	}()
	cb()
}
