package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/exportwatch/internal/clock"
)

// ErrCancelled is the terminal error of a loop stopped by [Loop.Cancel] or
// by cancellation of its parent context.
var ErrCancelled = errors.New("poll session cancelled")

// State is the lifecycle position of a [Loop].
type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateDone      State = "done"
	StateTimedOut  State = "timed_out"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transitions can happen from s.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateTimedOut, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Evaluator interprets a raw response. It returns the decoded value, whether
// the export is ready, and an error when the response is unusable (bad
// status, malformed body).
type Evaluator[T any] func(resp Response) (value T, ready bool, err error)

// Attempt describes one completed poll.
type Attempt[T any] struct {
	Response Response
	Value    T
	Ready    bool
	Err      error

	// Elapsed is the budget consumed after this attempt was accounted.
	Elapsed time.Duration

	// Polls is the number of completed polls including this one.
	Polls int
}

// Result is the terminal outcome of a [Loop].
type Result[T any] struct {
	State    State
	Value    T
	Response Response
	Elapsed  time.Duration
	Polls    int
	Err      error
}

// Config describes one poll session.
type Config[T any] struct {
	URL            string
	Headers        map[string]string
	Interval       time.Duration
	MaxExecution   time.Duration
	RequestTimeout time.Duration

	Fetcher  Fetcher
	Clock    clock.Clock
	Evaluate Evaluator[T]
	Logger   *slog.Logger

	// ErrorsAsNotReady makes unusable responses count as an unsuccessful
	// poll instead of ending the session.
	ErrorsAsNotReady bool

	// OnAttempt observes every completed poll. Called without locks held.
	OnAttempt func(Attempt[T])

	// OnFinish is called exactly once with the terminal result, before
	// Done is closed. Called without locks held.
	OnFinish func(Result[T])
}

// Loop drives a single poll session.
//
// The first poll is issued as soon as [Loop.Start] is called. Each further
// poll is armed with Clock.AfterFunc only after the previous response has
// been processed, so at most one request is in flight.
type Loop[T any] struct {
	cfg Config[T]

	mu       sync.Mutex
	state    State
	elapsed  time.Duration
	polls    int
	timer    clock.Timer
	ctx      context.Context
	cancel   context.CancelFunc
	stopWait func() bool
	result   Result[T]
	done     chan struct{}
}

// NewLoop validates cfg and returns an idle Loop.
func NewLoop[T any](cfg Config[T]) (*Loop[T], error) {
	if cfg.URL == "" {
		return nil, errors.New("url is required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if cfg.MaxExecution <= 0 {
		return nil, errors.New("max execution must be positive")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if cfg.Evaluate == nil {
		return nil, errors.New("evaluator is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Loop[T]{
		cfg:   cfg,
		state: StateIdle,
		done:  make(chan struct{}),
	}, nil
}

// Start resets the budget and issues the first poll immediately.
//
// Cancelling ctx cancels the session. Start is a no-op unless the loop is idle.
func (l *Loop[T]) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	l.mu.Lock()
	if l.state != StateIdle {
		l.mu.Unlock()
		return
	}
	l.state = StatePolling
	l.elapsed = 0
	l.polls = 0
	l.ctx, l.cancel = context.WithCancel(ctx)
	if ctx.Err() != nil {
		var zero T
		res := l.finishLocked(StateCancelled, Response{}, zero, ErrCancelled)
		l.mu.Unlock()
		l.report(res)
		return
	}
	l.stopWait = context.AfterFunc(ctx, l.Cancel)
	l.mu.Unlock()

	l.cfg.Clock.AfterFunc(0, l.pollOnce)
}

// Cancel stops the session: the pending timer is disarmed and an in-flight
// request is aborted. Neither a done nor a timeout outcome is reported.
// Cancel is a no-op once the loop is terminal.
func (l *Loop[T]) Cancel() {
	l.mu.Lock()
	if l.state.Terminal() {
		l.mu.Unlock()
		return
	}
	if l.state == StateIdle {
		l.ctx, l.cancel = context.WithCancel(context.Background())
	}
	var zero T
	res := l.finishLocked(StateCancelled, Response{}, zero, ErrCancelled)
	l.mu.Unlock()

	l.report(res)
}

// Done is closed after the terminal result has been reported.
func (l *Loop[T]) Done() <-chan struct{} {
	return l.done
}

// Result returns the terminal result. Only meaningful after Done is closed.
func (l *Loop[T]) Result() Result[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.result
}

// Snapshot returns the current state, consumed budget and poll count.
func (l *Loop[T]) Snapshot() (State, time.Duration, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state, l.elapsed, l.polls
}

// pollOnce performs one request and decides the next transition.
func (l *Loop[T]) pollOnce() {
	l.mu.Lock()
	if l.state != StatePolling {
		l.mu.Unlock()
		return
	}
	ctx := l.ctx
	l.timer = nil
	l.mu.Unlock()

	resp := l.cfg.Fetcher.Fetch(ctx, http.MethodGet, l.cfg.URL, l.cfg.Headers, l.cfg.RequestTimeout)

	var (
		value T
		ready bool
		err   = resp.Error
	)
	if err == nil {
		value, ready, err = l.safeEvaluate(resp)
	}

	l.mu.Lock()
	if l.state != StatePolling {
		// cancelled while the request was in flight
		l.mu.Unlock()
		return
	}
	if ctx.Err() != nil {
		// parent context ended; its AfterFunc has not taken the lock yet
		var zero T
		res := l.finishLocked(StateCancelled, Response{}, zero, ErrCancelled)
		l.mu.Unlock()
		l.report(res)
		return
	}
	l.polls++

	var (
		res      *Result[T]
		finished bool
	)
	switch {
	case err != nil && !l.cfg.ErrorsAsNotReady:
		r := l.finishLocked(StateFailed, resp, value, err)
		res, finished = &r, true
	case err == nil && ready:
		r := l.finishLocked(StateDone, resp, value, nil)
		res, finished = &r, true
	default:
		l.elapsed += l.cfg.Interval
		if l.elapsed < l.cfg.MaxExecution {
			l.timer = l.cfg.Clock.AfterFunc(l.cfg.Interval, l.pollOnce)
		} else {
			r := l.finishLocked(StateTimedOut, resp, value, nil)
			res, finished = &r, true
		}
	}
	attempt := Attempt[T]{
		Response: resp,
		Value:    value,
		Ready:    ready && err == nil,
		Err:      err,
		Elapsed:  l.elapsed,
		Polls:    l.polls,
	}
	l.mu.Unlock()

	if l.cfg.OnAttempt != nil {
		l.cfg.OnAttempt(attempt)
	}
	if finished {
		l.report(*res)
	}
}

// finishLocked performs the terminal transition. Caller must hold l.mu and
// must call report with the returned result after releasing it.
func (l *Loop[T]) finishLocked(state State, resp Response, value T, err error) Result[T] {
	l.state = state
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.stopWait != nil {
		l.stopWait()
	}
	if l.cancel != nil {
		l.cancel()
	}
	l.result = Result[T]{
		State:    state,
		Value:    value,
		Response: resp,
		Elapsed:  l.elapsed,
		Polls:    l.polls,
		Err:      err,
	}
	return l.result
}

// report hands the terminal result to OnFinish and releases waiters.
func (l *Loop[T]) report(res Result[T]) {
	defer close(l.done)
	if l.cfg.OnFinish != nil {
		l.cfg.OnFinish(res)
	}
}

// safeEvaluate calls the evaluator with panic recovery.
// A panic is logged with a correlation ID and turned into an error carrying it.
func (l *Loop[T]) safeEvaluate(resp Response) (value T, ready bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			l.cfg.Logger.Error("ready evaluation panic",
				"correlation_id", correlationID,
				"url", l.cfg.URL,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			ready = false
			err = fmt.Errorf("ready evaluation panic (correlation_id: %s)", correlationID)
		}
	}()
	return l.cfg.Evaluate(resp)
}
