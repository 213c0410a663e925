package exportwatch

import (
	"context"
	"sync"
	"time"

	"github.com/jpalmerr/exportwatch/internal/poller"
	"github.com/jpalmerr/exportwatch/internal/store"
)

// Session is one run of polling a [Watch], from start to a terminal state.
//
// Sessions are created by [Poller.Start], [Poller.StartPolling] and
// [Poller.Poll]. Each owns its own budget, timer and callbacks, so sessions
// never interfere with each other. All methods are safe for concurrent use.
type Session struct {
	id        string
	watch     Watch
	poller    *Poller
	loop      *poller.Loop[Response]
	startedAt time.Time

	mu         sync.Mutex
	finishedAt time.Time
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Name returns the watch name.
func (s *Session) Name() string {
	return s.watch.name
}

// URL returns the polled status URL.
func (s *Session) URL() string {
	return s.watch.url
}

// Watch returns the watch this session polls.
func (s *Session) Watch() Watch {
	return s.watch
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	state, _, _ := s.loop.Snapshot()
	return State(state)
}

// Elapsed returns the consumed budget: the interval multiplied by the
// number of unsuccessful polls so far.
func (s *Session) Elapsed() time.Duration {
	_, elapsed, _ := s.loop.Snapshot()
	return elapsed
}

// Polls returns the number of completed poll requests.
func (s *Session) Polls() int {
	_, _, polls := s.loop.Snapshot()
	return polls
}

// Done is closed once the session is terminal and its callback has returned.
func (s *Session) Done() <-chan struct{} {
	return s.loop.Done()
}

// Cancel stops the session. A pending poll is disarmed and an in-flight
// request is aborted. No callback fires. Cancel is a no-op once the
// session is terminal.
func (s *Session) Cancel() {
	s.loop.Cancel()
}

// Wait blocks until the session ends or ctx is done.
//
// Returns the ready response on success, a [*TimeoutError] when the budget
// ran out, the transport error when the session failed, or [ErrCancelled]
// when it was cancelled. If ctx ends first, Wait returns ctx.Err() and the
// session keeps running.
func (s *Session) Wait(ctx context.Context) (Response, error) {
	select {
	case <-s.loop.Done():
		return s.result()
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Info returns a point-in-time view of the session.
func (s *Session) Info() SessionInfo {
	return snapshotToInfo(s.snapshot(s.poller.clock.Now()))
}

// result maps the loop's terminal result to the public outcome.
func (s *Session) result() (Response, error) {
	r := s.loop.Result()
	switch r.State {
	case poller.StateDone:
		return r.Value, nil
	case poller.StateTimedOut:
		return Response{}, &TimeoutError{Elapsed: r.Elapsed, Polls: r.Polls, Last: r.Value}
	case poller.StateCancelled:
		return Response{}, ErrCancelled
	default:
		return Response{}, r.Err
	}
}

func (s *Session) setFinished(t time.Time) {
	s.mu.Lock()
	s.finishedAt = t
	s.mu.Unlock()
}

func (s *Session) snapshot(now time.Time) store.SessionSnapshot {
	state, elapsed, polls := s.loop.Snapshot()

	snap := store.SessionSnapshot{
		ID:             s.id,
		Name:           s.watch.name,
		URL:            s.watch.url,
		Labels:         s.watch.labels,
		State:          string(state),
		Polls:          polls,
		ElapsedMs:      elapsed.Milliseconds(),
		IntervalMs:     s.watch.interval.Milliseconds(),
		MaxExecutionMs: s.watch.maxExecution.Milliseconds(),
		StartedAt:      s.startedAt,
		UpdatedAt:      now,
	}

	if state.Terminal() {
		s.mu.Lock()
		finished := s.finishedAt
		s.mu.Unlock()
		if finished.IsZero() {
			finished = now
		}
		snap.FinishedAt = &finished

		if _, err := s.result(); err != nil {
			msg := err.Error()
			snap.Error = &msg
		}
	}
	return snap
}

// SessionInfo is a point-in-time view of a session, as listed by
// [Poller.Sessions] and served by the status API.
type SessionInfo struct {
	ID           string
	Name         string
	URL          string
	Labels       map[string]string
	State        State
	Polls        int
	Elapsed      time.Duration
	Interval     time.Duration
	MaxExecution time.Duration
	StartedAt    time.Time
	UpdatedAt    time.Time

	// FinishedAt is zero while the session is running.
	FinishedAt time.Time

	// Err is the failure, timeout or cancellation message of a terminal
	// session; empty otherwise.
	Err string
}

func snapshotToInfo(snap store.SessionSnapshot) SessionInfo {
	info := SessionInfo{
		ID:           snap.ID,
		Name:         snap.Name,
		URL:          snap.URL,
		Labels:       copyMap(snap.Labels),
		State:        State(snap.State),
		Polls:        snap.Polls,
		Elapsed:      time.Duration(snap.ElapsedMs) * time.Millisecond,
		Interval:     time.Duration(snap.IntervalMs) * time.Millisecond,
		MaxExecution: time.Duration(snap.MaxExecutionMs) * time.Millisecond,
		StartedAt:    snap.StartedAt,
		UpdatedAt:    snap.UpdatedAt,
	}
	if snap.FinishedAt != nil {
		info.FinishedAt = *snap.FinishedAt
	}
	if snap.Error != nil {
		info.Err = *snap.Error
	}
	return info
}
