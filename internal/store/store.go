package store

import "time"

// SessionSnapshot is the stored view of a poll session, shaped for JSON.
type SessionSnapshot struct {
	// ID is the session's unique identifier.
	ID string `json:"id"`

	// Name is the optional display name.
	Name string `json:"name,omitempty"`

	// URL is the status URL being polled.
	URL string `json:"url"`

	// Labels are the watch's metadata labels.
	Labels map[string]string `json:"labels,omitempty"`

	// State is the lifecycle state (e.g. "polling", "done", "timed_out").
	State string `json:"state"`

	// Polls is the number of completed poll requests.
	Polls int `json:"polls"`

	// ElapsedMs is the consumed budget in milliseconds.
	ElapsedMs int64 `json:"elapsed_ms"`

	// IntervalMs is the delay between polls in milliseconds.
	IntervalMs int64 `json:"interval_ms"`

	// MaxExecutionMs is the total budget in milliseconds.
	MaxExecutionMs int64 `json:"max_execution_ms"`

	// StartedAt is when the session was started.
	StartedAt time.Time `json:"started_at"`

	// UpdatedAt is when the snapshot was last written.
	UpdatedAt time.Time `json:"updated_at"`

	// FinishedAt is set once the session reaches a terminal state.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error contains the failure message, if any.
	Error *string `json:"error"`
}

// Finished reports whether the snapshot describes a terminal session.
func (s SessionSnapshot) Finished() bool {
	return s.FinishedAt != nil
}

// Store defines storage and subscription for session snapshots.
//
// Implementations must be safe for concurrent access.
type Store interface {
	// Update stores a snapshot keyed by ID and notifies all subscribers.
	Update(snapshot SessionSnapshot)

	// Get returns the snapshot for id.
	Get(id string) (SessionSnapshot, bool)

	// GetAll returns all stored snapshots ordered by StartedAt.
	GetAll() []SessionSnapshot

	// Subscribe returns a buffered channel that receives snapshot updates.
	// Caller must call Unsubscribe when done.
	Subscribe() <-chan SessionSnapshot

	// Unsubscribe removes a subscription and closes the channel.
	Unsubscribe(ch <-chan SessionSnapshot)
}
