// Package store is the in-memory session registry behind the status API.
//
// A Poller writes a [SessionSnapshot] after every poll and on the terminal
// transition. [MemoryStore] keeps the latest snapshot per session ID,
// retains a bounded number of finished sessions, and fans every update out
// to subscribers such as the server-sent event stream.
//
// Delivery to subscribers never blocks: a subscriber whose buffer is full
// misses that update and catches up with the next one.
package store
