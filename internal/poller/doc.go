// Package poller runs export readiness poll sessions.
//
// This package is internal to exportwatch. It owns the HTTP layer and the
// timer-driven loop that turns a status URL into exactly one terminal
// outcome.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with per-request timeout, size limit and proxy support
//   - [Fetcher]: the interface the loop polls through (Client implements it)
//   - [Loop]: one poll session driven by an injected clock
//   - [Result]: the terminal outcome of a Loop
//
// Users of the exportwatch library should not need to interact with this
// package directly. Configuration is done through the root package.
package poller
