// Package clock provides the scheduling primitives used by poll sessions.
//
// Sessions never sleep; they arm a timer with [Clock.AfterFunc] and return.
// [System] is backed by the time package. [Manual] is a virtual clock whose
// time only moves when [Manual.Advance] is called, which makes the polling
// loop fully deterministic in tests.
package clock
