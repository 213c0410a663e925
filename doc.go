// Package exportwatch polls export status endpoints until a server-generated
// file is ready.
//
// A web application that builds exports in the background typically exposes
// a status URL answering {"ready": false} while the file is generated and
// {"ready": true, "url": "..."} once it can be downloaded. exportwatch polls
// such a URL at a fixed interval, reports success through a done callback
// and gives up through a timeout callback once the execution budget is
// spent.
//
// # Quick Start
//
// The callback form takes seconds, like the browser helpers it replaces:
//
//	p, _ := exportwatch.New()
//	defer p.Close()
//
//	p.StartPolling("https://app.example.com/export/17/status", 5, 300,
//	    func(r exportwatch.Response) { fmt.Println("download:", r.DownloadURL()) },
//	    func(elapsed float64) { fmt.Printf("gave up after %.0fs\n", elapsed) },
//	)
//
// The awaitable form blocks until the session ends:
//
//	w, _ := exportwatch.NewWatch("orders", statusURL,
//	    exportwatch.WithInterval(5*time.Second),
//	    exportwatch.WithMaxExecution(5*time.Minute),
//	)
//	resp, err := p.Poll(ctx, w)
//	if errors.Is(err, exportwatch.ErrTimedOut) {
//	    ...
//	}
//
// # Budget Accounting
//
// The first poll is issued immediately. Every unsuccessful poll adds one
// interval to the session's elapsed time; the next poll is scheduled only
// while elapsed is below the budget, so a 5 second interval with a 30 second
// budget issues at most six polls and reports 30 seconds on timeout. Elapsed
// time is counted in intervals, never read from the wall clock.
//
// # Sessions
//
// Every start creates an independent [Session] with its own budget and
// timer, so any number of exports can be watched concurrently on one
// [Poller]. A session can be cancelled, waited on, and inspected through
// [Poller.Sessions] or the HTTP status API started by [Poller.ServeStatus].
//
// # Unusable Responses
//
// A network error, a non-2xx status or a body that is not JSON ends the
// session in [StateFailed] by default: neither the done nor the timeout
// callback fires, and the error is reported through [Handlers.OnFailure],
// [Session.Wait] and the log. [TreatTransportErrorAsNotReady] counts such
// polls as unsuccessful instead.
//
// # Ready Extractors
//
// [DefaultReadyExtractor] reads the top-level "ready" field with JavaScript
// truthiness. [ReadyField], [ReadyStatus], [ReadyRegex], [ReadyContains] and
// [AnyReady] cover endpoints with other shapes.
//
// # Testing
//
// [WithClock] and [NewManualClock] drive timers from virtual time, and
// [WithFetcher] replaces the HTTP layer, so sessions can be stepped
// deterministically in tests.
package exportwatch
