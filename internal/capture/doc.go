// Package capture records console output produced while a test script runs.
//
// A page installs the interceptor exactly once. Every call to one of the four
// console entry points is first forwarded to the original console, unchanged,
// and then formatted and appended to two buffers: the category buffer
// (LOG, WRN, ERR or DBG) and ALL. Buffers are append-only and live as long as
// the page that owns them.
//
// # Usage
//
//	sink := capture.NewBuffers()
//	console := capture.Install(capture.NewSlogConsole(logger), sink)
//	console.Warn("a", "b")
//	sink.Lines(capture.WRN) // ["a b"]
//	sink.Lines(capture.ALL) // ["a b"]
//
// Go code that logs through log/slog can be captured the same way with
// NewHandler, which tees records into a sink keyed by level.
package capture
