// Package jsenv runs harnessed JavaScript snippets against a live document.
//
// A Page owns one goja runtime driven by an event loop. Creating it installs
// the intercepted console, the humane_log_events view of the capture
// buffers, timer functions and a minimal document binding. Each Evaluate
// call rebinds the humane global to a fresh Harness, runs the snippet as the
// body of an async function and reports the outcome as a harness.Result.
//
// The polling primitives return promises. Between polls the loop is free to
// run timers and other pending work, and the document can also be changed
// from other goroutines. A waitFor query may itself be async; its promise
// is awaited before the result is judged.
//
// A Page serializes Evaluate calls; the runtime is never used concurrently.
package jsenv
