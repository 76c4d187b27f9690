// Package scheduler runs deferred callbacks against the frame clock.
//
// Work is scheduled a number of virtual milliseconds (or server ticks) in the
// future and fired by Tick, which the frame loop calls once per frame after
// advancing the clock. Callers keep the returned *Handle to poll progress,
// cancel, extend or force completion.
//
// The scheduler is single-threaded: Tick and every Handle method must run on
// the goroutine that drives the frame loop.
package scheduler
