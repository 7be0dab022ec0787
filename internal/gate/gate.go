// Package gate provides single-flight admission for scrape jobs.
package gate

import "sync/atomic"

// SingleFlight admits at most one job at a time. It replaces polling a shared
// status string with an atomic acquire/release pair shared by the API and the
// worker.
type SingleFlight struct {
	busy atomic.Bool
}

// New returns an idle gate.
func New() *SingleFlight {
	return &SingleFlight{}
}

// TryAcquire claims the gate. It returns false when a job is already in flight.
func (g *SingleFlight) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release frees the gate for the next job. Safe to call when already idle.
func (g *SingleFlight) Release() {
	g.busy.Store(false)
}

// Busy reports whether a job currently holds the gate.
func (g *SingleFlight) Busy() bool {
	return g.busy.Load()
}
