package usecase

import "sync/atomic"

// ScanGuard marks a scan cycle as in progress. One guard is shared by every
// caller that may start a cycle; a second caller is turned away, not queued.
type ScanGuard struct {
	running atomic.Bool
}

func NewScanGuard() *ScanGuard {
	return &ScanGuard{}
}

// TryAcquire sets the flag and reports whether the caller now owns it.
func (g *ScanGuard) TryAcquire() bool {
	return g.running.CompareAndSwap(false, true)
}

// Release clears the flag.
func (g *ScanGuard) Release() {
	g.running.Store(false)
}

// Running reports whether a cycle currently holds the guard.
func (g *ScanGuard) Running() bool {
	return g.running.Load()
}
