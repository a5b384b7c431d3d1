package worker

import "sync/atomic"

// Shutdown is the process-wide cooperative cancellation flag spec §5 and §9
// describe: flipped once by the CLI's signal handler on the first SIGINT or
// SIGTERM, and consulted by the loop before each poll and each dispatch. A
// second signal is the CLI layer's job (force-kill the process group), not
// this flag's.
type Shutdown struct {
	flag atomic.Bool
}

// NewShutdown returns an unset Shutdown.
func NewShutdown() *Shutdown { return &Shutdown{} }

// Request flips the flag. Safe to call from a signal handler goroutine.
func (s *Shutdown) Request() { s.flag.Store(true) }

// Requested reports whether Request has been called.
func (s *Shutdown) Requested() bool { return s.flag.Load() }

// Reset clears the flag - test-only convenience, mirroring urlcache.Clear.
func (s *Shutdown) Reset() { s.flag.Store(false) }
