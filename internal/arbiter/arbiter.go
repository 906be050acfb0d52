// Package arbiter serializes access to physical serial ports between the
// interactive console, capture requests, and job workers.
//
// The state is process-wide. Multi-process deployments must replace this with
// a filesystem advisory-lock implementation behind the same interface; the
// lock is never shared across hosts.
package arbiter

import (
	"sync"
	"time"

	"portmux/internal/api"
	"portmux/pkg/logging"
)

// consoleRetryWindow is how long a console acquisition waits before giving up
// on a busy port. Covers rapid reconnects where the previous holder is still
// tearing down.
const consoleRetryWindow = 500 * time.Millisecond

// Arbiter tracks which port paths are in use and owns one mutex per port.
// At most one of {console bridge, capture, job worker} holds a port at any
// time; capture shares the console's session and therefore its mutex.
type Arbiter struct {
	mu     sync.Mutex
	active map[string]struct{}
	locks  map[string]*sync.Mutex
}

// New creates a new arbiter
func New() *Arbiter {
	return &Arbiter{
		active: make(map[string]struct{}),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Acquire claims a port for a single consumer. Fails immediately with
// PortBusyError when the port is active.
func (a *Arbiter) Acquire(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, busy := a.active[path]; busy {
		return api.NewPortBusyError(path)
	}
	a.active[path] = struct{}{}
	return nil
}

// AcquireConsole claims a port for an interactive console. On a busy port it
// retries once after the retry window before rejecting.
func (a *Arbiter) AcquireConsole(path string) error {
	if err := a.Acquire(path); err == nil {
		return nil
	}
	time.Sleep(consoleRetryWindow)
	if err := a.Acquire(path); err != nil {
		logging.Info("PortArbiter", "Rejecting console for %s: still busy after retry", path)
		return err
	}
	return nil
}

// Release returns a port to the pool. Safe to call for a port that is not
// active.
func (a *Arbiter) Release(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.active, path)
}

// IsActive reports whether any consumer currently holds the port.
func (a *Arbiter) IsActive(path string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, busy := a.active[path]
	return busy
}

// PortLock returns the mutex serializing I/O on a port. Console keystrokes,
// capture runs, and job steps on the same port all synchronize on it.
func (a *Arbiter) PortLock(path string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	lock, ok := a.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[path] = lock
	}
	return lock
}
