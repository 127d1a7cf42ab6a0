package core

import (
	"sync/atomic"
	"time"
)

// TimeoutError marks a watchdog-bounded operation (load or unload) that did
// not complete in time. The cooperative cancel flag passed to the worker is
// set before this error is returned.
type TimeoutError struct {
	Path ArtifactPath
}

func (e *TimeoutError) Error() string {
	return "timed out waiting for " + string(e.Path)
}

// cancelFlag is the cooperative stop signal a timed worker polls at each
// mutation point before touching the Registry.
type cancelFlag struct {
	stopped atomic.Bool
}

func (c *cancelFlag) Stop()          { c.stopped.Store(true) }
func (c *cancelFlag) Stopped() bool  { return c.stopped.Load() }

// runWithTimeout starts fn on a worker goroutine and waits up to d for it to
// finish. If it does not finish in time, the cancel flag is flipped and
// runWithTimeout returns a *TimeoutError immediately; the worker goroutine
// is left to notice the flag and exit on its own rather than being killed,
// since Go has no preemptive goroutine cancellation.
func runWithTimeout(path ArtifactPath, d time.Duration, fn func(*cancelFlag) error) error {
	flag := &cancelFlag{}
	result := make(chan error, 1)

	go func() {
		result <- fn(flag)
	}()

	select {
	case err := <-result:
		return err
	case <-time.After(d):
		flag.Stop()
		return &TimeoutError{Path: path}
	}
}
