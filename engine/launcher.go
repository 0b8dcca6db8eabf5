package engine

import "sync/atomic"

// Launcher runs its start function at most once per process.
type Launcher struct {
	started atomic.Bool
	start   func(name string)
}

func NewLauncher(start func(name string)) *Launcher {
	return &Launcher{start: start}
}

// Trigger calls the start function the first time and reports whether it did.
func (l *Launcher) Trigger(name string) bool {
	if !l.started.CompareAndSwap(false, true) {
		return false
	}
	l.start(name)
	return true
}

// Started reports whether Trigger has fired.
func (l *Launcher) Started() bool {
	return l.started.Load()
}
