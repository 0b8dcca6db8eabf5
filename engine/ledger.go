package engine

import "time"

const (
	// ReconnectWindow is the trailing window reconnects are counted in.
	ReconnectWindow = 600 * time.Second
	// MaxReconnects is how many automatic reconnects the window allows.
	MaxReconnects = 5
)

// Ledger records recent automatic reconnects.
type Ledger struct {
	window  time.Duration
	limit   int
	entries []time.Time
}

func NewLedger(window time.Duration, limit int) *Ledger {
	if window <= 0 {
		window = ReconnectWindow
	}
	if limit <= 0 {
		limit = MaxReconnects
	}
	return &Ledger{window: window, limit: limit}
}

// Allow prunes entries older than the window and decides whether a
// disconnect at now may be followed by a reconnect. The disconnect being
// decided counts toward the limit. Allowed attempts are recorded.
func (l *Ledger) Allow(now time.Time) bool {
	kept := l.entries[:0]
	for _, t := range l.entries {
		if now.Sub(t) < l.window {
			kept = append(kept, t)
		}
	}
	l.entries = kept

	if len(l.entries)+1 > l.limit {
		return false
	}
	l.entries = append(l.entries, now)
	return true
}

// Reset forgets every recorded attempt.
func (l *Ledger) Reset() {
	l.entries = l.entries[:0]
}

// Len returns the number of recorded attempts, pruned or not.
func (l *Ledger) Len() int {
	return len(l.entries)
}
