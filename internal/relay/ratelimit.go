package relay

import "time"

// WindowDecision is the evaluation of a single window.
type WindowDecision struct {
	Limit    WindowLimit
	Count    int
	Violated bool
}

// Decision is the overall rate-limit verdict.
type Decision struct {
	Allowed bool
	Windows []WindowDecision
	// Tightest is the shortest violated window; zero when Allowed.
	Tightest WindowLimit
}

// Evaluate counts Sent entries per window. Every window is evaluated, and the
// verdict is the AND across all of them.
func Evaluate(history []HistoryEntry, limits DeliveryLimits, now time.Time) Decision {
	d := Decision{Allowed: true, Windows: make([]WindowDecision, 0, len(limits.Windows))}
	for _, w := range limits.Windows {
		since := now.Add(-w.Window)
		n := 0
		for _, e := range history {
			if e.Outcome != OutcomeSent {
				continue
			}
			if !e.Timestamp.Before(since) {
				n++
			}
		}
		wd := WindowDecision{Limit: w, Count: n, Violated: n >= w.Max}
		d.Windows = append(d.Windows, wd)
		if wd.Violated {
			if d.Allowed || w.Window < d.Tightest.Window {
				d.Tightest = w
			}
			d.Allowed = false
		}
	}
	return d
}

// Allowed reports whether another delivery fits every window.
func Allowed(history []HistoryEntry, limits DeliveryLimits, now time.Time) bool {
	return Evaluate(history, limits, now).Allowed
}
