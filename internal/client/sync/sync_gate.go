package sync

import "time"

// Gate parks the worker between cycles. Wakes are not counted: any number of
// Wake calls before a Wait release exactly one Wait.
type Gate struct {
	signal     chan struct{}
	reschedule chan struct{}
}

func NewGate() *Gate {
	return &Gate{
		signal:     make(chan struct{}, 1),
		reschedule: make(chan struct{}, 1),
	}
}

// Wake releases the current or next Wait. It never blocks.
func (g *Gate) Wake() {
	select {
	case g.signal <- struct{}{}:
	default:
	}
}

// Reschedule makes a parked WaitFor recompute its timeout without releasing
// it. It never blocks.
func (g *Gate) Reschedule() {
	select {
	case g.reschedule <- struct{}{}:
	default:
	}
}

// Wait blocks until woken, until timeout elapses or until stop is closed.
// It reports whether the release was caused by a Wake.
func (g *Gate) Wait(stop <-chan struct{}, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	return g.WaitFor(stop, func() time.Duration {
		return time.Until(deadline)
	})
}

// WaitFor is Wait with a timeout that is computed by next, and computed again
// on every Reschedule.
func (g *Gate) WaitFor(stop <-chan struct{}, next func() time.Duration) bool {
	for {
		timeout := next()
		if timeout <= 0 {
			select {
			case <-g.signal:
				return true
			default:
				return false
			}
		}

		timer := time.NewTimer(timeout)
		select {
		case <-g.signal:
			timer.Stop()
			return true
		case <-stop:
			timer.Stop()
			return false
		case <-timer.C:
			return false
		case <-g.reschedule:
			timer.Stop()
		}
	}
}
