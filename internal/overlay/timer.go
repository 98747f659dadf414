package overlay

import "time"

// Timer is a cancellable callback owned by the entity it protects.
// Stop and expiry both happen on the node's control context, so an expiry
// already queued behind a Stop is discarded.
type Timer struct {
	t       *time.Timer
	stopped bool
}

// Stop cancels the timer. Stopping twice is a no-op.
func (t *Timer) Stop() {
	if t == nil || t.stopped {
		return
	}
	t.stopped = true
	if t.t != nil {
		t.t.Stop()
	}
}

// Active reports whether the timer may still fire
func (t *Timer) Active() bool {
	return t != nil && !t.stopped
}

// scheduler creates timers whose callbacks run on a single control context
type scheduler interface {
	after(d time.Duration, f func()) *Timer
	every(d time.Duration, f func()) *Timer
}

// after runs f once on the node's inbox after d
func (n *Node) after(d time.Duration, f func()) *Timer {
	tm := &Timer{}
	tm.t = time.AfterFunc(d, func() {
		n.Act(nil, func() {
			if tm.stopped {
				return
			}
			tm.stopped = true
			f()
		})
	})
	return tm
}

// every runs f on the node's inbox each d until stopped
func (n *Node) every(d time.Duration, f func()) *Timer {
	tm := &Timer{}
	var arm func()
	arm = func() {
		tm.t = time.AfterFunc(d, func() {
			n.Act(nil, func() {
				if tm.stopped {
					return
				}
				arm()
				f()
			})
		})
	}
	arm()
	return tm
}
