package overlay

import "time"

// manualScheduler fires timers only when the test advances its clock
type manualScheduler struct {
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	at     time.Duration
	period time.Duration
	f      func()
	tm     *Timer
}

func (s *manualScheduler) after(d time.Duration, f func()) *Timer {
	tm := &Timer{}
	s.timers = append(s.timers, &manualTimer{at: s.now + d, f: f, tm: tm})
	return tm
}

func (s *manualScheduler) every(d time.Duration, f func()) *Timer {
	tm := &Timer{}
	s.timers = append(s.timers, &manualTimer{at: s.now + d, period: d, f: f, tm: tm})
	return tm
}

// advance moves the clock forward, firing due timers in deadline order
func (s *manualScheduler) advance(d time.Duration) {
	target := s.now + d
	for {
		var next *manualTimer
		for _, mt := range s.timers {
			if !mt.tm.Active() || mt.at > target {
				continue
			}
			if next == nil || mt.at < next.at {
				next = mt
			}
		}
		if next == nil {
			break
		}

		s.now = next.at
		if next.period > 0 {
			next.at += next.period
		} else {
			next.tm.stopped = true
		}
		next.f()
	}
	s.now = target
}

func (s *manualScheduler) active() int {
	count := 0
	for _, mt := range s.timers {
		if mt.tm.Active() {
			count++
		}
	}
	return count
}
