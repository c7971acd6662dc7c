package await

import (
	"container/heap"
	"time"
)

// A Timer is a cancellable handle to a delayed callback registered
// with CallLater.
type Timer struct {
	loop *Loop
	when time.Time
	fn   func()
	ctx  *Context
	idx  int
	dead bool
}

// When returns the time the callback is due.
func (tm *Timer) When() time.Time { return tm.when }

// Cancel withdraws the callback. Cancelling a fired or already
// cancelled timer is a no-op. Combinators must cancel every timer
// they no longer need so no scheduled work leaks.
func (tm *Timer) Cancel() {
	if tm.dead {
		return
	}
	tm.dead = true
	heap.Remove(&tm.loop.timers, tm.idx)
	if tm.loop.obs != nil {
		tm.loop.obs.TimerDone()
	}
}

// CallLater schedules fn to run once delay has elapsed, under the
// context active at registration time.
func (l *Loop) CallLater(delay time.Duration, fn func()) *Timer {
	tm := &Timer{
		loop: l,
		when: l.Time().Add(delay),
		fn:   fn,
		ctx:  l.activeContext(),
	}
	heap.Push(&l.timers, tm)
	if l.obs != nil {
		l.obs.TimerScheduled()
	}
	return tm
}

// TimerCount returns the number of pending delayed callbacks. Useful
// for asserting that timeout combinators leak no timers.
func (l *Loop) TimerCount() int { return len(l.timers) }

// fireDueTimers moves every due timer onto the ready queue in time
// order.
func (l *Loop) fireDueTimers() {
	now := l.Time()
	for len(l.timers) > 0 && !l.timers[0].when.After(now) {
		tm := heap.Pop(&l.timers).(*Timer)
		tm.dead = true
		l.ready.PushBack(callback{fn: tm.fn, ctx: tm.ctx})
		if l.obs != nil {
			l.obs.TimerDone()
			l.obs.CallbackScheduled()
		}
	}
}

// timerHeap is a min-heap of timers ordered by due time.
type timerHeap []*Timer

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx = i
	h[j].idx = j
}

func (h *timerHeap) Push(x any) {
	tm := x.(*Timer)
	tm.idx = len(*h)
	*h = append(*h, tm)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	tm := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return tm
}
