package await

import "time"

// AsCompleted turns a set of awaitables into futures that are decided
// in completion order: the first returned future carries the outcome
// of whichever input finishes first, and so on. Inputs that are not
// futures are wrapped as tasks. Duplicate inputs each claim their own
// slot. With a non-negative timeout, every slot still undecided at
// the deadline fails with a TimeoutError; NoTimeout disables the
// deadline.
func AsCompleted(l *Loop, aws []Awaitable, timeout time.Duration) []*Future {
	n := len(aws)
	slots := make([]*Future, n)
	for i := range slots {
		slots[i] = newFuture(l, "AsCompleted")
	}
	if n == 0 {
		return slots
	}

	var th *Timer
	next := 0

	fill := func(fl FutureLike) {
		if next >= n {
			// Every slot already owns an outcome; the surplus
			// completion is consumed so its error is not reported as
			// abandoned.
			if !fl.Cancelled() {
				fl.markRetrieved()
			}
			return
		}
		slot := slots[next]
		next++
		switch {
		case fl.Cancelled():
			slot.Cancel(fl.cancelMessage())
		case fl.storedErr() != nil:
			fl.markRetrieved()
			if err := slot.SetException(fl.storedErr()); err != nil {
				panic(err)
			}
		default:
			v, _ := fl.Result()
			if err := slot.SetResult(v); err != nil {
				panic(err)
			}
		}
		if next == n && th != nil {
			th.Cancel()
		}
	}

	seen := make(map[Awaitable]FutureLike, n)
	for _, aw := range aws {
		fl, ok := seen[aw]
		if !ok {
			fl = ensureFuture(l, aw)
			seen[aw] = fl
		}
		fl.AddDoneCallback(func(fl FutureLike) { fill(fl) }, nil)
	}

	if timeout >= 0 {
		th = l.CallLater(timeout, func() {
			for next < n {
				slot := slots[next]
				next++
				if err := slot.SetException(&TimeoutError{}); err != nil {
					panic(err)
				}
			}
		})
	}
	return slots
}
