package await

import "time"

// Sleep suspends the calling task for d. It returns early with the
// delivered error when the task is cancelled, and cancels its timer
// so no scheduled work leaks.
func Sleep(co *Coro, d time.Duration) error {
	l := co.Loop()
	f := l.NewFuture()
	th := l.CallLater(d, func() {
		if !f.Done() {
			if err := f.SetResult(nil); err != nil {
				panic(err)
			}
		}
	})
	if _, err := co.Await(f); err != nil {
		th.Cancel()
		return err
	}
	return nil
}

// WaitFor awaits aw with a deadline. Non-future inputs are wrapped as
// tasks. On timeout the inner task is cancelled and WaitFor keeps
// waiting until that cancellation truly lands, re-issuing it as
// often as the inner computation swallows it, before returning a
// TimeoutError; no task is ever left orphaned. A zero timeout whose
// result is not immediately available times out without ever resuming
// an unstarted computation.
//
// If the task calling WaitFor is itself cancelled, the cancellation
// is forwarded to the inner task and WaitFor still drains it to its
// true final resolution before returning the cancellation error. A
// negative timeout (NoTimeout) waits indefinitely.
func WaitFor(co *Coro, aw Awaitable, timeout time.Duration) (any, error) {
	l := co.Loop()
	if timeout < 0 {
		return co.Await(ensureFuture(l, aw))
	}

	f := ensureFuture(l, aw)
	if f.Done() {
		return f.Result()
	}

	if timeout == 0 {
		if cerr := drainCancel(co, f, ""); cerr != nil {
			return nil, cerr
		}
		return timeoutResult(f)
	}

	waiter := l.NewFuture()
	release := func() {
		if !waiter.Done() {
			if err := waiter.SetResult(nil); err != nil {
				panic(err)
			}
		}
	}
	th := l.CallLater(timeout, release)
	cb := f.AddDoneCallback(func(FutureLike) { release() }, nil)

	_, werr := co.Await(waiter)
	th.Cancel()
	f.RemoveDoneCallback(cb)

	if werr != nil {
		// WaitFor itself was cancelled. A ready result still wins;
		// otherwise forward the cancellation and drain the inner task
		// before re-raising.
		if f.Done() {
			return f.Result()
		}
		drainCancel(co, f, cancelMsgOf(werr))
		return nil, werr
	}
	if f.Done() {
		return f.Result()
	}

	// Deadline elapsed first.
	if cerr := drainCancel(co, f, ""); cerr != nil {
		// An external cancellation arrived while draining; it
		// supersedes the timeout.
		return nil, cerr
	}
	return timeoutResult(f)
}

// timeoutResult maps the drained inner future onto WaitFor's return:
// a landed cancellation becomes a TimeoutError, anything else (the
// computation suppressed the cancellation and settled on its own)
// passes through.
func timeoutResult(f FutureLike) (any, error) {
	v, err := f.Result()
	if IsCancelled(err) {
		return nil, &TimeoutError{cause: err}
	}
	return v, err
}

// drainCancel cancels f and waits until it is actually decided,
// surviving the caller's own cancellation: if the calling task is
// cancelled while draining, the loop keeps waiting for f and the
// caller's cancellation error is returned only once f has settled.
func drainCancel(co *Coro, f FutureLike, msg string) error {
	var callerErr error
	for !f.Done() {
		waiter := co.Loop().NewFuture()
		cb := f.AddDoneCallback(func(FutureLike) {
			if !waiter.Done() {
				if err := waiter.SetResult(nil); err != nil {
					panic(err)
				}
			}
		}, nil)
		f.Cancel(msg)
		_, err := co.Await(waiter)
		f.RemoveDoneCallback(cb)
		if err != nil && callerErr == nil {
			callerErr = err
		}
	}
	return callerErr
}
