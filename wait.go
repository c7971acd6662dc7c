package await

import (
	"errors"
	"time"
)

// NoTimeout disables the deadline of a timeout-taking combinator.
const NoTimeout = time.Duration(-1)

// WaitPolicy selects when Wait returns.
type WaitPolicy int

const (
	// AllCompleted returns once every future is decided.
	AllCompleted WaitPolicy = iota
	// FirstCompleted returns once any future is decided.
	FirstCompleted
	// FirstException returns once any future fails with a
	// non-cancellation error, or all are decided.
	FirstException
)

// Wait suspends until the policy is satisfied or the timeout elapses,
// then partitions fs into decided and still-pending futures. It never
// raises the children's errors itself; inspect each member of done.
// On timeout the unfinished futures are returned in pending and left
// running, not cancelled. Cancelling the task calling Wait aborts
// only the wait: the error is returned and the children are
// untouched.
//
// An empty fs is a usage error.
func Wait(co *Coro, fs []FutureLike, timeout time.Duration, policy WaitPolicy) (done, pending []FutureLike, err error) {
	if len(fs) == 0 {
		return nil, nil, errors.New("await: Wait with an empty set of futures")
	}
	l := co.Loop()
	for _, f := range fs {
		if f.Loop() != l {
			panic("await: Wait on a future from a different loop")
		}
	}

	waiter := l.NewFuture()
	release := func() {
		if !waiter.Done() {
			if err := waiter.SetResult(nil); err != nil {
				panic(err)
			}
		}
	}

	var th *Timer
	if timeout >= 0 {
		th = l.CallLater(timeout, release)
	}

	counter := len(fs)
	onDone := func(f FutureLike) {
		counter--
		if counter <= 0 ||
			policy == FirstCompleted ||
			(policy == FirstException && !f.Cancelled() && f.storedErr() != nil) {
			if th != nil {
				th.Cancel()
			}
			release()
		}
	}
	cbs := make([]*Callback, len(fs))
	for i, f := range fs {
		cbs[i] = f.AddDoneCallback(onDone, nil)
	}

	_, werr := co.Await(waiter)

	if th != nil {
		th.Cancel()
	}
	for i, f := range fs {
		f.RemoveDoneCallback(cbs[i])
	}
	if werr != nil {
		return nil, nil, werr
	}

	for _, f := range fs {
		if f.Done() {
			done = append(done, f)
		} else {
			pending = append(pending, f)
		}
	}
	return done, pending, nil
}
