package await

import (
	"fmt"
	"runtime"
)

type futureState uint8

const (
	statePending futureState = iota
	stateCancelled
	stateFinished
)

func (s futureState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateCancelled:
		return "cancelled"
	default:
		return "finished"
	}
}

// An Awaitable is anything a computation can suspend on: a Coro, a
// Future or a Task. The protocol is a single operation, drive, which
// advances the awaitable with an incoming result or error and reports
// whether it suspended, finished or failed.
type Awaitable interface {
	drive(in resumption) outcome
}

// A FutureLike is an Awaitable backed by Future state: it is owned by
// a loop, decided at most once, and supports done callbacks and
// cancellation. *Future and *Task implement it.
type FutureLike interface {
	Awaitable

	// Loop returns the scheduling domain the future belongs to.
	Loop() *Loop
	// Done reports whether the future is decided.
	Done() bool
	// Cancelled reports whether the future ended cancelled.
	Cancelled() bool
	// Result returns the stored value, or the stored error, or a
	// CancelledError after cancellation. On a pending future it
	// returns an error wrapping ErrInvalidState.
	Result() (any, error)
	// Cancel requests cancellation. It returns false when the future
	// is already decided; cancellation never wins against a decided
	// outcome.
	Cancel(msg string) bool
	// AddDoneCallback registers fn to be scheduled, under ctx, once
	// the future is decided. A nil ctx captures the loop's active
	// context. The returned handle identifies the registration for
	// RemoveDoneCallback.
	AddDoneCallback(fn DoneFunc, ctx *Context) *Callback
	// RemoveDoneCallback unregisters a callback that has not fired
	// yet, reporting whether it was found.
	RemoveDoneCallback(cb *Callback) bool

	storedErr() error
	cancelMessage() string
	markRetrieved()
}

// DoneFunc is a done callback. It receives the future that was
// decided.
type DoneFunc func(f FutureLike)

// Callback identifies one done-callback registration.
type Callback struct {
	fn  DoneFunc
	ctx *Context
}

// Future is a single-assignment result cell. It is decided exactly
// once, by SetResult, SetException or Cancel, and every registered
// callback is then scheduled on the loop in FIFO registration order,
// each under its own captured context. Futures are not safe for
// concurrent use; they belong to their loop's goroutine.
type Future struct {
	loop      *Loop
	self      FutureLike
	label     string
	state     futureState
	result    any
	err       error
	cancelMsg string
	info      *abandonInfo
	callbacks []*Callback
	onDone    func()
}

// abandonInfo mirrors the state the collection-time report needs. It
// must never point back at the future, the task embedding it, or any
// of their callbacks: the cleanup argument is held until the cleanup
// runs, and a back-reference would keep the future reachable forever.
type abandonInfo struct {
	loop      *Loop
	label     string
	state     futureState
	err       error
	retrieved bool
}

// NewFuture creates a pending Future owned by l.
func (l *Loop) NewFuture() *Future {
	return newFuture(l, "Future")
}

func newFuture(l *Loop, label string) *Future {
	info := &abandonInfo{loop: l, label: label}
	f := &Future{loop: l, label: label, info: info}
	f.self = f
	runtime.AddCleanup(f, reportAbandoned, info)
	return f
}

// reportAbandoned fires when a future is collected. A future dropped
// while pending, or dropped with an error nobody retrieved, is
// reported exactly once to the loop's unhandled-error hook.
func reportAbandoned(info *abandonInfo) {
	switch {
	case info.state == statePending:
		info.loop.reportError(ErrorEvent{
			Message: info.label + " was destroyed while pending",
		})
	case info.err != nil && !info.retrieved:
		info.loop.reportError(ErrorEvent{
			Message: info.label + " error was never retrieved",
			Err:     info.err,
		})
	}
}

// Loop returns the scheduling domain that owns f.
func (f *Future) Loop() *Loop { return f.loop }

// Done reports whether f is decided.
func (f *Future) Done() bool { return f.state != statePending }

// Cancelled reports whether f ended cancelled.
func (f *Future) Cancelled() bool { return f.state == stateCancelled }

// Result returns the stored value or error. A cancelled future yields
// a CancelledError; a pending one an error wrapping ErrInvalidState.
func (f *Future) Result() (any, error) {
	switch f.state {
	case statePending:
		return nil, fmt.Errorf("%w: result of %s is not ready", ErrInvalidState, f.label)
	case stateCancelled:
		return nil, NewCancelled(f.cancelMsg)
	default:
		f.info.retrieved = true
		if f.err != nil {
			return nil, f.err
		}
		return f.result, nil
	}
}

// SetResult decides f with a value. It fails with ErrInvalidState if
// f is already decided.
func (f *Future) SetResult(v any) error {
	if f.state != statePending {
		return fmt.Errorf("%w: %s is already %s", ErrInvalidState, f.label, f.state)
	}
	f.result = v
	f.finish(stateFinished)
	return nil
}

// SetException decides f with an error. It fails with ErrInvalidState
// if f is already decided, or if err is a cancellation marker used as
// a plain value; cancellation is requested through Cancel.
func (f *Future) SetException(err error) error {
	if f.state != statePending {
		return fmt.Errorf("%w: %s is already %s", ErrInvalidState, f.label, f.state)
	}
	if err == nil {
		return fmt.Errorf("%w: SetException with nil error", ErrInvalidState)
	}
	if IsCancelled(err) {
		return fmt.Errorf("%w: %v is a cancellation signal, use Cancel", ErrInvalidState, err)
	}
	f.err = err
	f.info.err = err
	f.finish(stateFinished)
	return nil
}

// Cancel decides f as cancelled and schedules its callbacks. It is a
// no-op returning false once f is decided.
func (f *Future) Cancel(msg string) bool {
	if f.state != statePending {
		return false
	}
	f.cancelMsg = msg
	f.finish(stateCancelled)
	return true
}

// finish performs the one terminal transition and schedules every
// registered callback on the loop, preserving FIFO order.
func (f *Future) finish(s futureState) {
	f.state = s
	f.info.state = s
	cbs := f.callbacks
	f.callbacks = nil
	for _, cb := range cbs {
		f.scheduleCallback(cb)
	}
	if f.onDone != nil {
		f.onDone()
	}
}

func (f *Future) scheduleCallback(cb *Callback) {
	fn, fl := cb.fn, f.self
	f.loop.CallSoon(func() { fn(fl) }, cb.ctx)
}

// AddDoneCallback registers fn under ctx. Callbacks registered after
// f is decided are scheduled immediately; none is ever invoked inline.
func (f *Future) AddDoneCallback(fn DoneFunc, ctx *Context) *Callback {
	if ctx == nil {
		ctx = f.loop.activeContext()
	}
	cb := &Callback{fn: fn, ctx: ctx}
	if f.state != statePending {
		f.scheduleCallback(cb)
		return cb
	}
	f.callbacks = append(f.callbacks, cb)
	return cb
}

// RemoveDoneCallback unregisters cb, reporting whether it was still
// pending.
func (f *Future) RemoveDoneCallback(cb *Callback) bool {
	for i, have := range f.callbacks {
		if have == cb {
			f.callbacks = append(f.callbacks[:i], f.callbacks[i+1:]...)
			return true
		}
	}
	return false
}

// drive implements the awaitable protocol: a pending future suspends
// its awaiter on itself, a decided one resumes it immediately.
func (f *Future) drive(resumption) outcome {
	if f.state == statePending {
		return outcome{await: f.self}
	}
	v, err := f.Result()
	return outcome{value: v, err: err}
}

func (f *Future) storedErr() error      { return f.err }
func (f *Future) cancelMessage() string { return f.cancelMsg }
func (f *Future) markRetrieved()        { f.info.retrieved = true }
