package await

import (
	"errors"

	"github.com/webriots/coro"
)

// resumption is what the driver sends into a suspended computation:
// the awaited result, or the error (possibly a cancellation) raised
// at the suspension point.
type resumption struct {
	value any
	err   error
}

// yielded crosses the coroutine boundary outward: the awaitable the
// body suspended on.
type yielded struct {
	await Awaitable
}

// outcome is the result of one drive: exactly one of a suspension on
// another awaitable, a final value, or a final error.
type outcome struct {
	await Awaitable
	value any
	err   error
}

// A Body is the function a Coro runs. It suspends through co.Await
// and finishes by returning. Errors are returned as values; a
// returned (or re-returned) CancelledError terminates the owning task
// as cancelled.
type Body func(co *Coro) (any, error)

// A Coro is one resumable computation. It is driven by exactly one
// Task for its whole lifetime; handing the same Coro to a second task
// is a structural bug.
type Coro struct {
	fn      Body
	yield   func(yielded) resumption
	resume  func(resumption) (yielded, bool)
	release func()
	task    *Task
	started bool
	done    bool
	retVal  any
	retErr  error
}

// New creates a resumable computation from fn. The body does not run
// until the Coro is wrapped in a Task and the task takes its first
// step.
func New(fn Body) *Coro {
	c := &Coro{fn: fn}
	c.resume, c.release = coro.New(
		func(yield func(yielded) resumption, suspend func() resumption) (z yielded) {
			// coro's cancel contract: cancellation reaches a suspended
			// body as a panic wrapping coro.ErrCanceled, and the body
			// must recover it for cancel() to return cleanly.
			defer func() {
				if p := recover(); p != nil {
					if err, ok := p.(error); ok && errors.Is(err, coro.ErrCanceled) {
						return
					}
					panic(p)
				}
			}()
			c.yield = yield
			c.retVal, c.retErr = c.fn(c)
			return
		},
	)
	return c
}

// Await suspends the computation on w and returns w's result once it
// is decided. Awaiting an already-decided future returns immediately,
// without a suspension point. The error return is how cancellation
// reaches the body: return it (or any other error) to finish, or
// ignore it to keep running.
func (c *Coro) Await(w Awaitable) (any, error) {
	if c.yield == nil {
		panic("await: Await called outside a running task")
	}
	if fl, ok := w.(FutureLike); ok {
		// Foreign futures are rejected even when already decided;
		// their outcome must never leak across scheduling domains.
		if fl.Loop() != c.task.loop {
			panic("await: task " + c.task.name + " awaits a future from another loop")
		}
		if fl.Done() {
			return fl.Result()
		}
	}
	in := c.yield(yielded{await: w})
	return in.value, in.err
}

// Task returns the task driving this computation, once one owns it.
func (c *Coro) Task() *Task { return c.task }

// Loop returns the scheduling domain of the owning task.
func (c *Coro) Loop() *Loop { return c.task.loop }

// Context returns the owning task's context snapshot. Mutations made
// through it are visible to this task's later steps and to callbacks
// it schedules, never to other tasks.
func (c *Coro) Context() *Context { return c.task.ctx }

// drive advances the computation with in. An error delivered before
// the first step fails the computation without ever starting the
// body.
func (c *Coro) drive(in resumption) outcome {
	if c.done {
		panic("await: coroutine driven after completion")
	}
	if !c.started {
		if in.err != nil {
			c.done = true
			c.release()
			return outcome{err: in.err}
		}
		c.started = true
	}
	y, more := c.resume(in)
	if more {
		return outcome{await: y.await}
	}
	c.done = true
	return outcome{value: c.retVal, err: c.retErr}
}

// dispose tears down a suspended computation without resuming it.
// Used by Loop.Close to release the underlying coroutine.
func (c *Coro) dispose() {
	if c.done {
		return
	}
	c.done = true
	c.release()
}
