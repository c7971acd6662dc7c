package await

import (
	"context"
	"fmt"
	"runtime/trace"
)

const (
	taskTraceType     = "await-task"
	taskTraceCategory = "await"
)

// A Task drives one resumable computation to completion. It is a
// Future: awaiting a task suspends on its final result, and the task
// ends Finished, Failed or Cancelled exactly once.
//
// Cancellation is cooperative, never preemptive. Cancel only
// guarantees that a CancelledError is raised into the computation at
// its next suspension or resumption point; the body may catch it and
// keep running, in which case the request is redelivered at every
// later suspension point until the computation actually terminates.
type Task struct {
	*Future

	aw       Awaitable
	ctx      *Context
	name     string
	waitedOn FutureLike
	waitCB   *Callback

	mustCancel      bool
	cancelRequested bool
	cancelMsg       string

	tctx  context.Context
	ttask *trace.Task
}

type taskOptions struct {
	name  string
	ctx   *Context
	eager bool
}

// TaskOption configures NewTask.
type TaskOption func(*taskOptions)

// WithName names the task for diagnostics. The default is "Task-N".
func WithName(name string) TaskOption {
	return func(o *taskOptions) { o.name = name }
}

// WithContext runs the task under ctx instead of a fork of the
// context active at creation. The task takes ownership of ctx.
func WithContext(ctx *Context) TaskOption {
	return func(o *taskOptions) { o.ctx = ctx }
}

// WithEagerStart runs the task's first step synchronously inside
// NewTask. If the body finishes or fails before its first suspension
// the returned task is already done; otherwise it proceeds exactly
// like a deferred task. Eager start is an optimization only: context
// isolation and cancellation behave identically on both paths.
func WithEagerStart() TaskOption {
	return func(o *taskOptions) { o.eager = true }
}

// NewTask wraps aw in a task on l and schedules its first step. The
// awaitable is owned by the task for its whole lifetime; wrapping a
// Coro that already belongs to another task is a structural bug.
func NewTask(l *Loop, aw Awaitable, opts ...TaskOption) *Task {
	var o taskOptions
	for _, opt := range opts {
		opt(&o)
	}

	if c, ok := aw.(*Coro); ok && c.task != nil {
		panic("await: coroutine is already owned by task " + c.task.name)
	}

	l.taskSeq++
	name := o.name
	if name == "" {
		name = fmt.Sprintf("Task-%d", l.taskSeq)
	}
	ctx := o.ctx
	if ctx == nil {
		ctx = l.activeContext().Fork()
	}

	t := &Task{
		Future: newFuture(l, name),
		aw:     aw,
		ctx:    ctx,
		name:   name,
	}
	t.self = t
	if c, ok := aw.(*Coro); ok {
		c.task = t
	}

	t.tctx, t.ttask = trace.NewTask(l.tctx, taskTraceType)
	t.Future.onDone = func() {
		l.reg.remove(t)
		t.ttask.End()
		if l.obs != nil {
			l.obs.TaskDone(t)
		}
	}

	l.reg.add(t)
	if l.obs != nil {
		l.obs.TaskSpawned(t)
	}
	trace.Log(t.tctx, taskTraceCategory, "SPAWN "+name)

	if o.eager {
		l.runWith(ctx, func() { t.run(resumption{}, true) })
	} else {
		l.CallSoon(func() { t.run(resumption{}, false) }, ctx)
	}
	return t
}

// Spawn creates a task from a plain body function. It is shorthand
// for NewTask(l, New(fn), opts...).
func Spawn(l *Loop, fn Body, opts ...TaskOption) *Task {
	return NewTask(l, New(fn), opts...)
}

// Name returns the task's diagnostic name.
func (t *Task) Name() string { return t.name }

// Context returns the task's context snapshot.
func (t *Task) Context() *Context { return t.ctx }

// WaitingOn returns the future currently blocking the task, for
// introspection only. It is nil while the task is runnable or done.
func (t *Task) WaitingOn() FutureLike { return t.waitedOn }

// Cancel requests cancellation of the task. If the task already
// finished it returns false. Otherwise the request is recorded,
// forwarded to the future the task is suspended on when there is one,
// and true is returned. The CancelledError reaches the body at its
// next suspension or resumption point.
func (t *Task) Cancel(msg string) bool {
	if t.Done() {
		return false
	}
	trace.Log(t.tctx, taskTraceCategory, "CANCEL "+t.name)
	t.cancelRequested = true
	t.cancelMsg = msg
	if t.waitedOn != nil && t.waitedOn.Cancel(msg) {
		return true
	}
	// Either not started yet (first step already scheduled) or the
	// waiter is decided (its wakeup is already scheduled); the next
	// step delivers the cancellation.
	t.mustCancel = true
	return true
}

// wakeup resumes the task with the result of the future it was
// suspended on. It runs as a done callback under the task's context.
func (t *Task) wakeup(f FutureLike) {
	v, err := f.Result()
	t.run(resumption{value: v, err: err}, false)
}

// run performs one step of the task state machine. Eager steps swap
// the current task instead of entering it, because they can nest
// inside another task's step.
func (t *Task) run(in resumption, eager bool) {
	if t.Done() {
		panic("await: step on completed task " + t.name)
	}
	if t.mustCancel {
		if !IsCancelled(in.err) {
			in = resumption{err: NewCancelled(t.cancelMsg)}
		}
		t.mustCancel = false
	}
	t.waitedOn = nil
	t.waitCB = nil

	trace.Log(t.tctx, taskTraceCategory, "STEP "+t.name)

	var out outcome
	func() {
		if eager {
			prev := t.loop.reg.swap(t)
			defer t.loop.reg.swap(prev)
		} else {
			t.loop.reg.enter(t)
			defer t.loop.reg.leave(t)
		}
		out = t.aw.drive(in)
	}()

	switch {
	case out.await != nil:
		t.suspendOn(out.await)
	case out.err != nil:
		if IsCancelled(out.err) {
			t.Future.Cancel(cancelMsgOf(out.err))
		} else {
			if err := t.Future.SetException(out.err); err != nil {
				panic(err)
			}
		}
	default:
		if t.mustCancel {
			// Cancellation arrived during this step and was never
			// delivered; it supersedes the value.
			t.mustCancel = false
			t.Future.Cancel(t.cancelMsg)
		} else if err := t.Future.SetResult(out.value); err != nil {
			panic(err)
		}
	}
}

// suspendOn parks the task on w until it is decided. Bare coroutines
// are wrapped as child tasks. A pending cancel request is forwarded
// to the new waiter immediately rather than waiting for the next
// tick; this is what redelivers a swallowed cancellation at every
// subsequent suspension point.
func (t *Task) suspendOn(w Awaitable) {
	fl, ok := w.(FutureLike)
	if !ok {
		fl = NewTask(t.loop, w)
	}
	if fl == FutureLike(t) {
		panic("await: task " + t.name + " cannot await itself")
	}
	if fl.Loop() != t.loop {
		panic("await: task " + t.name + " awaits a future from another loop")
	}
	t.waitCB = fl.AddDoneCallback(t.wakeup, t.ctx)
	t.waitedOn = fl

	if t.cancelRequested {
		if fl.Cancel(t.cancelMsg) {
			t.mustCancel = false
		} else {
			t.mustCancel = true
		}
	}
}

// releaseCoro tears down the underlying computation without resuming
// it. Only Loop.Close uses it, to unwind tasks that will never run
// again.
func (t *Task) releaseCoro() {
	if c, ok := t.aw.(*Coro); ok {
		c.dispose()
	}
}
