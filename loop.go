package await

import (
	"context"
	"log"
	"time"

	"github.com/gammazero/deque"
)

const (
	// submitBuffer bounds the number of cross-thread submissions that
	// can queue up before CallSoonThreadsafe blocks.
	submitBuffer = 128
)

// callback is one scheduled unit of work with the context snapshot it
// runs under.
type callback struct {
	fn  func()
	ctx *Context
}

// ErrorEvent is the structured record handed to the unhandled-error
// hook: a future or task destroyed while pending, or an error stored
// on a future that nobody retrieved. The message carries the future's
// label or task name; the future itself is already unreachable when
// the report fires.
type ErrorEvent struct {
	Message string
	Err     error
}

// A Loop is one scheduling domain: a FIFO ready queue, a timer heap,
// the current-task registry and a thread-safe submission channel.
//
// Everything except CallSoonThreadsafe must be called from the
// goroutine running the loop. Ordering between concurrent operations
// is determined entirely by the FIFO ready queue and the time-ordered
// timer heap.
type Loop struct {
	ready       deque.Deque[callback]
	timers      timerHeap
	submissions chan callback
	reg         *registry
	ctx         *Context
	obs         Observer
	errHook     func(ErrorEvent)
	taskSeq     int
	running     bool
	closed      bool
	tctx        context.Context
}

type loopOptions struct {
	obs     Observer
	errHook func(ErrorEvent)
}

// LoopOption configures NewLoop.
type LoopOption func(*loopOptions)

// WithObserver installs an observer for loop events.
func WithObserver(obs Observer) LoopOption {
	return func(o *loopOptions) { o.obs = obs }
}

// WithErrorHook replaces the default unhandled-error hook. The hook
// may be invoked from the runtime's finalizer goroutine.
func WithErrorHook(fn func(ErrorEvent)) LoopOption {
	return func(o *loopOptions) { o.errHook = fn }
}

// NewLoop creates an idle scheduling domain.
func NewLoop(opts ...LoopOption) *Loop {
	var o loopOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.errHook == nil {
		o.errHook = func(ev ErrorEvent) {
			if ev.Err != nil {
				log.Printf("await: %s: %v", ev.Message, ev.Err)
			} else {
				log.Printf("await: %s", ev.Message)
			}
		}
	}
	return &Loop{
		submissions: make(chan callback, submitBuffer),
		reg:         newRegistry(),
		ctx:         NewContext(),
		obs:         o.obs,
		errHook:     o.errHook,
		tctx:        context.Background(),
	}
}

// Time returns the loop's current time.
func (l *Loop) Time() time.Time { return time.Now() }

// Context returns the context snapshot the loop is currently running
// under.
func (l *Loop) Context() *Context { return l.activeContext() }

func (l *Loop) activeContext() *Context { return l.ctx }

// runWith executes fn with ctx active, restoring the previous ambient
// state afterwards regardless of outcome.
func (l *Loop) runWith(ctx *Context, fn func()) {
	prev := l.ctx
	l.ctx = ctx
	defer func() { l.ctx = prev }()
	fn()
}

// CallSoon schedules fn to run on the next pass of the loop, under
// ctx. A nil ctx captures the active context. Callbacks run in FIFO
// order.
func (l *Loop) CallSoon(fn func(), ctx *Context) {
	if ctx == nil {
		ctx = l.activeContext()
	}
	l.ready.PushBack(callback{fn: fn, ctx: ctx})
	if l.obs != nil {
		l.obs.CallbackScheduled()
	}
}

// CallSoonThreadsafe is the one cross-thread entry point: it hands fn
// to the loop's goroutine through the submission channel. All other
// Loop methods are single-threaded.
func (l *Loop) CallSoonThreadsafe(fn func(), ctx *Context) {
	l.submissions <- callback{fn: fn, ctx: ctx}
}

// RunUntil drives the loop until aw is decided and returns its
// result. Bare coroutines are wrapped in a task first. When idle the
// loop sleeps until the next timer is due, or blocks on the
// submission channel; the caller must arrange for progress.
func (l *Loop) RunUntil(aw Awaitable) (any, error) {
	if l.closed {
		panic("await: RunUntil on closed loop")
	}
	if l.running {
		panic("await: RunUntil called reentrantly")
	}
	fl := ensureFuture(l, aw)
	l.running = true
	defer func() { l.running = false }()
	for !fl.Done() {
		l.runOnce()
	}
	return fl.Result()
}

// runOnce runs at most one ready callback, firing due timers and
// draining submissions first.
func (l *Loop) runOnce() {
	l.drainSubmissions()
	l.fireDueTimers()

	if l.ready.Len() > 0 {
		cb := l.ready.PopFront()
		l.runWith(cb.ctx, cb.fn)
		return
	}

	if len(l.timers) > 0 {
		d := time.Until(l.timers[0].when)
		if d <= 0 {
			return
		}
		wake := time.NewTimer(d)
		select {
		case s := <-l.submissions:
			l.pushSubmission(s)
		case <-wake.C:
		}
		wake.Stop()
		return
	}

	// Nothing scheduled; only another thread can make progress.
	l.pushSubmission(<-l.submissions)
}

func (l *Loop) drainSubmissions() {
	for {
		select {
		case s := <-l.submissions:
			l.pushSubmission(s)
		default:
			return
		}
	}
}

func (l *Loop) pushSubmission(s callback) {
	if s.ctx == nil {
		s.ctx = l.activeContext()
	}
	l.ready.PushBack(s)
	if l.obs != nil {
		l.obs.CallbackScheduled()
	}
}

// Close releases the suspended computations of all live tasks and
// discards pending work. The loop must not be running.
func (l *Loop) Close() {
	if l.running {
		panic("await: Close on running loop")
	}
	if l.closed {
		return
	}
	l.closed = true
	for _, t := range l.reg.tasks() {
		t.releaseCoro()
	}
	l.ready.Clear()
	l.timers = nil
	for {
		select {
		case <-l.submissions:
		default:
			return
		}
	}
}

func (l *Loop) reportError(ev ErrorEvent) {
	l.errHook(ev)
}

// ensureFuture resolves aw to a FutureLike on l, wrapping bare
// coroutines in tasks. A future from another loop is rejected
// synchronously.
func ensureFuture(l *Loop, aw Awaitable) FutureLike {
	if fl, ok := aw.(FutureLike); ok {
		if fl.Loop() != l {
			panic("await: future belongs to a different loop")
		}
		return fl
	}
	return NewTask(l, aw)
}
