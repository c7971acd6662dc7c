package await

import "github.com/gammazero/deque"

// Lock is a mutual-exclusion primitive for tasks on one loop. It is
// not reentrant. Waiters acquire in FIFO order.
type Lock struct {
	_       noCopy
	loop    *Loop
	locked  bool
	waiters deque.Deque[*Future]
}

// NewLock creates an unlocked Lock owned by l.
func (l *Loop) NewLock() *Lock {
	return &Lock{loop: l}
}

// Acquire blocks the calling task until the lock is held. A cancelled
// waiter releases its queue slot; if the lock was handed to it in the
// meantime the hand-off is passed on to the next waiter.
func (lk *Lock) Acquire(co *Coro) error {
	if !lk.locked && lk.allWaitersCancelled() {
		lk.locked = true
		return nil
	}
	f := lk.loop.NewFuture()
	lk.waiters.PushBack(f)
	_, err := co.Await(f)
	lk.removeWaiter(f)
	if err != nil {
		if !lk.locked {
			lk.wakeFirst()
		}
		return err
	}
	lk.locked = true
	return nil
}

// Release unlocks the lock and wakes the first live waiter. It panics
// when the lock is not held.
func (lk *Lock) Release() {
	if !lk.locked {
		panic("await: Lock is not acquired")
	}
	lk.locked = false
	lk.wakeFirst()
}

// Locked reports whether the lock is currently held.
func (lk *Lock) Locked() bool { return lk.locked }

func (lk *Lock) allWaitersCancelled() bool {
	for i := 0; i < lk.waiters.Len(); i++ {
		if !lk.waiters.At(i).Cancelled() {
			return false
		}
	}
	return true
}

func (lk *Lock) wakeFirst() {
	for lk.waiters.Len() > 0 {
		f := lk.waiters.PopFront()
		if !f.Done() {
			if err := f.SetResult(nil); err != nil {
				panic(err)
			}
			return
		}
	}
}

func (lk *Lock) removeWaiter(f *Future) {
	for i := 0; i < lk.waiters.Len(); i++ {
		if lk.waiters.At(i) == f {
			lk.waiters.Remove(i)
			return
		}
	}
}

// Event is a level-triggered flag. Wait suspends until Set has been
// called; Clear re-arms it.
type Event struct {
	_       noCopy
	loop    *Loop
	set     bool
	waiters deque.Deque[*Future]
}

// NewEvent creates an unset Event owned by l.
func (l *Loop) NewEvent() *Event {
	return &Event{loop: l}
}

// Set raises the flag and wakes every waiter.
func (ev *Event) Set() {
	if ev.set {
		return
	}
	ev.set = true
	for ev.waiters.Len() > 0 {
		f := ev.waiters.PopFront()
		if !f.Done() {
			if err := f.SetResult(nil); err != nil {
				panic(err)
			}
		}
	}
}

// Clear lowers the flag; subsequent Wait calls block until the next
// Set.
func (ev *Event) Clear() { ev.set = false }

// IsSet reports whether the flag is raised.
func (ev *Event) IsSet() bool { return ev.set }

// Wait suspends the calling task until the flag is set. It returns
// immediately when the flag is already raised.
func (ev *Event) Wait(co *Coro) error {
	if ev.set {
		return nil
	}
	f := ev.loop.NewFuture()
	ev.waiters.PushBack(f)
	if _, err := co.Await(f); err != nil {
		ev.removeWaiter(f)
		return err
	}
	return nil
}

func (ev *Event) removeWaiter(f *Future) {
	for i := 0; i < ev.waiters.Len(); i++ {
		if ev.waiters.At(i) == f {
			ev.waiters.Remove(i)
			return
		}
	}
}

// Semaphore bounds how many tasks hold a resource at once. Acquire
// decrements the internal counter, suspending while it is zero;
// Release increments it and wakes the next waiter.
type Semaphore struct {
	_       noCopy
	loop    *Loop
	value   int
	waiters deque.Deque[*Future]
}

// NewSemaphore creates a Semaphore owned by l with n initial permits.
// It panics when n is negative.
func (l *Loop) NewSemaphore(n int) *Semaphore {
	if n < 0 {
		panic("await: Semaphore initial value must not be negative")
	}
	return &Semaphore{loop: l, value: n}
}

func (s *Semaphore) locked() bool {
	if s.value == 0 {
		return true
	}
	for i := 0; i < s.waiters.Len(); i++ {
		if !s.waiters.At(i).Cancelled() {
			return true
		}
	}
	return false
}

// Acquire takes a permit, suspending the calling task while none is
// available. A permit granted to a waiter that was cancelled at the
// same moment is refunded and passed to the next waiter.
func (s *Semaphore) Acquire(co *Coro) error {
	if !s.locked() {
		s.value--
		return nil
	}
	f := s.loop.NewFuture()
	s.waiters.PushBack(f)
	_, err := co.Await(f)
	s.removeWaiter(f)
	if err != nil {
		if f.Done() && !f.Cancelled() {
			// The permit was granted concurrently with the
			// cancellation; return it.
			s.value++
		}
		s.wakeUpNext()
		return err
	}
	s.wakeUpNext()
	return nil
}

// Release returns a permit and wakes the next waiter.
func (s *Semaphore) Release() {
	s.value++
	s.wakeUpNext()
}

func (s *Semaphore) wakeUpNext() {
	if s.value == 0 {
		return
	}
	for i := 0; i < s.waiters.Len(); i++ {
		f := s.waiters.At(i)
		if !f.Done() {
			s.value--
			if err := f.SetResult(nil); err != nil {
				panic(err)
			}
			return
		}
	}
}

func (s *Semaphore) removeWaiter(f *Future) {
	for i := 0; i < s.waiters.Len(); i++ {
		if s.waiters.At(i) == f {
			s.waiters.Remove(i)
			return
		}
	}
}
