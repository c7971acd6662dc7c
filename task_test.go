package await

import (
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskReturnsValue(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	tk := Spawn(l, func(co *Coro) (any, error) {
		return 7, nil
	})
	v, err := l.RunUntil(tk)
	require.NoError(t, err)
	require.Equal(t, 7, v)
	require.True(t, tk.Done())
	require.False(t, tk.Cancelled())
}

func TestTaskReturnsError(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	boom := errors.New("boom")
	tk := Spawn(l, func(co *Coro) (any, error) {
		return nil, boom
	})
	_, err := l.RunUntil(tk)
	require.ErrorIs(t, err, boom)
	require.False(t, tk.Cancelled())
}

func TestTaskReturnedCancellationCancelsTask(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	tk := Spawn(l, func(co *Coro) (any, error) {
		return nil, NewCancelled("gave up")
	})
	_, err := l.RunUntil(tk)
	require.True(t, IsCancelled(err))
	require.True(t, tk.Cancelled())
}

func TestTaskPingPong(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	ping := l.NewFuture()
	pong := l.NewFuture()

	a := Spawn(l, func(co *Coro) (any, error) {
		require.NoError(t, ping.SetResult("ping"))
		return co.Await(pong)
	})
	b := Spawn(l, func(co *Coro) (any, error) {
		v, err := co.Await(ping)
		require.NoError(t, err)
		require.NoError(t, pong.SetResult(v.(string)+" pong"))
		return nil, nil
	})

	v, err := l.RunUntil(a)
	require.NoError(t, err)
	require.Equal(t, "ping pong", v)

	_, err = l.RunUntil(b)
	require.NoError(t, err)
}

func TestTaskAwaitsTask(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	child := Spawn(l, func(co *Coro) (any, error) {
		return "child", nil
	})
	parent := Spawn(l, func(co *Coro) (any, error) {
		return co.Await(child)
	})
	v, err := l.RunUntil(parent)
	require.NoError(t, err)
	require.Equal(t, "child", v)
}

func TestTaskAwaitBareCoroutineSpawnsChild(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	tk := Spawn(l, func(co *Coro) (any, error) {
		return co.Await(New(func(co *Coro) (any, error) {
			return "inner", nil
		}))
	})
	v, err := l.RunUntil(tk)
	require.NoError(t, err)
	require.Equal(t, "inner", v)
}

func TestTaskCancelBeforeFirstStepNeverRunsBody(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	ran := false
	tk := Spawn(l, func(co *Coro) (any, error) {
		ran = true
		return nil, nil
	})
	require.True(t, tk.Cancel("too late"))

	_, err := l.RunUntil(tk)
	require.True(t, IsCancelled(err))
	require.True(t, tk.Cancelled())
	require.False(t, ran)
}

func TestTaskCancelWhileSuspended(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	blocker := l.NewFuture()
	tk := Spawn(l, func(co *Coro) (any, error) {
		return co.Await(blocker)
	})
	started := Spawn(l, func(co *Coro) (any, error) {
		// One tick is enough for tk to reach its suspension point.
		return nil, nil
	})
	_, err := l.RunUntil(started)
	require.NoError(t, err)
	require.Same(t, FutureLike(blocker), tk.WaitingOn())

	require.True(t, tk.Cancel("stop"))
	_, err = l.RunUntil(tk)
	require.True(t, IsCancelled(err))
	require.True(t, tk.Cancelled())
	require.True(t, blocker.Cancelled(), "cancellation is forwarded to the awaited future")
}

func TestTaskCancelAfterDone(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	tk := Spawn(l, func(co *Coro) (any, error) { return 1, nil })
	_, err := l.RunUntil(tk)
	require.NoError(t, err)
	require.False(t, tk.Cancel("late"))
}

func TestTaskSwallowedCancellationIsRedelivered(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	deliveries := 0
	tk := Spawn(l, func(co *Coro) (any, error) {
		_, err := co.Await(co.Loop().NewFuture())
		require.True(t, IsCancelled(err))
		deliveries++
		// Swallow and suspend again: the request must come back.
		_, err = co.Await(co.Loop().NewFuture())
		require.True(t, IsCancelled(err))
		deliveries++
		return nil, err
	})
	started := Spawn(l, func(co *Coro) (any, error) { return nil, nil })
	_, err := l.RunUntil(started)
	require.NoError(t, err)

	require.True(t, tk.Cancel("insist"))
	_, err = l.RunUntil(tk)
	require.True(t, IsCancelled(err))
	require.Equal(t, 2, deliveries)
}

func TestTaskSwallowCancellationAndFinishWithValue(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	tk := Spawn(l, func(co *Coro) (any, error) {
		_, err := co.Await(co.Loop().NewFuture())
		require.True(t, IsCancelled(err))
		return "survived", nil
	})
	started := Spawn(l, func(co *Coro) (any, error) { return nil, nil })
	_, err := l.RunUntil(started)
	require.NoError(t, err)

	require.True(t, tk.Cancel(""))
	v, err := l.RunUntil(tk)
	require.NoError(t, err)
	require.Equal(t, "survived", v)
	require.False(t, tk.Cancelled())
}

func TestTaskErrorRaisedDuringCancellationWins(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	boom := errors.New("cleanup failed")
	tk := Spawn(l, func(co *Coro) (any, error) {
		_, err := co.Await(co.Loop().NewFuture())
		require.True(t, IsCancelled(err))
		return nil, boom
	})
	started := Spawn(l, func(co *Coro) (any, error) { return nil, nil })
	_, err := l.RunUntil(started)
	require.NoError(t, err)

	require.True(t, tk.Cancel("tidy up"))
	_, err = l.RunUntil(tk)
	require.ErrorIs(t, err, boom)
	require.False(t, tk.Cancelled(), "a non-cancellation error raised while handling the cancellation wins")
}

func TestTaskSelfAwaitPanics(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	tk := Spawn(l, func(co *Coro) (any, error) {
		return co.Await(co.Task())
	})
	require.PanicsWithValue(t,
		"await: task "+tk.Name()+" cannot await itself",
		func() { l.RunUntil(tk) })
}

func TestTaskCrossLoopAwaitPanics(t *testing.T) {
	l1 := NewLoop()
	defer l1.Close()
	l2 := NewLoop()
	defer l2.Close()

	foreign := l2.NewFuture()
	tk := Spawn(l1, func(co *Coro) (any, error) {
		return co.Await(foreign)
	})
	require.Panics(t, func() { l1.RunUntil(tk) })
}

func TestTaskCrossLoopAwaitDecidedFuturePanics(t *testing.T) {
	l1 := NewLoop()
	defer l1.Close()
	l2 := NewLoop()
	defer l2.Close()

	foreign := l2.NewFuture()
	require.NoError(t, foreign.SetResult("other domain"))

	// A decided foreign future must be rejected just like a pending
	// one; its value never crosses the loop boundary.
	tk := Spawn(l1, func(co *Coro) (any, error) {
		return co.Await(foreign)
	})
	require.Panics(t, func() { l1.RunUntil(tk) })
}

func TestTaskCoroutineCannotBeOwnedTwice(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	c := New(func(co *Coro) (any, error) { return nil, nil })
	tk := NewTask(l, c)
	require.Panics(t, func() { NewTask(l, c) })

	_, err := l.RunUntil(tk)
	require.NoError(t, err)
}

func TestAwaitOutsideTaskPanics(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	f := l.NewFuture()
	c := New(func(co *Coro) (any, error) { return nil, nil })
	require.PanicsWithValue(t,
		"await: Await called outside a running task",
		func() { c.Await(f) })

	tk := NewTask(l, c)
	_, err := l.RunUntil(tk)
	require.NoError(t, err)
}

func TestTaskNames(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	a := Spawn(l, func(co *Coro) (any, error) { return nil, nil })
	b := Spawn(l, func(co *Coro) (any, error) { return nil, nil },
		WithName("reaper"))
	require.Equal(t, "Task-1", a.Name())
	require.Equal(t, "reaper", b.Name())

	_, err := l.RunUntil(Gather(l, []Awaitable{a, b}, false))
	require.NoError(t, err)
}

func TestCurrentTask(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	require.Nil(t, CurrentTask(l))
	tk := Spawn(l, func(co *Coro) (any, error) {
		require.Same(t, co.Task(), CurrentTask(l))
		return nil, nil
	})
	_, err := l.RunUntil(tk)
	require.NoError(t, err)
	require.Nil(t, CurrentTask(l))
}

func TestTasksTracksLiveTasks(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	blocker := l.NewFuture()
	tk := Spawn(l, func(co *Coro) (any, error) {
		return co.Await(blocker)
	})
	started := Spawn(l, func(co *Coro) (any, error) { return nil, nil })
	_, err := l.RunUntil(started)
	require.NoError(t, err)

	require.Contains(t, Tasks(l), tk)
	require.NotContains(t, Tasks(l), started)

	require.NoError(t, blocker.SetResult(nil))
	_, err = l.RunUntil(tk)
	require.NoError(t, err)
	require.NotContains(t, Tasks(l), tk)
}

func TestTaskAbandonedPendingIsReported(t *testing.T) {
	events := make(chan ErrorEvent, 4)
	l := NewLoop(WithErrorHook(func(ev ErrorEvent) { events <- ev }))
	defer l.Close()

	func() {
		blocker := l.NewFuture()
		tk := Spawn(l, func(co *Coro) (any, error) {
			return co.Await(blocker)
		}, WithName("forgotten"))
		started := Spawn(l, func(co *Coro) (any, error) { return nil, nil })
		_, err := l.RunUntil(started)
		require.NoError(t, err)

		// Unwind the suspended coroutine so its goroutine stops
		// holding the task; only then can the task become garbage.
		tk.releaseCoro()
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		for {
			select {
			case ev := <-events:
				if strings.Contains(ev.Message, "forgotten") {
					require.Contains(t, ev.Message, "destroyed while pending")
					return true
				}
			default:
				return false
			}
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTaskUnretrievedErrorIsReported(t *testing.T) {
	events := make(chan ErrorEvent, 4)
	l := NewLoop(WithErrorHook(func(ev ErrorEvent) { events <- ev }))
	defer l.Close()

	boom := errors.New("nobody asked")
	func() {
		Spawn(l, func(co *Coro) (any, error) {
			return nil, boom
		}, WithName("ignored"))
		drain(t, l)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		for {
			select {
			case ev := <-events:
				if errors.Is(ev.Err, boom) {
					require.Contains(t, ev.Message, "ignored")
					require.Contains(t, ev.Message, "never retrieved")
					return true
				}
			default:
				return false
			}
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTaskIsReclaimedAfterCompletion(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	collected := make(chan struct{}, 1)
	func() {
		tk := Spawn(l, func(co *Coro) (any, error) { return 1, nil })
		_, err := l.RunUntil(tk)
		require.NoError(t, err)
		runtime.AddCleanup(tk, func(ch chan struct{}) { ch <- struct{}{} }, collected)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		select {
		case <-collected:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTaskEagerStartCompletesSynchronously(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	tk := Spawn(l, func(co *Coro) (any, error) {
		return "eager", nil
	}, WithEagerStart())
	require.True(t, tk.Done())

	v, err := l.RunUntil(tk)
	require.NoError(t, err)
	require.Equal(t, "eager", v)
}

func TestTaskEagerStartError(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	boom := errors.New("early")
	tk := Spawn(l, func(co *Coro) (any, error) {
		return nil, boom
	}, WithEagerStart())
	require.True(t, tk.Done())
	_, err := tk.Result()
	require.ErrorIs(t, err, boom)
}

func TestTaskEagerStartSuspendsLikeDeferred(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	f := l.NewFuture()
	tk := Spawn(l, func(co *Coro) (any, error) {
		return co.Await(f)
	}, WithEagerStart())
	require.False(t, tk.Done())
	require.Same(t, FutureLike(f), tk.WaitingOn())

	l.CallSoon(func() { require.NoError(t, f.SetResult("late")) }, nil)
	v, err := l.RunUntil(tk)
	require.NoError(t, err)
	require.Equal(t, "late", v)
}

func TestTaskEagerStartNestsInsideRunningTask(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	outer := Spawn(l, func(co *Coro) (any, error) {
		self := co.Task()
		inner := Spawn(l, func(co *Coro) (any, error) {
			require.Same(t, co.Task(), CurrentTask(l))
			return "nested", nil
		}, WithEagerStart())
		require.True(t, inner.Done())
		require.Same(t, self, CurrentTask(l))
		return inner.Result()
	})
	v, err := l.RunUntil(outer)
	require.NoError(t, err)
	require.Equal(t, "nested", v)
}
