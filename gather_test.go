package await

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGatherEmpty(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	g := Gather(l, nil, false)
	require.True(t, g.Done())
	v, err := g.Result()
	require.NoError(t, err)
	require.Equal(t, []any{}, v)
}

func TestGatherOrderFollowsInputs(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	slow := l.NewFuture()
	fast := l.NewFuture()
	l.CallSoon(func() { require.NoError(t, fast.SetResult("fast")) }, nil)
	l.CallSoon(func() { require.NoError(t, slow.SetResult("slow")) }, nil)

	g := Gather(l, []Awaitable{slow, fast}, false)
	v, err := l.RunUntil(g)
	require.NoError(t, err)
	require.Equal(t, []any{"slow", "fast"}, v)
}

func TestGatherDuplicatesCollapse(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	runs := 0
	c := New(func(co *Coro) (any, error) {
		runs++
		return "once", nil
	})
	g := Gather(l, []Awaitable{c, c, c}, false)
	v, err := l.RunUntil(g)
	require.NoError(t, err)
	require.Equal(t, []any{"once", "once", "once"}, v)
	require.Equal(t, 1, runs)
}

func TestGatherFirstErrorWins(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	boom := errors.New("boom")
	f1 := l.NewFuture()
	f2 := l.NewFuture()
	l.CallSoon(func() { require.NoError(t, f1.SetException(boom)) }, nil)

	g := Gather(l, []Awaitable{f1, f2}, false)
	_, err := l.RunUntil(g)
	require.ErrorIs(t, err, boom)

	// The sibling is left running, untouched.
	require.False(t, f2.Done())
	require.NoError(t, f2.SetResult(nil))
	drain(t, l)
}

func TestGatherSameTickFirstScheduledWins(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	early := errors.New("early")
	late := errors.New("late")
	f1 := l.NewFuture()
	f2 := l.NewFuture()
	g := Gather(l, []Awaitable{f1, f2}, false)

	// Both settle before the loop runs a single callback; the one
	// scheduled first decides the parent.
	require.NoError(t, f2.SetException(early))
	require.NoError(t, f1.SetException(late))

	_, err := l.RunUntil(g)
	require.ErrorIs(t, err, early)
	drain(t, l)
}

func TestGatherSiblingKeepsRunningAfterFailure(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	boom := errors.New("boom")
	sibRan := false
	gate := l.NewFuture()

	bad := Spawn(l, func(co *Coro) (any, error) {
		return nil, boom
	})
	sib := Spawn(l, func(co *Coro) (any, error) {
		_, err := co.Await(gate)
		require.NoError(t, err)
		sibRan = true
		return "ignored", nil
	})

	g := Gather(l, []Awaitable{bad, sib}, false)
	_, err := l.RunUntil(g)
	require.ErrorIs(t, err, boom)
	require.False(t, sib.Done())

	require.NoError(t, gate.SetResult(nil))
	_, err = l.RunUntil(sib)
	require.NoError(t, err)
	require.True(t, sibRan)
}

func TestGatherReturnExceptions(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	boom := errors.New("boom")
	ok := Spawn(l, func(co *Coro) (any, error) { return 1, nil })
	bad := Spawn(l, func(co *Coro) (any, error) { return nil, boom })
	cancelled := Spawn(l, func(co *Coro) (any, error) {
		return co.Await(co.Loop().NewFuture())
	})
	started := Spawn(l, func(co *Coro) (any, error) { return nil, nil })
	_, err := l.RunUntil(started)
	require.NoError(t, err)
	require.True(t, cancelled.Cancel("enough"))

	g := Gather(l, []Awaitable{ok, bad, cancelled}, true)
	v, err := l.RunUntil(g)
	require.NoError(t, err)

	results := v.([]any)
	require.Len(t, results, 3)
	require.Equal(t, 1, results[0])
	require.ErrorIs(t, results[1].(error), boom)
	require.True(t, IsCancelled(results[2].(error)))
}

func TestGatherChildCancellationCancelsParent(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	child := Spawn(l, func(co *Coro) (any, error) {
		return co.Await(co.Loop().NewFuture())
	})
	started := Spawn(l, func(co *Coro) (any, error) { return nil, nil })
	_, err := l.RunUntil(started)
	require.NoError(t, err)

	g := Gather(l, []Awaitable{child}, false)
	require.True(t, child.Cancel("child first"))

	_, err = l.RunUntil(g)
	require.True(t, IsCancelled(err))
	require.True(t, g.Cancelled())
}

func TestGatherCancelFansOutToChildren(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	c1 := Spawn(l, func(co *Coro) (any, error) {
		return co.Await(co.Loop().NewFuture())
	})
	c2 := Spawn(l, func(co *Coro) (any, error) {
		return co.Await(co.Loop().NewFuture())
	})
	started := Spawn(l, func(co *Coro) (any, error) { return nil, nil })
	_, err := l.RunUntil(started)
	require.NoError(t, err)

	g := Gather(l, []Awaitable{c1, c2}, false)
	require.True(t, g.Cancel("sweep"))

	_, err = l.RunUntil(g)
	require.True(t, IsCancelled(err))
	require.True(t, g.Cancelled())
	require.True(t, c1.Cancelled())
	require.True(t, c2.Cancelled())
}

func TestGatherCancelRefusedOnceChildrenDone(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	f := l.NewFuture()
	g := Gather(l, []Awaitable{f}, false)
	require.NoError(t, f.SetResult("done"))

	// The child is decided and the parent's resolution is already in
	// flight; cancellation has nothing left to bite.
	require.False(t, g.Cancel("too late"))

	v, err := l.RunUntil(g)
	require.NoError(t, err)
	require.Equal(t, []any{"done"}, v)
}

// drain runs the loop until all currently scheduled callbacks have
// executed.
func drain(t *testing.T, l *Loop) {
	t.Helper()
	sentinel := l.NewFuture()
	l.CallSoon(func() { require.NoError(t, sentinel.SetResult(nil)) }, nil)
	_, err := l.RunUntil(sentinel)
	require.NoError(t, err)
}
