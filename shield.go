package await

// Shield protects aw from cancellation of the returned future.
// Cancelling the outer future only detaches it and marks it
// cancelled; the inner computation keeps running to completion, and
// an inner result arriving after the outer was cancelled is discarded
// with no observable effect. If the inner settles first, the outer
// adopts its result, error or cancellation.
func Shield(l *Loop, aw Awaitable) FutureLike {
	inner := ensureFuture(l, aw)
	if inner.Done() {
		return inner
	}
	outer := newFuture(l, "Shield")

	innerCB := inner.AddDoneCallback(func(f FutureLike) {
		if outer.Cancelled() {
			if !f.Cancelled() {
				f.markRetrieved()
			}
			return
		}
		if f.Cancelled() {
			outer.Cancel(f.cancelMessage())
			return
		}
		if err := f.storedErr(); err != nil {
			f.markRetrieved()
			if serr := outer.SetException(err); serr != nil {
				panic(serr)
			}
			return
		}
		v, _ := f.Result()
		if serr := outer.SetResult(v); serr != nil {
			panic(serr)
		}
	}, nil)

	outer.AddDoneCallback(func(FutureLike) {
		if !inner.Done() {
			inner.RemoveDoneCallback(innerCB)
		}
	}, nil)

	return outer
}
