package await

// gatherFuture is the parent future returned by Gather. Its Cancel
// fans out to the children; it never beats an outcome that is already
// decided.
type gatherFuture struct {
	*Future

	children        []FutureLike
	cancelRequested bool
}

func (g *gatherFuture) Cancel(msg string) bool {
	if g.Done() {
		return false
	}
	hit := false
	for _, c := range g.children {
		if c.Cancel(msg) {
			hit = true
		}
	}
	if hit {
		// At least one child accepted the cancellation; the parent
		// ends cancelled once every child has settled.
		g.cancelRequested = true
		g.cancelMsg = msg
	}
	return hit
}

// Gather runs the given awaitables together and resolves once their
// combined outcome is known. Non-future inputs are wrapped as tasks;
// duplicate inputs collapse onto one underlying task, so their result
// positions reflect its single outcome. With no inputs the returned
// future resolves immediately with an empty slice.
//
// With returnExceptions false, the first child to fail or be
// cancelled decides the parent with that error; the remaining
// children keep running and their later outcomes are discarded (their
// errors are still marked retrieved). A failed child stores its error
// on the parent, while a cancelled child ends the parent cancelled,
// carrying the child's cancel message, whether or not cancellation
// was ever requested on the parent itself. With returnExceptions true the
// parent waits for every child and resolves with an ordered []any in
// which a failed or cancelled child contributes its error value.
//
// When two children settle within the same scheduling tick, the one
// whose completion callback was scheduled first decides the parent:
// first scheduled, first observed.
func Gather(l *Loop, aws []Awaitable, returnExceptions bool) FutureLike {
	if len(aws) == 0 {
		outer := l.NewFuture()
		if err := outer.SetResult([]any{}); err != nil {
			panic(err)
		}
		return outer
	}

	seen := make(map[Awaitable]FutureLike, len(aws))
	children := make([]FutureLike, 0, len(aws))
	var unique []FutureLike
	for _, aw := range aws {
		fl, ok := seen[aw]
		if !ok {
			fl = ensureFuture(l, aw)
			seen[aw] = fl
			unique = append(unique, fl)
		}
		children = append(children, fl)
	}

	g := &gatherFuture{Future: newFuture(l, "Gather"), children: children}
	g.self = g

	nfuts := len(unique)
	nfinished := 0
	onDone := func(f FutureLike) {
		nfinished++
		if g.Done() {
			// A sibling already decided the parent; keep the late
			// error from reaching the unhandled-error hook.
			if !f.Cancelled() {
				f.markRetrieved()
			}
			return
		}
		if !returnExceptions {
			if f.Cancelled() {
				g.Future.Cancel(f.cancelMessage())
				return
			}
			if err := f.storedErr(); err != nil {
				f.markRetrieved()
				if serr := g.Future.SetException(err); serr != nil {
					panic(serr)
				}
				return
			}
		}
		if nfinished < nfuts {
			return
		}
		if g.cancelRequested {
			g.Future.Cancel(g.cancelMsg)
			return
		}
		results := make([]any, len(children))
		for i, c := range children {
			switch {
			case c.Cancelled():
				results[i] = NewCancelled(c.cancelMessage())
			case c.storedErr() != nil:
				c.markRetrieved()
				results[i] = c.storedErr()
			default:
				v, _ := c.Result()
				results[i] = v
			}
		}
		if err := g.Future.SetResult(results); err != nil {
			panic(err)
		}
	}
	for _, fl := range unique {
		fl.AddDoneCallback(onDone, nil)
	}
	return g
}
