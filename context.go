package await

// A Var is a key for ambient values stored in a Context. Distinct Var
// instances never collide, even when they share a name.
type Var struct {
	name string
}

// NewVar creates a new ambient variable key. The name is used only
// for diagnostics.
func NewVar(name string) *Var {
	return &Var{name: name}
}

func (v *Var) String() string { return "await.Var(" + v.name + ")" }

// A Context is the ambient-variable state a task or callback runs
// under. Every task forks the active Context at creation, so
// mutations made during one task's steps are visible to its later
// steps and to callbacks it schedules, and never to other tasks.
type Context struct {
	vars map[*Var]any
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{vars: make(map[*Var]any)}
}

// Fork returns an independent copy of c. This is the snapshot
// operation: the copy starts with the same values and diverges from
// then on.
func (c *Context) Fork() *Context {
	next := &Context{vars: make(map[*Var]any, len(c.vars))}
	for k, v := range c.vars {
		next.vars[k] = v
	}
	return next
}

// Set binds v to val in c.
func (c *Context) Set(v *Var, val any) {
	c.vars[v] = val
}

// Value returns the value bound to v and whether one is bound.
func (c *Context) Value(v *Var) (any, bool) {
	val, ok := c.vars[v]
	return val, ok
}
