package await

import "weak"

// registry tracks, per loop, the task currently executing a step and
// the set of live, not-yet-done tasks. The live set holds weak
// pointers so that an abandoned task can still be collected and
// reported through the unhandled-error hook.
type registry struct {
	current *Task
	live    map[weak.Pointer[Task]]struct{}
}

func newRegistry() *registry {
	return &registry{live: make(map[weak.Pointer[Task]]struct{})}
}

// enter marks t as the current task. Entering while another task is
// current is a reentrancy bug.
func (r *registry) enter(t *Task) {
	if r.current != nil {
		panic("await: cannot enter task " + t.name +
			": task " + r.current.name + " is already current")
	}
	r.current = t
}

// leave clears the current task. The argument must be exactly the
// task that entered.
func (r *registry) leave(t *Task) {
	if r.current != t {
		if r.current == nil {
			panic("await: cannot leave task " + t.name + ": no task is current")
		}
		panic("await: cannot leave task " + t.name +
			": current task is " + r.current.name)
	}
	r.current = nil
}

// swap replaces the current task and returns the previous one. Eager
// first steps use it because they may nest inside another task's
// step.
func (r *registry) swap(t *Task) *Task {
	prev := r.current
	r.current = t
	return prev
}

func (r *registry) add(t *Task) {
	r.live[weak.Make(t)] = struct{}{}
}

func (r *registry) remove(t *Task) {
	delete(r.live, weak.Make(t))
}

// tasks returns the live tasks, dropping entries whose task was
// collected.
func (r *registry) tasks() []*Task {
	out := make([]*Task, 0, len(r.live))
	for p := range r.live {
		if t := p.Value(); t != nil {
			out = append(out, t)
		} else {
			delete(r.live, p)
		}
	}
	return out
}

// CurrentTask returns the task currently executing a step on l, or
// nil.
func CurrentTask(l *Loop) *Task {
	return l.reg.current
}

// Tasks returns the live, not-yet-done tasks on l.
func Tasks(l *Loop) []*Task {
	return l.reg.tasks()
}
