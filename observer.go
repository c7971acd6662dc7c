package await

// Observer receives loop lifecycle events. All methods are called
// from the loop's goroutine (TaskDone may also fire during an eager
// first step). A nil observer disables instrumentation.
type Observer interface {
	// TaskSpawned fires when a task is created on the loop.
	TaskSpawned(t *Task)
	// TaskDone fires on the task's terminal transition.
	TaskDone(t *Task)
	// CallbackScheduled fires for every callback pushed onto the
	// ready queue.
	CallbackScheduled()
	// TimerScheduled fires when a delayed callback is registered.
	TimerScheduled()
	// TimerDone fires when a delayed callback fires or is cancelled.
	TimerDone()
}

// TerminalState describes how a task ended, for observers.
func TerminalState(t *Task) string {
	if t.Cancelled() {
		return "cancelled"
	}
	if t.storedErr() != nil {
		return "failed"
	}
	return "finished"
}
