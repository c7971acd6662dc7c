// Package prom exports loop activity as Prometheus metrics. It
// implements await.Observer; attach it with await.WithObserver.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/webriots/await"
)

// Observer counts task, callback and timer activity on a loop.
type Observer struct {
	tasksSpawned prometheus.Counter
	tasksDone    *prometheus.CounterVec
	tasksLive    prometheus.Gauge
	callbacks    prometheus.Counter
	timersActive prometheus.Gauge
}

var _ await.Observer = (*Observer)(nil)

// New creates an Observer and registers its collectors with reg.
func New(reg prometheus.Registerer) *Observer {
	o := &Observer{
		tasksSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "await_tasks_spawned_total",
			Help: "Tasks spawned on the loop.",
		}),
		tasksDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "await_tasks_done_total",
			Help: "Tasks that reached a terminal state.",
		}, []string{"state"}),
		tasksLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "await_tasks_live",
			Help: "Tasks spawned and not yet done.",
		}),
		callbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "await_callbacks_scheduled_total",
			Help: "Callbacks pushed onto the ready queue.",
		}),
		timersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "await_timers_active",
			Help: "Timers scheduled and not yet fired or cancelled.",
		}),
	}
	reg.MustRegister(o.tasksSpawned, o.tasksDone, o.tasksLive, o.callbacks, o.timersActive)
	return o
}

func (o *Observer) TaskSpawned(*await.Task) {
	o.tasksSpawned.Inc()
	o.tasksLive.Inc()
}

func (o *Observer) TaskDone(t *await.Task) {
	o.tasksDone.WithLabelValues(await.TerminalState(t)).Inc()
	o.tasksLive.Dec()
}

func (o *Observer) CallbackScheduled() { o.callbacks.Inc() }

func (o *Observer) TimerScheduled() { o.timersActive.Inc() }

func (o *Observer) TimerDone() { o.timersActive.Dec() }
