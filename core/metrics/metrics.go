// Package metrics provides the instrumentation ports used by the message
// store, so that core packages do not depend on a metrics backend.
package metrics

import "time"

// Timer measures the duration of an operation. Call ObserveDuration when
// the operation completes to record the elapsed time.
type Timer interface {
	// ObserveDuration records the elapsed time since the timer was created.
	ObserveDuration()
}

// Observer receives a single observation in seconds.
type Observer interface {
	Observe(value float64)
}

// NewTimer starts a Timer that reports to o.
func NewTimer(o Observer) Timer {
	return &timer{o: o, start: time.Now()}
}

type timer struct {
	o     Observer
	start time.Time
}

func (t *timer) ObserveDuration() { t.o.Observe(time.Since(t.start).Seconds()) }
