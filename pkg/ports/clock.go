package ports

import "time"

// Timer is a scheduled callback that can be stopped.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call stopped it.
	Stop() bool
}

// Clock supplies time and schedules callbacks.
// The manager never sleeps; every wait is an AfterFunc that resolves into an event.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}
