package runner

import "time"

// Clock abstracts time for the polling loops so tests can simulate
// timeouts without wall-clock delay.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
