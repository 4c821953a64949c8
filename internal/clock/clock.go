// Package clock abstracts time so sweeps and settlement checks can run
// against a controlled clock in tests.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
