package engine

import "time"

// Clock abstracts the time source so eligibility windows and delays can be
// pinned in tests.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
