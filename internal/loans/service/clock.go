package service

import "time"

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// SystemClock reports UTC time at millisecond precision, matching what
// MongoDB stores.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
