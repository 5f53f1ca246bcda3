// Package system provides the wall clock implementation of news.Clock.
package system

import "time"

// Clock reads the real time. All pipeline timestamps are UTC.
type Clock struct{}

// New returns a system clock.
func New() Clock {
	return Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
