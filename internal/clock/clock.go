// Package clock abstracts time for components that record run statistics.
package clock

import "time"

// Clock supplies the current time. Injecting it keeps worker timestamps and
// run-log arithmetic deterministic in tests.
type Clock interface {
	Now() time.Time
}

// System implements Clock using the wall clock in UTC.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time {
	return time.Now().UTC()
}
