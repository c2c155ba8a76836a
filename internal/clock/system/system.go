// Package system supplies the wall clock the service uses outside of
// tests.
package system

import "time"

// Clock satisfies intel.Clock with the real wall clock.
type Clock struct{}

// Now returns the current time in UTC.
func (Clock) Now() time.Time { return time.Now().UTC() }
