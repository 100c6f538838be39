// Package system provides a real clock implementation.
package system

import (
	"time"

	"github.com/JakeFAU/catalog-sync/internal/clock"
)

// Clock implements clock.Clock using time.Now.
type Clock struct{}

var _ clock.Clock = Clock{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
