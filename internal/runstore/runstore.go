// Package runstore records one row per sync run so the dashboard can show
// run history.
package runstore

import (
	"context"
	"time"
)

// Status is the state of a run.
type Status string

// Run states.
const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Totals are the counters stored with a finished run.
type Totals struct {
	Records int
	Created int
	Updated int
	Failed  int
	Missing int
	Extra   int
	Partial bool
}

// Recorder persists run lifecycle events.
type Recorder interface {
	StartRun(ctx context.Context, runID, category string, startedAt time.Time) error
	CompleteRun(ctx context.Context, runID string, finishedAt time.Time, status Status, totals Totals, errMsg *string) error
	Close()
}

// Noop discards everything.
type Noop struct{}

// StartRun does nothing.
func (Noop) StartRun(context.Context, string, string, time.Time) error { return nil }

// CompleteRun does nothing.
func (Noop) CompleteRun(context.Context, string, time.Time, Status, Totals, *string) error {
	return nil
}

// Close does nothing.
func (Noop) Close() {}
