// Package publisher defines the run notification surface.
package publisher

import (
	"context"
	"time"
)

// Publisher emits a payload to a topic and returns the broker message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RunCompleted is emitted once per finished sync run.
type RunCompleted struct {
	RunID       string    `json:"run_id"`
	Category    string    `json:"category"`
	Status      string    `json:"status"`
	Records     int       `json:"records"`
	Created     int       `json:"created"`
	Updated     int       `json:"updated"`
	Failed      int       `json:"failed"`
	Missing     int       `json:"missing"`
	Extra       int       `json:"extra"`
	Partial     bool      `json:"partial"`
	ArtifactURI string    `json:"artifact_uri,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}
