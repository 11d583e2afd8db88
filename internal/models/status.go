package models

import (
	"fmt"
	"time"
)

// RunStatus represents the lifecycle state of a training run as reported
// to external observers. These are reporting states only; the orchestrator
// does not consume them.
type RunStatus string

const (
	StatusPreparing  RunStatus = "preparing"   // shards built, workers not yet spawned
	StatusInProgress RunStatus = "in_progress" // workers consuming batches
	StatusCompleted  RunStatus = "completed"   // all workers drained their channels
	StatusFailed     RunStatus = "failed"      // fail-fast cascade triggered
)

// TrainStatusUpdate is published by the step runner and the orchestrator to
// report run progress.
type TrainStatusUpdate struct {
	RunID      string    `json:"run_id"`
	Status     RunStatus `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message,omitempty"`
	WorkerSlot int       `json:"worker_slot,omitempty"`
	Device     string    `json:"device,omitempty"`
	Step       uint64    `json:"step,omitempty"`
	Tokens     uint64    `json:"tokens,omitempty"`
}

// NewTrainStatusUpdate creates an update stamped with the current time.
func NewTrainStatusUpdate(runID string, status RunStatus, message string) *TrainStatusUpdate {
	return &TrainStatusUpdate{
		RunID:     runID,
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// String returns a human-readable representation of the update.
func (u *TrainStatusUpdate) String() string {
	return fmt.Sprintf("RunID: %s, Status: %s, Step: %d, Time: %s, Msg: %s",
		u.RunID, u.Status, u.Step, u.Timestamp.Format(time.RFC3339), u.Message)
}
