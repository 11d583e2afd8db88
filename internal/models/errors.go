package models

import (
	"errors"
	"fmt"
)

// Predefined errors for configuration validation and shard assignment.
var (
	// ErrInvalidConfig marks a non-recoverable configuration mistake.
	// Runs failing with it abort before any worker is spawned.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNoShardFiles is returned when a corpus directory contains no
	// files matching the shard extension.
	ErrNoShardFiles = errors.New("no shard files found in corpus directory")
)

// Role identifies which side of a pipeline slot a process runs.
type Role string

const (
	RoleProducer Role = "producer"
	RoleWorker   Role = "worker"
)

// WorkerFailure is the single error an aborted run surfaces to the caller.
// It carries the identity of the first process that reported a failure;
// concurrent failures after the first are not reflected here.
type WorkerFailure struct {
	ProcID string
	Role   Role
	Slot   int
	Err    error
}

func (f *WorkerFailure) Error() string {
	return fmt.Sprintf("%s %d (%s) failed: %v", f.Role, f.Slot, f.ProcID, f.Err)
}

func (f *WorkerFailure) Unwrap() error {
	return f.Err
}
