package models

import "time"

// ErrorReport is emitted by a producer or worker goroutine onto the shared
// error channel when it fails internally. Each process emits at most one
// report before exiting; only the first report received is acted upon.
type ErrorReport struct {
	ProcID string
	Role   Role
	Slot   int
	Err    error
	Time   time.Time
}

// NewErrorReport stamps a report with the current time.
func NewErrorReport(procID string, role Role, slot int, err error) ErrorReport {
	return ErrorReport{
		ProcID: procID,
		Role:   role,
		Slot:   slot,
		Err:    err,
		Time:   time.Now().UTC(),
	}
}
