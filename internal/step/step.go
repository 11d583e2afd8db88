// Package step defines the compute-step boundary of the pipeline. The
// orchestrator and workers only see the Runner interface; what a step
// actually computes is up to the caller.
package step

import (
	"context"
	"sync/atomic"

	"github.com/deepforge-ai/trainer/internal/device"
	"github.com/deepforge-ai/trainer/internal/models"
	"github.com/deepforge-ai/trainer/internal/reporting"
	"go.uber.org/zap"
)

// Runner executes one training step on one batch. Implementations must be
// safe for concurrent calls from different worker slots; state shared
// across slots is the implementation's problem.
type Runner interface {
	Run(ctx context.Context, dev device.Device, batch models.Batch) error
}

// LogRunner is the default Runner: it tracks step and token counts across
// all slots, logs throughput periodically, and publishes status updates.
type LogRunner struct {
	logger    *zap.Logger
	publisher reporting.Publisher
	runID     string
	interval  uint64
	maxSteps  uint64

	steps  atomic.Uint64
	tokens atomic.Uint64
}

// NewLogRunner creates a LogRunner. interval is the step period between
// progress logs; maxSteps of 0 means unlimited.
func NewLogRunner(runID string, interval, maxSteps uint64, publisher reporting.Publisher, logger *zap.Logger) *LogRunner {
	if interval == 0 {
		interval = 50
	}
	return &LogRunner{
		logger:    logger,
		publisher: publisher,
		runID:     runID,
		interval:  interval,
		maxSteps:  maxSteps,
	}
}

// Run records the batch and emits periodic progress. It returns early when
// the run-wide step cap has been reached.
func (r *LogRunner) Run(ctx context.Context, dev device.Device, batch models.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.maxSteps > 0 && r.steps.Load() >= r.maxSteps {
		return nil
	}

	step := r.steps.Add(1)
	tokens := r.tokens.Add(uint64(batch.TokenCount))

	if step%r.interval == 0 {
		r.logger.Info("Training progress",
			zap.Uint64("step", step),
			zap.Uint64("tokens", tokens),
			zap.String("device", dev.String()),
			zap.String("shard", batch.ShardID),
		)
		update := models.NewTrainStatusUpdate(r.runID, models.StatusInProgress, "")
		update.Step = step
		update.Tokens = tokens
		update.Device = dev.String()
		if err := r.publisher.PublishStatus(update); err != nil {
			r.logger.Warn("Failed to publish progress update", zap.Error(err))
		}
	}
	return nil
}

// Steps returns the total steps executed across all slots.
func (r *LogRunner) Steps() uint64 {
	return r.steps.Load()
}

// Tokens returns the total tokens processed across all slots.
func (r *LogRunner) Tokens() uint64 {
	return r.tokens.Load()
}
