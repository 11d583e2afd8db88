package pipeline

import (
	"context"
	"strconv"

	"github.com/deepforge-ai/trainer/internal/device"
	"github.com/deepforge-ai/trainer/internal/metrics"
	"github.com/deepforge-ai/trainer/internal/models"
	"github.com/deepforge-ai/trainer/internal/step"
	"go.uber.org/zap"
)

// worker consumes one slot's bounded channel and executes the training step
// on its device. The global permit is released immediately after a batch is
// received, before the step runs: permits budget queued data, not compute.
type worker struct {
	procID  string
	slot    int
	dev     device.Device
	in      <-chan models.Batch
	pool    *PermitPool
	runner  step.Runner
	handler *ErrorHandler
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func (w *worker) run(ctx context.Context) {
	consumed := uint64(0)
	slotLabel := strconv.Itoa(w.slot)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker stopped by cancellation",
				zap.String("proc_id", w.procID), zap.Int("slot", w.slot))
			return
		case batch, ok := <-w.in:
			if !ok {
				w.logger.Info("Worker finished, channel drained",
					zap.String("proc_id", w.procID),
					zap.Int("slot", w.slot),
					zap.String("device", w.dev.String()),
					zap.Uint64("batches_consumed", consumed),
				)
				return
			}
			w.pool.Release()
			w.metrics.UnitsInFlight.Dec()
			w.metrics.BatchesConsumed.WithLabelValues(slotLabel).Inc()
			consumed++

			if err := w.runner.Run(ctx, w.dev, batch); err != nil {
				if ctx.Err() != nil {
					// The run is already aborting; a step error
					// caused by the broadcast is not a failure.
					return
				}
				w.metrics.WorkerFailures.Inc()
				w.handler.Report(models.NewErrorReport(w.procID, models.RoleWorker, w.slot, err))
				w.logger.Error("Worker failed",
					zap.String("proc_id", w.procID),
					zap.Int("slot", w.slot),
					zap.String("device", w.dev.String()),
					zap.Error(err),
				)
				return
			}
		}
	}
}
