package pipeline

import (
	"context"

	"github.com/deepforge-ai/trainer/internal/dataiter"
	"github.com/deepforge-ai/trainer/internal/metrics"
	"github.com/deepforge-ai/trainer/internal/models"
	"go.uber.org/zap"
)

// producer feeds one worker slot. It pulls batches from its iterator and
// pushes them into the slot's bounded channel, acquiring one global permit
// per batch before the push. It owns the channel's send side and closes it
// when the iterator drains, which is how its worker learns the data is
// exhausted.
type producer struct {
	procID  string
	slot    int
	iter    dataiter.Iterator
	out     chan<- models.Batch
	pool    *PermitPool
	handler *ErrorHandler
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func (p *producer) run(ctx context.Context) {
	defer close(p.out)

	produced := uint64(0)
	for p.iter.Next() {
		batch := p.iter.Batch()

		// The global budget is checked before the per-slot channel:
		// a producer whose own worker is slow parks here once the
		// system-wide in-flight cap is reached.
		if err := p.pool.Acquire(ctx); err != nil {
			p.logger.Info("Producer stopped by cancellation",
				zap.String("proc_id", p.procID), zap.Int("slot", p.slot))
			return
		}
		p.metrics.UnitsInFlight.Inc()

		select {
		case p.out <- batch:
			produced++
		case <-ctx.Done():
			// Cancelled between acquire and push: hand the permit
			// back so accounting stays exact.
			p.pool.Release()
			p.metrics.UnitsInFlight.Dec()
			p.logger.Info("Producer stopped by cancellation",
				zap.String("proc_id", p.procID), zap.Int("slot", p.slot))
			return
		}
	}

	if err := p.iter.Err(); err != nil {
		p.metrics.WorkerFailures.Inc()
		p.handler.Report(models.NewErrorReport(p.procID, models.RoleProducer, p.slot, err))
		p.logger.Error("Producer failed",
			zap.String("proc_id", p.procID), zap.Int("slot", p.slot), zap.Error(err))
		return
	}

	p.logger.Info("Producer drained",
		zap.String("proc_id", p.procID),
		zap.Int("slot", p.slot),
		zap.Uint64("batches_produced", produced),
	)
}
