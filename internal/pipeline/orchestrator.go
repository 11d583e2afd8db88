// Package pipeline implements the multi-device training orchestration: one
// producer and one worker per device, connected by bounded channels, with a
// global admission budget shared across all slots and a fail-fast error
// handler that aborts the whole run on the first failure.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/deepforge-ai/trainer/internal/config"
	"github.com/deepforge-ai/trainer/internal/dataiter"
	"github.com/deepforge-ai/trainer/internal/device"
	"github.com/deepforge-ai/trainer/internal/metrics"
	"github.com/deepforge-ai/trainer/internal/models"
	"github.com/deepforge-ai/trainer/internal/step"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IteratorBuilder constructs the striding batch iterator for one worker
// slot. *dataiter.Builder is the production implementation.
type IteratorBuilder interface {
	Build(stride, offset int) dataiter.Iterator
}

// workerSlot is one unit of parallel execution: a device-bound worker, its
// dedicated batch channel, and the producer feeding it.
type workerSlot struct {
	ordinal    int
	dev        device.Device
	ch         chan models.Batch
	workerID   string
	producerID string
}

// Orchestrator selects the execution mode once at start and drives the run
// to completion or abort.
type Orchestrator struct {
	cfg     *config.Config
	devices []device.Device
	builder IteratorBuilder
	runner  step.Runner
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates an orchestrator. devices must have one entry per worker
// ordinal when WorldSize > 0.
func New(cfg *config.Config, devices []device.Device, builder IteratorBuilder, runner step.Runner, m *metrics.Metrics, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		devices: devices,
		builder: builder,
		runner:  runner,
		metrics: m,
		logger:  logger,
	}
}

// Run executes the training run. Mode selection is fixed for the run's
// duration:
//
//   - WorldSize 0: the step runs inline in the calling goroutine with no
//     accelerator. No channels, no error handler.
//   - WorldSize 1: inline on device 0. The pipeline overhead buys nothing
//     for a single worker.
//   - WorldSize > 1: full producer/worker pipeline.
//
// On abort Run returns exactly one *models.WorkerFailure naming the first
// process that failed; no goroutine from the run survives Run returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	switch {
	case o.cfg.WorldSize == 0:
		o.logger.Info("Running inline without accelerator")
		return o.runInline(ctx, device.None)
	case o.cfg.WorldSize == 1:
		o.logger.Info("Running inline on single device", zap.String("device", o.devices[0].String()))
		return o.runInline(ctx, o.devices[0])
	default:
		return o.runMulti(ctx)
	}
}

// runInline drives the whole shard set through the step runner
// synchronously, with stride 1 so nothing is partitioned away.
func (o *Orchestrator) runInline(ctx context.Context, dev device.Device) error {
	iter := o.builder.Build(1, 0)
	steps := uint64(0)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.runner.Run(ctx, dev, iter.Batch()); err != nil {
			return fmt.Errorf("training step failed at batch %d: %w", steps, err)
		}
		steps++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("data iteration failed: %w", err)
	}
	o.logger.Info("Inline run finished", zap.Uint64("batches", steps), zap.String("device", dev.String()))
	return nil
}

// runMulti spawns the full pipeline. Workers are spawned and registered
// first, producers only in a second pass over all slots: failure detection
// must cover the complete worker set before the first batch is emitted.
func (o *Orchestrator) runMulti(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	worldSize := o.cfg.WorldSize
	pool := NewPermitPool(worldSize * o.cfg.QueueCapacity)
	handler := NewErrorHandler(worldSize, cancel, o.logger.Named("error_handler"))

	o.logger.Info("Starting multi-device pipeline",
		zap.Int("world_size", worldSize),
		zap.Int("queue_capacity", o.cfg.QueueCapacity),
		zap.Int("permit_budget", pool.Capacity()),
	)

	slots := make([]*workerSlot, worldSize)
	var workersWG, producersWG sync.WaitGroup

	for ordinal := 0; ordinal < worldSize; ordinal++ {
		slot := &workerSlot{
			ordinal:  ordinal,
			dev:      o.devices[ordinal],
			ch:       make(chan models.Batch, o.cfg.QueueCapacity),
			workerID: fmt.Sprintf("worker-%d-%s", ordinal, uuid.NewString()[:8]),
		}
		slots[ordinal] = slot

		handler.Register(slot.workerID, models.RoleWorker)
		w := &worker{
			procID:  slot.workerID,
			slot:    ordinal,
			dev:     slot.dev,
			in:      slot.ch,
			pool:    pool,
			runner:  o.runner,
			handler: handler,
			metrics: o.metrics,
			logger:  o.logger,
		}
		workersWG.Add(1)
		go func() {
			defer workersWG.Done()
			w.run(ctx)
		}()
		o.logger.Info("Started worker",
			zap.String("proc_id", slot.workerID),
			zap.Int("slot", ordinal),
			zap.String("device", slot.dev.String()),
		)
	}

	for ordinal := 0; ordinal < worldSize; ordinal++ {
		slot := slots[ordinal]
		slot.producerID = fmt.Sprintf("producer-%d-%s", ordinal, uuid.NewString()[:8])

		handler.Register(slot.producerID, models.RoleProducer)
		p := &producer{
			procID:  slot.producerID,
			slot:    ordinal,
			iter:    o.builder.Build(worldSize, ordinal),
			out:     slot.ch,
			pool:    pool,
			handler: handler,
			metrics: o.metrics,
			logger:  o.logger,
		}
		producersWG.Add(1)
		go func() {
			defer producersWG.Done()
			p.run(ctx)
		}()
		o.logger.Info("Started producer",
			zap.String("proc_id", slot.producerID),
			zap.Int("slot", ordinal),
		)
	}

	workersWG.Wait()

	// All workers are done. On the success path the producers have
	// already drained and closed their channels; the broadcast below is
	// what stops any producer still parked on a permit after an abort,
	// and is a no-op otherwise.
	cancel()
	producersWG.Wait()
	handler.Stop()

	if report := handler.Failure(); report != nil {
		return &models.WorkerFailure{
			ProcID: report.ProcID,
			Role:   report.Role,
			Slot:   report.Slot,
			Err:    report.Err,
		}
	}
	if err := parent.Err(); err != nil {
		return err
	}

	o.logger.Info("Multi-device run finished",
		zap.Int("world_size", worldSize),
		zap.Int("permits_outstanding", pool.InFlight()),
	)
	return nil
}
