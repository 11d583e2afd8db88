package step

import (
	"context"
	"sync"
	"testing"

	"github.com/deepforge-ai/trainer/internal/device"
	"github.com/deepforge-ai/trainer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturingPublisher struct {
	mu      sync.Mutex
	updates []*models.TrainStatusUpdate
}

func (p *capturingPublisher) PublishStatus(u *models.TrainStatusUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
	return nil
}

func (p *capturingPublisher) Close() {}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates)
}

func batchWithTokens(seq uint64, tokens int) models.Batch {
	return models.Batch{Seq: seq, ShardID: "s", TokenCount: tokens}
}

func TestLogRunnerCountsStepsAndTokens(t *testing.T) {
	pub := &capturingPublisher{}
	r := NewLogRunner("run-1", 100, 0, pub, zap.NewNop())

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Run(context.Background(), device.Device(0), batchWithTokens(uint64(i), 10)))
	}

	assert.Equal(t, uint64(5), r.Steps())
	assert.Equal(t, uint64(50), r.Tokens())
}

func TestLogRunnerPublishesAtInterval(t *testing.T) {
	pub := &capturingPublisher{}
	r := NewLogRunner("run-1", 3, 0, pub, zap.NewNop())

	for i := 0; i < 9; i++ {
		require.NoError(t, r.Run(context.Background(), device.None, batchWithTokens(uint64(i), 1)))
	}

	require.Equal(t, 3, pub.count(), "one update every 3 steps")
	last := pub.updates[2]
	assert.Equal(t, models.StatusInProgress, last.Status)
	assert.Equal(t, uint64(9), last.Step)
	assert.Equal(t, "cpu", last.Device)
}

func TestLogRunnerHonorsMaxSteps(t *testing.T) {
	pub := &capturingPublisher{}
	r := NewLogRunner("run-1", 100, 3, pub, zap.NewNop())

	for i := 0; i < 10; i++ {
		require.NoError(t, r.Run(context.Background(), device.Device(0), batchWithTokens(uint64(i), 1)))
	}

	assert.Equal(t, uint64(3), r.Steps(), "steps past the cap are not counted")
}

func TestLogRunnerStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewLogRunner("run-1", 100, 0, &capturingPublisher{}, zap.NewNop())
	err := r.Run(ctx, device.Device(0), batchWithTokens(0, 1))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), r.Steps())
}
