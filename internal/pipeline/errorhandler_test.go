package pipeline

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deepforge-ai/trainer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestErrorHandlerActsOnFirstReportOnly(t *testing.T) {
	var aborts atomic.Int32
	handler := NewErrorHandler(3, func() { aborts.Add(1) }, zap.NewNop())

	for i := 0; i < 3; i++ {
		handler.Register("worker-"+string(rune('a'+i)), models.RoleWorker)
	}

	first := models.NewErrorReport("worker-a", models.RoleWorker, 0, errors.New("step exploded"))
	handler.Report(first)

	require.Eventually(t, func() bool { return aborts.Load() == 1 },
		time.Second, 5*time.Millisecond, "first report must trigger the abort broadcast")

	handler.Report(models.NewErrorReport("worker-b", models.RoleWorker, 1, errors.New("also failed")))
	handler.Stop()

	failure := handler.Failure()
	require.NotNil(t, failure)
	assert.Equal(t, "worker-a", failure.ProcID)
	assert.Equal(t, 0, failure.Slot)
	assert.EqualError(t, failure.Err, "step exploded")
	assert.Equal(t, int32(1), aborts.Load(), "abort must fire exactly once")
}

func TestErrorHandlerReportNeverBlocks(t *testing.T) {
	handler := NewErrorHandler(2, func() {}, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handler.Report(models.NewErrorReport("proc", models.RoleProducer, i, errors.New("boom")))
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Report blocked with a saturated channel")
	}
	handler.Stop()
	require.NotNil(t, handler.Failure())
}

func TestErrorHandlerCleanRun(t *testing.T) {
	handler := NewErrorHandler(2, func() { t.Error("abort must not fire on a clean run") }, zap.NewNop())
	handler.Register("worker-a", models.RoleWorker)
	handler.Stop()
	assert.Nil(t, handler.Failure())
}
