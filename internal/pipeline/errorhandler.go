package pipeline

import (
	"sync"

	"github.com/deepforge-ai/trainer/internal/models"
	"go.uber.org/zap"
)

// ErrorHandler is the single consumer of the run's error channel. Producers
// and workers register at spawn time and report at most one failure each;
// the handler acts on the first report only, cancelling the whole run so
// every registered goroutine observes the broadcast and exits. Reports
// arriving after the first are logged and dropped: a run aborts exactly
// once no matter how many processes fail concurrently.
type ErrorHandler struct {
	logger  *zap.Logger
	reports chan models.ErrorReport
	abort   func()
	done    chan struct{}

	mu      sync.Mutex
	procs   map[string]models.Role
	failure *models.ErrorReport
}

// NewErrorHandler creates a handler for up to worldSize producer/worker
// pairs. abort is the run-wide cancellation broadcast invoked on the first
// failure.
func NewErrorHandler(worldSize int, abort func(), logger *zap.Logger) *ErrorHandler {
	h := &ErrorHandler{
		logger:  logger,
		reports: make(chan models.ErrorReport, 2*worldSize),
		abort:   abort,
		done:    make(chan struct{}),
		procs:   make(map[string]models.Role),
	}
	go h.watch()
	return h
}

// Register records a spawned process identity. Registration must happen
// before the process starts doing work so the fail-fast cascade covers it
// from the start.
func (h *ErrorHandler) Register(procID string, role models.Role) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.procs[procID] = role
}

// Report hands a failure to the handler. It never blocks: the channel is
// sized for one report per registered process, and anything beyond that
// would be ignored anyway.
func (h *ErrorHandler) Report(report models.ErrorReport) {
	select {
	case h.reports <- report:
	default:
	}
}

// Failure returns the report that aborted the run, or nil on a clean run.
func (h *ErrorHandler) Failure() *models.ErrorReport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failure
}

// Stop shuts the monitor down after all registered processes have exited.
func (h *ErrorHandler) Stop() {
	close(h.reports)
	<-h.done
}

func (h *ErrorHandler) watch() {
	defer close(h.done)
	for report := range h.reports {
		h.mu.Lock()
		first := h.failure == nil
		if first {
			r := report
			h.failure = &r
		}
		registered := len(h.procs)
		h.mu.Unlock()

		if !first {
			h.logger.Warn("Ignoring failure report after abort",
				zap.String("proc_id", report.ProcID),
				zap.String("role", string(report.Role)),
				zap.Int("slot", report.Slot),
				zap.Error(report.Err),
			)
			continue
		}

		h.logger.Error("Process failed, aborting run",
			zap.String("proc_id", report.ProcID),
			zap.String("role", string(report.Role)),
			zap.Int("slot", report.Slot),
			zap.Int("registered_procs", registered),
			zap.Error(report.Err),
		)
		h.abort()
	}
}
