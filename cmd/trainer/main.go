package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/deepforge-ai/trainer/internal/checkpoint"
	"github.com/deepforge-ai/trainer/internal/config"
	"github.com/deepforge-ai/trainer/internal/dataiter"
	"github.com/deepforge-ai/trainer/internal/device"
	"github.com/deepforge-ai/trainer/internal/metrics"
	"github.com/deepforge-ai/trainer/internal/models"
	"github.com/deepforge-ai/trainer/internal/pipeline"
	"github.com/deepforge-ai/trainer/internal/reporting"
	"github.com/deepforge-ai/trainer/internal/shards"
	"github.com/deepforge-ai/trainer/internal/step"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Version   = "dev"     // Injected at build time
	BuildDate = "unknown" // Injected at build time
)

// CLI flags
var (
	configPath            = flag.String("config", filepath.Join("configs", "config.yaml"), "Path to the configuration file")
	getGpusJSON           = flag.Bool("get-gpus-json", false, "Detect GPUs and output as JSON, then exit")
	getShardsJSON         = flag.Bool("get-shards-json", false, "Build the shard assignment and output as JSON, then exit")
	getSystemOverviewJSON = flag.Bool("get-system-overview-json", false, "Output system overview (CPU, RAM, Uptime) as JSON, then exit")
)

func main() {
	flag.Parse()

	tempLogger, _ := setupLogger("info")
	cfg, err := config.LoadConfig(*configPath, tempLogger)
	if err != nil {
		tempLogger.Fatal("Failed to load configuration", zap.Error(err), zap.String("path", *configPath))
	}

	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		tempLogger.Fatal("Failed to setup logger with config level", zap.Error(err))
	}
	defer logger.Sync()
	cfg.Logger = logger

	if *getGpusJSON {
		handleGetGpusJSON(cfg, logger)
		return
	}
	if *getShardsJSON {
		handleGetShardsJSON(cfg, logger)
		return
	}
	if *getSystemOverviewJSON {
		handleGetSystemOverviewJSON(logger)
		return
	}

	runID := cfg.RunName + "-" + uuid.NewString()[:8]
	logger.Info("Starting training run",
		zap.String("version", Version),
		zap.String("buildDate", BuildDate),
		zap.String("run_id", runID),
		zap.Int("world_size", cfg.WorldSize),
		zap.Int64("seed", cfg.Seed),
	)
	logSystemOverview(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, runID, logger); err != nil {
		var failure *models.WorkerFailure
		if errors.As(err, &failure) {
			logger.Fatal("Training run aborted",
				zap.String("run_id", runID),
				zap.String("failed_proc", failure.ProcID),
				zap.String("role", string(failure.Role)),
				zap.Int("slot", failure.Slot),
				zap.Error(failure.Err),
			)
		}
		logger.Fatal("Training run failed", zap.String("run_id", runID), zap.Error(err))
	}
	logger.Info("Training run completed", zap.String("run_id", runID))
}

func run(ctx context.Context, cfg *config.Config, runID string, logger *zap.Logger) error {
	state, err := checkpoint.PrepareOrLoad(cfg, logger)
	if err != nil {
		return err
	}
	if state.Checkpoint != nil {
		logger.Info("Checkpoint loaded", zap.Uint64("resume_step", state.Checkpoint.Step))
	}

	set, err := shards.Build(cfg, logger)
	if err != nil {
		return err
	}

	detector := device.NewDetector("", logger)
	detected, err := detector.Detect(ctx)
	if err != nil {
		return err
	}
	devices, err := device.Assign(cfg.WorldSize, cfg.GPUIDs, detected)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidConfig, err)
	}

	var publisher reporting.Publisher = reporting.NopPublisher{}
	if cfg.NatsConfig.URL != "" {
		natsPub, err := reporting.NewNATSPublisher(&cfg.NatsConfig, logger)
		if err != nil {
			return err
		}
		publisher = natsPub
	}
	defer publisher.Close()

	m := metrics.New()
	m.ShardsTotal.Set(float64(len(set)))
	if cfg.MetricsAddr != "" {
		m.Serve(cfg.MetricsAddr, logger)
	}

	if err := publisher.PublishStatus(models.NewTrainStatusUpdate(runID, models.StatusPreparing,
		fmt.Sprintf("%d shard entries, world size %d", len(set), cfg.WorldSize))); err != nil {
		logger.Warn("Failed to publish preparing status", zap.Error(err))
	}

	builder := dataiter.NewBuilder(set, cfg.BatchSize)
	runner := step.NewLogRunner(runID, cfg.ReportInterval, cfg.MaxSteps, publisher, logger)
	orch := pipeline.New(cfg, devices, builder, runner, m, logger)

	runErr := orch.Run(ctx)

	status := models.StatusCompleted
	message := fmt.Sprintf("%d steps, %d tokens", runner.Steps(), runner.Tokens())
	if runErr != nil {
		status = models.StatusFailed
		message = runErr.Error()
	}
	if err := publisher.PublishStatus(models.NewTrainStatusUpdate(runID, status, message)); err != nil {
		logger.Warn("Failed to publish final status", zap.Error(err))
	}

	if runErr == nil {
		if err := checkpoint.SaveFields(cfg, state.Fields); err != nil {
			logger.Warn("Failed to save fields", zap.Error(err))
		}
	}
	return runErr
}

func handleGetGpusJSON(cfg *config.Config, logger *zap.Logger) {
	detector := device.NewDetector("", logger)
	gpus, err := detector.Detect(context.Background())
	if err != nil {
		outputJSONError(fmt.Sprintf("Failed to detect GPUs: %v", err), logger)
	}
	if gpus == nil {
		gpus = []device.Info{}
	}
	outputJSON(gpus, logger)
}

func handleGetShardsJSON(cfg *config.Config, logger *zap.Logger) {
	set, err := shards.Build(cfg, logger)
	if err != nil {
		outputJSONError(fmt.Sprintf("Failed to build shard set: %v", err), logger)
	}
	outputJSON(set, logger)
}

func handleGetSystemOverviewJSON(logger *zap.Logger) {
	overview := struct {
		CPUUsagePercent float64 `json:"cpu_usage_percent"`
		RAMUsagePercent float64 `json:"ram_usage_percent"`
		UptimeSeconds   uint64  `json:"uptime_seconds"`
	}{}

	if percentages, err := cpu.Percent(0, false); err != nil {
		logger.Error("Failed to get CPU usage", zap.Error(err))
	} else if len(percentages) > 0 {
		overview.CPUUsagePercent = percentages[0]
	}
	if vmStat, err := mem.VirtualMemory(); err != nil {
		logger.Error("Failed to get virtual memory stats", zap.Error(err))
	} else {
		overview.RAMUsagePercent = vmStat.UsedPercent
	}
	if upTime, err := host.Uptime(); err != nil {
		logger.Error("Failed to get host uptime", zap.Error(err))
	} else {
		overview.UptimeSeconds = upTime
	}

	outputJSON(overview, logger)
}

// logSystemOverview records the host's capacity at run start so failing
// runs can be correlated with resource pressure after the fact.
func logSystemOverview(logger *zap.Logger) {
	fields := []zap.Field{}
	if counts, err := cpu.Counts(true); err == nil {
		fields = append(fields, zap.Int("logical_cpus", counts))
	}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		fields = append(fields, zap.Uint64("total_ram_mb", vmStat.Total/(1024*1024)))
	}
	if info, err := host.Info(); err == nil {
		fields = append(fields, zap.String("host", info.Hostname), zap.String("os", info.Platform))
	}
	logger.Info("Host overview", fields...)
}

func outputJSON(data interface{}, logger *zap.Logger) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		logger.Error("Failed to marshal data to JSON for CLI output", zap.Error(err))
		fmt.Fprintf(os.Stdout, `{"error": %q}`+"\n", err.Error())
		os.Exit(1)
	}
	fmt.Println(string(jsonData))
	os.Exit(0)
}

func outputJSONError(message string, logger *zap.Logger) {
	logger.Error("CLI command error", zap.String("error_message", message))
	jsonData, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		fmt.Fprintf(os.Stderr, `{"error": %q}`+"\n", message)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, string(jsonData))
	os.Exit(1)
}

func setupLogger(levelString string) (*zap.Logger, error) {
	var logLevel zapcore.Level
	switch levelString {
	case "debug":
		logLevel = zapcore.DebugLevel
	case "info":
		logLevel = zapcore.InfoLevel
	case "warn":
		logLevel = zapcore.WarnLevel
	case "error":
		logLevel = zapcore.ErrorLevel
	default:
		fmt.Fprintf(os.Stderr, "Invalid log level specified: %s. Defaulting to info.\n", levelString)
		logLevel = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		logLevel,
	)
	return zap.New(consoleCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
