package device

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Info describes one detected GPU.
type Info struct {
	Ordinal     int    `json:"ordinal"`
	Name        string `json:"name"`
	VRAMTotalMB uint64 `json:"vram_total_mb"`
}

// Detector discovers the accelerators available on this host. It shells out
// to nvidia-smi; hosts without it simply report zero devices.
type Detector struct {
	logger        *zap.Logger
	nvidiaSmiPath string
}

// NewDetector creates a detector using the given nvidia-smi path, or the
// one found in PATH when empty.
func NewDetector(nvidiaSmiPath string, logger *zap.Logger) *Detector {
	if nvidiaSmiPath == "" {
		nvidiaSmiPath = "nvidia-smi"
	}
	return &Detector{logger: logger, nvidiaSmiPath: nvidiaSmiPath}
}

// Detect returns the GPUs visible on this host. A missing nvidia-smi is not
// an error: it returns an empty slice so callers can fall back to CPU mode.
func (d *Detector) Detect(ctx context.Context) ([]Info, error) {
	if _, err := exec.LookPath(d.nvidiaSmiPath); err != nil {
		d.logger.Info("nvidia-smi not found, assuming no GPUs", zap.String("path", d.nvidiaSmiPath))
		return nil, nil
	}

	cmd := exec.CommandContext(ctx, d.nvidiaSmiPath,
		"--query-gpu=index,name,memory.total", "--format=csv,noheader,nounits")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", d.nvidiaSmiPath, err)
	}

	gpus, err := parseSmiOutput(string(output))
	if err != nil {
		return nil, err
	}
	d.logger.Info("GPU detection completed", zap.Int("gpu_count", len(gpus)))
	return gpus, nil
}

// parseSmiOutput parses nvidia-smi csv,noheader,nounits query output.
func parseSmiOutput(output string) ([]Info, error) {
	var gpus []Info
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, ", ")
		if len(fields) < 3 {
			return nil, fmt.Errorf("malformed nvidia-smi line: %q", line)
		}
		ordinal, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("failed to parse GPU index from %q: %w", line, err)
		}
		info := Info{Ordinal: ordinal, Name: strings.TrimSpace(fields[1])}
		if vram, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 64); err == nil {
			info.VRAMTotalMB = vram
		}
		gpus = append(gpus, info)
	}
	return gpus, nil
}

// Assign resolves the worker-ordinal to device mapping. Explicit ids from
// the configuration win; otherwise devices 0..worldSize-1 are assigned from
// the detected pool, which must be large enough.
func Assign(worldSize int, configured []int, detected []Info) ([]Device, error) {
	if worldSize == 0 {
		return nil, nil
	}
	if len(configured) > 0 {
		devs := make([]Device, len(configured))
		for i, id := range configured {
			devs[i] = Device(id)
		}
		return devs, nil
	}
	if len(detected) < worldSize {
		return nil, fmt.Errorf("world_size %d exceeds detected GPU count %d and no gpu_ids configured",
			worldSize, len(detected))
	}
	devs := make([]Device, worldSize)
	for i := 0; i < worldSize; i++ {
		devs[i] = Device(detected[i].Ordinal)
	}
	return devs, nil
}
