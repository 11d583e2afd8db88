package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/deepforge-ai/trainer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadConfigCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "config.yaml")

	cfg, err := LoadConfig(path, zap.NewNop())
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.Equal(t, 0, cfg.WorldSize)
	assert.Equal(t, 40, cfg.QueueCapacity)
	assert.Equal(t, int64(3435), cfg.Seed)
	assert.Equal(t, ".json", cfg.ShardExtension)
	assert.Equal(t, "trainer.run.status", cfg.NatsConfig.StatusSubject)
}

func TestLoadConfigAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
world_size: 4
gpu_ids: [0, 1, 2, 3]
data:
  kp:
    path: /data/kp
    label_dirs: [/data/labels]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.WorldSize)
	assert.Equal(t, []int{0, 1, 2, 3}, cfg.GPUIDs)
	assert.Equal(t, 40, cfg.QueueCapacity, "unset fields take defaults")
	assert.Equal(t, 32, cfg.BatchSize)
	require.Contains(t, cfg.Data, "kp")
	assert.Equal(t, "/data/kp", cfg.Data["kp"].Path)
	assert.Equal(t, []string{"/data/labels"}, cfg.Data["kp"].LabelDirs)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("world_size: 2\ngpu_ids: [0]\n"), 0644))

	_, err := LoadConfig(path, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid multi-device",
			cfg:  Config{WorldSize: 2, QueueCapacity: 10, BatchSize: 8, GPUIDs: []int{0, 1}},
		},
		{
			name: "valid no-device",
			cfg:  Config{WorldSize: 0, QueueCapacity: 10, BatchSize: 8},
		},
		{
			name:    "negative world size",
			cfg:     Config{WorldSize: -1, QueueCapacity: 10, BatchSize: 8},
			wantErr: true,
		},
		{
			name:    "zero queue capacity",
			cfg:     Config{WorldSize: 2, QueueCapacity: 0, BatchSize: 8},
			wantErr: true,
		},
		{
			name:    "gpu ids mismatch",
			cfg:     Config{WorldSize: 3, QueueCapacity: 10, BatchSize: 8, GPUIDs: []int{0}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, models.ErrInvalidConfig)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
