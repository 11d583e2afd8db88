// Package checkpoint prepares the run-wide artifacts every worker shares:
// the field/vocab summary and, when resuming, the checkpoint metadata. It
// runs once in the orchestrator's caller before any worker is spawned.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deepforge-ai/trainer/internal/config"
	"go.uber.org/zap"
)

// Fields summarizes the prepared vocabularies and the transform pipeline
// the run was prepared with.
type Fields struct {
	SrcVocabSize int      `json:"src_vocab_size"`
	TgtVocabSize int      `json:"tgt_vocab_size"`
	Transforms   []string `json:"transforms,omitempty"`
}

// Checkpoint is the metadata of a previous run to resume from.
type Checkpoint struct {
	Step      uint64 `json:"step"`
	ModelPath string `json:"model_path"`
}

// State is what PrepareOrLoad hands to the run. Checkpoint is nil for a
// fresh run.
type State struct {
	Fields     *Fields
	Checkpoint *Checkpoint
}

const fieldsFile = "fields.json"

// PrepareOrLoad loads the field summary from the save-data directory and,
// when train_from is set, the checkpoint metadata. A missing fields file is
// not an error: the run starts with empty fields and they are written back
// for the next run.
func PrepareOrLoad(cfg *config.Config, logger *zap.Logger) (*State, error) {
	state := &State{Fields: &Fields{}}

	if cfg.SaveData != "" {
		path := filepath.Join(cfg.SaveData, fieldsFile)
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, state.Fields); err != nil {
				return nil, fmt.Errorf("failed to parse fields file %s: %w", path, err)
			}
			logger.Info("Loaded prepared fields",
				zap.String("path", path),
				zap.Int("src_vocab_size", state.Fields.SrcVocabSize),
				zap.Int("tgt_vocab_size", state.Fields.TgtVocabSize),
			)
		case os.IsNotExist(err):
			logger.Info("No prepared fields found, starting fresh", zap.String("path", path))
		default:
			return nil, fmt.Errorf("failed to read fields file %s: %w", path, err)
		}
	}

	if cfg.TrainFrom != "" {
		data, err := os.ReadFile(cfg.TrainFrom)
		if err != nil {
			return nil, fmt.Errorf("failed to read checkpoint %s: %w", cfg.TrainFrom, err)
		}
		var ckpt Checkpoint
		if err := json.Unmarshal(data, &ckpt); err != nil {
			return nil, fmt.Errorf("failed to parse checkpoint %s: %w", cfg.TrainFrom, err)
		}
		state.Checkpoint = &ckpt
		logger.Info("Resuming from checkpoint",
			zap.String("path", cfg.TrainFrom),
			zap.Uint64("step", ckpt.Step),
		)
	}

	return state, nil
}

// SaveFields writes the field summary back to the save-data directory.
func SaveFields(cfg *config.Config, fields *Fields) error {
	if cfg.SaveData == "" {
		return nil
	}
	if err := os.MkdirAll(cfg.SaveData, 0755); err != nil {
		return fmt.Errorf("failed to create save_data directory: %w", err)
	}
	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}
	path := filepath.Join(cfg.SaveData, fieldsFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write fields file %s: %w", path, err)
	}
	return nil
}
