// Package shards turns the configured corpora into the deterministic,
// flattened shard ordering that workers partition among themselves.
//
// A corpus whose primary path is a directory is expanded into one entry per
// matching file under it, so a large corpus laid out as many shard files is
// fed to the pipeline exactly like many small single-file corpora. The final
// ordering is a seeded shuffle of all entries: the same seed and the same
// file-system contents always yield the same ordering.
package shards

import (
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/deepforge-ai/trainer/internal/config"
	"github.com/deepforge-ai/trainer/internal/models"
	"go.uber.org/zap"
)

// Entry is one logical data source after expansion. LabelPaths is nil when
// the corpus has no label roots configured; it is never inherited from the
// pre-expansion descriptor.
type Entry struct {
	ID         string
	Path       string
	LabelPaths []string
}

// Set is the ordered sequence of shard entries for one run.
type Set []Entry

// IDs returns the entry identifiers in set order.
func (s Set) IDs() []string {
	ids := make([]string, len(s))
	for i, e := range s {
		ids[i] = e.ID
	}
	return ids
}

// Build expands the configured corpora and applies the seeded shuffle.
// Corpus IDs are processed in lexicographic order so that the pre-shuffle
// ordering, and therefore the shuffled result, is a pure function of the
// seed and the file-system contents.
func Build(cfg *config.Config, logger *zap.Logger) (Set, error) {
	corpusIDs := make([]string, 0, len(cfg.Data))
	for id := range cfg.Data {
		corpusIDs = append(corpusIDs, id)
	}
	sort.Strings(corpusIDs)

	var set Set
	for _, id := range corpusIDs {
		src := cfg.Data[id]
		info, err := os.Stat(src.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: corpus %q: %v", models.ErrInvalidConfig, id, err)
		}
		if !info.IsDir() {
			set = append(set, Entry{ID: id, Path: src.Path, LabelPaths: labelPaths(src.LabelDirs, filepath.Base(src.Path))})
			continue
		}

		expanded, err := expandDir(id, src, cfg.ShardExtension)
		if err != nil {
			return nil, err
		}
		logger.Info("Expanded corpus directory",
			zap.String("corpus", id),
			zap.String("path", src.Path),
			zap.Int("shard_files", len(expanded)),
		)
		set = append(set, expanded...)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	rng.Shuffle(len(set), func(i, j int) {
		set[i], set[j] = set[j], set[i]
	})

	logger.Info("Shard set built", zap.Int("entries", len(set)), zap.Int64("seed", cfg.Seed))
	return set, nil
}

// expandDir walks one corpus directory and produces an entry per file with
// the configured extension, sorted lexicographically by path so the later
// shuffle is deterministic.
func expandDir(corpusID string, src config.SourceConfig, ext string) ([]Entry, error) {
	var files []string
	err := filepath.WalkDir(src.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ext) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk corpus %q directory %s: %w", corpusID, src.Path, err)
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: corpus %q: %s (extension %s)",
			models.ErrNoShardFiles, corpusID, src.Path, ext)
	}

	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(src.Path, f)
		if err != nil {
			return nil, fmt.Errorf("failed to relativize shard path %s: %w", f, err)
		}
		entries = append(entries, Entry{
			ID:         corpusID + "-" + strings.ReplaceAll(rel, string(filepath.Separator), "-"),
			Path:       f,
			LabelPaths: labelPaths(src.LabelDirs, rel),
		})
	}
	return entries, nil
}

// labelPaths joins each label root with the shard's relative path. A corpus
// without label roots gets nil, not an inherited reference.
func labelPaths(labelDirs []string, rel string) []string {
	if len(labelDirs) == 0 {
		return nil
	}
	paths := make([]string, len(labelDirs))
	for i, dir := range labelDirs {
		paths[i] = filepath.Join(dir, rel)
	}
	return paths
}
