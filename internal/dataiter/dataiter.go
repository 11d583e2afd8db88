// Package dataiter builds the lazy per-worker batch iterators. Each worker
// owns a disjoint partition of the shard set: the iterator for worker k out
// of n visits shard entries k, k+n, k+2n, ... in set order, so no example is
// seen by two workers.
package dataiter

import (
	"bufio"
	"fmt"
	"os"

	"github.com/deepforge-ai/trainer/internal/models"
	"github.com/deepforge-ai/trainer/internal/shards"
)

// Iterator yields training batches one at a time. It follows the
// bufio.Scanner convention: Next advances, Batch returns the current value,
// and Err reports the failure that terminated iteration, if any.
type Iterator interface {
	Next() bool
	Batch() models.Batch
	Err() error
}

// Builder constructs striding iterators over a shard set.
type Builder struct {
	set       shards.Set
	batchSize int
}

// NewBuilder creates a builder for the given shard set and batch size.
func NewBuilder(set shards.Set, batchSize int) *Builder {
	return &Builder{set: set, batchSize: batchSize}
}

// Build returns the iterator for the worker at the given offset. The stride
// is the total worker count; offset must be in [0, stride).
func (b *Builder) Build(stride, offset int) Iterator {
	var part shards.Set
	for i := offset; i < len(b.set); i += stride {
		part = append(part, b.set[i])
	}
	return &shardIterator{shards: part, batchSize: b.batchSize}
}

// shardIterator reads its shard files in order, one JSON document per line,
// and groups lines into batches.
type shardIterator struct {
	shards    shards.Set
	batchSize int

	shardIdx int
	file     *os.File
	scanner  *bufio.Scanner
	seq      uint64
	batch    models.Batch
	err      error
	done     bool
}

func (it *shardIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}

	examples := make([][]byte, 0, it.batchSize)
	tokens := 0
	var shardID string

	for len(examples) < it.batchSize {
		line, id, ok := it.nextLine()
		if !ok {
			break
		}
		shardID = id
		examples = append(examples, line)
		tokens += estimateTokens(line)
	}

	if len(examples) == 0 {
		it.done = true
		return false
	}

	it.batch = models.Batch{
		Seq:        it.seq,
		ShardID:    shardID,
		Examples:   examples,
		TokenCount: tokens,
	}
	it.seq++
	return true
}

// nextLine returns the next non-empty line across shard files, opening and
// closing files as it advances.
func (it *shardIterator) nextLine() ([]byte, string, bool) {
	for {
		if it.scanner == nil {
			if it.shardIdx >= len(it.shards) {
				return nil, "", false
			}
			entry := it.shards[it.shardIdx]
			f, err := os.Open(entry.Path)
			if err != nil {
				it.err = fmt.Errorf("failed to open shard %s: %w", entry.ID, err)
				return nil, "", false
			}
			it.file = f
			it.scanner = bufio.NewScanner(f)
			it.scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		}

		if it.scanner.Scan() {
			raw := it.scanner.Bytes()
			if len(raw) == 0 {
				continue
			}
			line := make([]byte, len(raw))
			copy(line, raw)
			return line, it.shards[it.shardIdx].ID, true
		}

		entry := it.shards[it.shardIdx]
		if err := it.scanner.Err(); err != nil {
			it.err = fmt.Errorf("failed to read shard %s: %w", entry.ID, err)
		}
		it.file.Close()
		it.file = nil
		it.scanner = nil
		it.shardIdx++
		if it.err != nil {
			return nil, "", false
		}
	}
}

func (it *shardIterator) Batch() models.Batch {
	return it.batch
}

func (it *shardIterator) Err() error {
	return it.err
}

// estimateTokens approximates the token count of one example line by its
// whitespace-separated field count. Good enough for throughput reporting.
func estimateTokens(line []byte) int {
	n := 0
	inField := false
	for _, c := range line {
		switch c {
		case ' ', '\t':
			inField = false
		default:
			if !inField {
				n++
				inField = true
			}
		}
	}
	return n
}
