package dataiter

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/deepforge-ai/trainer/internal/shards"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeShard writes one JSON-lines shard with the given line contents.
func writeShard(t *testing.T, dir, name string, lines ...string) shards.Entry {
	t.Helper()
	path := filepath.Join(dir, name)
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return shards.Entry{ID: name, Path: path}
}

func collect(t *testing.T, it Iterator) []string {
	t.Helper()
	var ids []string
	for it.Next() {
		b := it.Batch()
		ids = append(ids, fmt.Sprintf("%s/%d:%d", b.ShardID, b.Seq, b.Size()))
	}
	require.NoError(t, it.Err())
	return ids
}

func TestStridingPartitionsWithoutOverlap(t *testing.T) {
	dir := t.TempDir()
	var set shards.Set
	for i := 0; i < 7; i++ {
		set = append(set, writeShard(t, dir, fmt.Sprintf("s%d.json", i), `{"x":1}`))
	}

	builder := NewBuilder(set, 1)
	seen := make(map[string]int)
	for offset := 0; offset < 3; offset++ {
		it := builder.Build(3, offset)
		for it.Next() {
			seen[it.Batch().ShardID]++
		}
		require.NoError(t, it.Err())
	}

	require.Len(t, seen, 7, "every shard must be visited")
	for id, count := range seen {
		assert.Equal(t, 1, count, "shard %s visited by more than one worker", id)
	}
}

func TestBatchGrouping(t *testing.T) {
	dir := t.TempDir()
	entry := writeShard(t, dir, "s.json",
		`{"a":1}`, `{"a":2}`, `{"a":3}`, `{"a":4}`, `{"a":5}`)

	it := NewBuilder(shards.Set{entry}, 2).Build(1, 0)
	got := collect(t, it)
	assert.Equal(t, []string{"s.json/0:2", "s.json/1:2", "s.json/2:1"}, got)
}

func TestBatchesSpanShardFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeShard(t, dir, "a.json", `{"a":1}`, `{"a":2}`, `{"a":3}`)
	b := writeShard(t, dir, "b.json", `{"b":1}`)

	it := NewBuilder(shards.Set{a, b}, 2).Build(1, 0)

	require.True(t, it.Next())
	assert.Equal(t, 2, it.Batch().Size())
	require.True(t, it.Next())
	// The second batch crosses the file boundary and is attributed to
	// the shard its last example came from.
	assert.Equal(t, 2, it.Batch().Size())
	assert.Equal(t, "b.json", it.Batch().ShardID)
	require.False(t, it.Next())
	require.NoError(t, it.Err())
}

func TestTokenCountEstimation(t *testing.T) {
	dir := t.TempDir()
	entry := writeShard(t, dir, "s.json", `one two three`, `four five`)

	it := NewBuilder(shards.Set{entry}, 2).Build(1, 0)
	require.True(t, it.Next())
	assert.Equal(t, 5, it.Batch().TokenCount)
}

func TestMissingShardFileSurfacesError(t *testing.T) {
	entry := shards.Entry{ID: "gone", Path: filepath.Join(t.TempDir(), "missing.json")}

	it := NewBuilder(shards.Set{entry}, 2).Build(1, 0)
	assert.False(t, it.Next())
	require.Error(t, it.Err())
	assert.Contains(t, it.Err().Error(), "gone")
}

func TestEmptyPartitionDrainsImmediately(t *testing.T) {
	dir := t.TempDir()
	entry := writeShard(t, dir, "s.json", `{"a":1}`)

	// Offset 1 of stride 2 over a single shard owns nothing.
	it := NewBuilder(shards.Set{entry}, 2).Build(2, 1)
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
}
