package models

// Batch is one unit of training data exchanged between a producer and its
// worker. The payload is opaque to the pipeline: producers fill it from shard
// files and the step runner is the only component that looks inside.
type Batch struct {
	// Seq is the batch's position in its producer's emission order,
	// starting at 0. Workers rely on it being monotonic per slot.
	Seq uint64 `json:"seq"`

	// ShardID identifies the shard entry the batch was read from.
	ShardID string `json:"shard_id"`

	// Examples holds the raw example records of the batch, one JSON
	// document per element.
	Examples [][]byte `json:"-"`

	// TokenCount is the summed token estimate across Examples, used for
	// throughput reporting only.
	TokenCount int `json:"token_count"`
}

// Size returns the number of examples in the batch.
func (b Batch) Size() int {
	return len(b.Examples)
}
