package pipeline

import "context"

// PermitPool is the global admission budget shared by every producer and
// worker in a run. Its capacity is worldSize * queueCapacity: each enqueued
// batch holds exactly one permit from the moment its producer acquires it
// until the receiving worker releases it. Per-slot channel capacity bounds
// how much one worker can queue; the pool bounds what the whole run can
// hold in flight, so N producers racing ahead of slow workers cannot
// multiply peak memory by N.
type PermitPool struct {
	permits chan struct{}
}

// NewPermitPool creates a pool with the given capacity.
func NewPermitPool(capacity int) *PermitPool {
	return &PermitPool{permits: make(chan struct{}, capacity)}
}

// Acquire blocks until a permit is available or ctx is cancelled.
func (p *PermitPool) Acquire(ctx context.Context) error {
	select {
	case p.permits <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns one permit to the pool. It must pair with a successful
// Acquire; releasing more than was acquired panics on the channel send.
func (p *PermitPool) Release() {
	select {
	case <-p.permits:
	default:
		panic("pipeline: permit released without matching acquire")
	}
}

// InFlight returns the number of permits currently held.
func (p *PermitPool) InFlight() int {
	return len(p.permits)
}

// Capacity returns the pool's fixed capacity.
func (p *PermitPool) Capacity() int {
	return cap(p.permits)
}
