package trade

import "sync"

// positionLocks serializes state mutation per position id. Confirmations for
// the same position are processed one at a time; different positions proceed
// in parallel. Margin deltas and amount decrements do not commute, so this
// is a correctness requirement, not an optimization.
type positionLocks struct {
	locks sync.Map // position id -> *sync.Mutex
}

func (p *positionLocks) lock(id string) func() {
	v, _ := p.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
