package server

import "sync/atomic"

// Gate bounds the number of connections served at once. TryAcquire never
// blocks: a full gate turns the caller away instead of queueing it.
type Gate struct {
	limit  int64
	active atomic.Int64
}

func NewGate(limit int) *Gate {
	return &Gate{limit: int64(limit)}
}

// TryAcquire takes a permit if one is available.
func (gate *Gate) TryAcquire() (*Permit, bool) {
	for {
		active := gate.active.Load()
		if active >= gate.limit {
			return nil, false
		}
		if gate.active.CompareAndSwap(active, active+1) {
			return &Permit{gate: gate}, true
		}
	}
}

func (gate *Gate) Active() int {
	return int(gate.active.Load())
}

func (gate *Gate) Limit() int {
	return int(gate.limit)
}

// Permit is a lease on one slot of a Gate.
type Permit struct {
	gate     *Gate
	released atomic.Bool
}

// Release gives the slot back. Calling it more than once has no further
// effect.
func (permit *Permit) Release() {
	if permit.released.CompareAndSwap(false, true) {
		permit.gate.active.Add(-1)
	}
}
