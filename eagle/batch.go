// Defines the Batch type: the ordered set of active requests the worker
// advances together in one call to Worker.Forward. Batch carries no
// scheduling state of its own — batch membership is decided by the
// external scheduler.

package eagle

// Batch is the ordered sequence of active requests for one worker call.
type Batch struct {
	ID       string
	Requests []*Request

	// DraftState carries each request's DraftInput across iterations,
	// keyed by request ID. The scheduler owns the map's lifetime: it is
	// seeded by forwardExtend and updated after every forwardDecode
	// call, and dropped when a request finishes.
	DraftState map[string]DraftInput
}

// NewBatch creates a Batch from a slice of requests.
func NewBatch(id string, reqs []*Request) *Batch {
	return &Batch{ID: id, Requests: reqs, DraftState: make(map[string]DraftInput)}
}

// Len returns the number of requests in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Requests)
}

// IsIdle reports whether the batch has no requests — a legal,
// non-error state that Worker.Forward short-circuits on.
func (b *Batch) IsIdle() bool {
	return b.Len() == 0
}

// IsExtend reports whether any request in the batch is still in extend
// (prefill) mode, which routes Worker.Forward to the extend path.
func (b *Batch) IsExtend() bool {
	for _, r := range b.Requests {
		if r.IsExtend {
			return true
		}
	}
	return false
}

// SeqLens returns the running sequence length of every request in batch order.
func (b *Batch) SeqLens() []int64 {
	out := make([]int64, len(b.Requests))
	for i, r := range b.Requests {
		out[i] = r.SeqLen
	}
	return out
}

// PoolIndices returns the request-to-token table row of every request
// in batch order.
func (b *Batch) PoolIndices() []int {
	out := make([]int, len(b.Requests))
	for i, r := range b.Requests {
		out[i] = r.PoolIndex
	}
	return out
}
