package eagle

// AllocatorState is an opaque checkpoint token returned by
// PagedKvAllocator.BackupState. RestoreState(token) releases everything
// allocated since the matching backup call — this is how the draft
// layout bulk-reclaims unaccepted branch slots after verification
// rejects them.
type AllocatorState struct {
	generation int64
	mark       int64
}

// NewAllocatorState constructs an AllocatorState from its two opaque
// fields. Exported so that PagedKvAllocator implementations living in
// other packages (eagle/kv) can produce tokens without eagle exposing
// its internal layout beyond this one constructor and its accessors.
func NewAllocatorState(generation, mark int64) AllocatorState {
	return AllocatorState{generation: generation, mark: mark}
}

// Generation and Mark expose an AllocatorState's two fields to
// implementations that need to validate or index by them.
func (s AllocatorState) Generation() int64 { return s.generation }
func (s AllocatorState) Mark() int64       { return s.mark }

// PagedKvAllocator abstracts cache-slot allocation for the worker. A
// single allocator instance is shared between the draft and target
// model workers: each writes to disjoint slot ranges, and the
// allocator itself is not reentrant — all operations on it happen in
// program order within one batch.
type PagedKvAllocator interface {
	// AllocTokenSlots allocates n individual slots (page_size == 1 path).
	// If backup is true, a checkpoint is taken before allocating so the
	// caller can RestoreState to release them in bulk later.
	AllocTokenSlots(n int64, backup bool) (slots []int64, state AllocatorState, err error)

	// AllocPagedTokenSlotsExtend allocates a page-aligned extend for each
	// request given its prefix length, target sequence length, and the
	// slot id of its last existing token (per-request last_loc, used to
	// find the page the new allocation must continue from). n is the
	// total slot count to allocate (sum of per-request extend lengths).
	AllocPagedTokenSlotsExtend(prefixLens, seqLens, lastLoc []int64, n int64, backup bool) (slots []int64, state AllocatorState, err error)

	// RestoreState releases everything allocated since the matching
	// backup call, leaving allocator state byte-equal to what
	// BackupState returned.
	RestoreState(state AllocatorState)

	// Free releases the given slots back to the allocator, independent
	// of any backup/restore checkpoint.
	Free(slots []int64)

	// BackupState takes a checkpoint without allocating.
	BackupState() AllocatorState

	// TotalCapacity and UsedSlots report allocator occupancy, used by
	// metrics and by the worker's exhaustion handling.
	TotalCapacity() int64
	UsedSlots() int64
}

// NewAllocatorFunc is assigned by eagle/kv's init(): eagle declares the
// factory slot but never imports eagle/kv, so callers that want the
// concrete allocator must blank-import eagle/kv for its registration
// side effect.
var NewAllocatorFunc func(capacity int64) PagedKvAllocator
