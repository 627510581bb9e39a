package eagle

import "errors"

// Error kinds the worker can return. Local recovery is limited to
// allocator backout (ErrAllocator); every other class propagates to
// the caller, which may retry the batch from the last committed
// seq_len.
var (
	// ErrConfiguration marks a fatal construction-time error: unsupported
	// attention backend, malformed hot-token map, inconsistent D/K/S bound.
	ErrConfiguration = errors.New("eagle: configuration error")

	// ErrAllocator marks a transient, recoverable allocator exhaustion.
	// Callers must restore_state and signal the scheduler to shed load;
	// no partial state persists past a restore.
	ErrAllocator = errors.New("eagle: allocator exhausted")

	// ErrNumeric marks a fatal NaN detection in produced logits.
	ErrNumeric = errors.New("eagle: NaN detected in logits")

	// ErrInvariant marks a programmer error: tree size mismatch, capture
	// mode disagreement, per-step list length mismatch. Treated as fatal,
	// aborts the batch.
	ErrInvariant = errors.New("eagle: invariant violated")
)
