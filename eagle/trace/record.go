package trace

// StepRecord captures a single forward-decode step's draft/verify
// decision: how large the candidate tree was, how much of it was
// accepted, and which request it belonged to.
type StepRecord struct {
	RequestID      string
	Clock          int64
	TreeSize       int
	AcceptedLength int64
	FallbackToken  bool // true if the step ended in a rejected-root fallback sample
	SlotsUsed      int64
	SlotsFreed     int64
}

// AllocationRecord captures a single allocator decision: a backup
// taken, slots granted, or slots released via RestoreState/Free.
type AllocationRecord struct {
	RequestID string
	Clock     int64
	Kind      AllocationKind
	Count     int64
	Mark      int64 // AllocatorState.Mark() at the time of a backup/restore
}

// AllocationKind enumerates the allocator operations a run can trace.
type AllocationKind string

const (
	AllocationKindBackup  AllocationKind = "backup"
	AllocationKindGrant   AllocationKind = "grant"
	AllocationKindRestore AllocationKind = "restore"
	AllocationKindFree    AllocationKind = "free"
)
