package eagle

import "sync"

// TPGroup identifies a tensor-parallel collective group.
type TPGroup string

const (
	// TPGroupNone is the sentinel meaning "no group currently active".
	TPGroupNone TPGroup = ""
)

// activeTPGroup is the process-wide active tensor-parallel group,
// equivalent to a thread-local swapped under a context manager in a
// language with one. Go has no per-goroutine thread-local, and the
// worker's scheduling model is single-threaded cooperative on the host
// side, so a package-level variable guarded by a mutex plays the same
// role: only one draft forward is ever active at a time.
var (
	activeTPGroupMu sync.Mutex
	activeTPGroup   TPGroup = TPGroupNone
)

// WithTPGroup activates group for the duration of fn, restoring
// whatever group was previously active on every exit path — including
// when fn panics or returns an error. Two collective groups can never
// overlap: the mutex also serializes draft and target TP activation
// against each other, which is safe because the worker never runs
// draft and target forwards concurrently.
func WithTPGroup(group TPGroup, fn func() error) error {
	activeTPGroupMu.Lock()
	previous := activeTPGroup
	activeTPGroup = group
	defer func() {
		activeTPGroup = previous
		activeTPGroupMu.Unlock()
	}()
	return fn()
}

// CurrentTPGroup returns the currently active tensor-parallel group,
// TPGroupNone if none is active. Exposed for collective backends that
// must refuse to operate outside their expected group.
func CurrentTPGroup() TPGroup {
	activeTPGroupMu.Lock()
	defer activeTPGroupMu.Unlock()
	return activeTPGroup
}
