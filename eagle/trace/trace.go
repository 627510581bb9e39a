// Package trace provides decision-trace recording for speculative
// decoding runs: a record-then-summarize shape applied to per-step
// draft/verify decisions instead of admission/routing decisions. This
// package has no dependency on eagle itself; it stores plain data types
// so it can be imported by both eagle and its callers without a cycle.
package trace

import "github.com/google/uuid"

// Level controls the verbosity of decision tracing.
type Level string

const (
	// LevelNone disables tracing (zero overhead).
	LevelNone Level = "none"
	// LevelSteps captures one StepRecord per forward-decode step.
	LevelSteps Level = "steps"
	// LevelFull additionally captures one AllocationRecord per recorded
	// allocator decision.
	LevelFull Level = "full"
)

var validLevels = map[Level]bool{
	LevelNone:  true,
	LevelSteps: true,
	LevelFull:  true,
	"":         true, // empty defaults to none
}

// IsValidLevel returns true if the given level string is recognized.
func IsValidLevel(level string) bool {
	return validLevels[Level(level)]
}

// Config controls trace collection behavior.
type Config struct {
	Level Level
}

// Run collects decision records for one worker run, identified by a
// random run id so traces from concurrent runs never collide when
// written to a shared sink.
type Run struct {
	ID     string
	Config Config
	Steps  []StepRecord
	Allocs []AllocationRecord
}

// NewRun creates a Run ready for recording, stamped with a fresh uuid.
func NewRun(config Config) *Run {
	return &Run{
		ID:     uuid.NewString(),
		Config: config,
		Steps:  make([]StepRecord, 0),
		Allocs: make([]AllocationRecord, 0),
	}
}

// RecordStep appends a step decision record, if the configured level
// calls for step-level tracing.
func (r *Run) RecordStep(rec StepRecord) {
	if r.Config.Level == LevelNone || r.Config.Level == "" {
		return
	}
	r.Steps = append(r.Steps, rec)
}

// RecordAllocation appends an allocator decision record, if the
// configured level calls for full tracing.
func (r *Run) RecordAllocation(rec AllocationRecord) {
	if r.Config.Level != LevelFull {
		return
	}
	r.Allocs = append(r.Allocs, rec)
}
