package trace

// Summary aggregates statistics from a Run.
type Summary struct {
	TotalSteps        int
	TotalAccepted     int64
	TotalTreeNodes    int64
	FallbackCount     int
	MeanAcceptLen     float64
	MaxTreeSize       int
	PeakSlotsUsed     int64
	RequestStepCounts map[string]int // request id -> steps traced
}

// Summarize computes aggregate statistics from a Run. Safe for nil or
// empty runs (returns zero-value fields).
func Summarize(r *Run) *Summary {
	s := &Summary{
		RequestStepCounts: make(map[string]int),
	}
	if r == nil {
		return s
	}

	s.TotalSteps = len(r.Steps)
	var totalAcceptLen int64
	for _, step := range r.Steps {
		s.RequestStepCounts[step.RequestID]++
		s.TotalAccepted += step.AcceptedLength
		s.TotalTreeNodes += int64(step.TreeSize)
		totalAcceptLen += step.AcceptedLength
		if step.FallbackToken {
			s.FallbackCount++
		}
		if step.TreeSize > s.MaxTreeSize {
			s.MaxTreeSize = step.TreeSize
		}
		if step.SlotsUsed > s.PeakSlotsUsed {
			s.PeakSlotsUsed = step.SlotsUsed
		}
	}

	if s.TotalSteps > 0 {
		s.MeanAcceptLen = float64(totalAcceptLen) / float64(s.TotalSteps)
	}

	return s
}
