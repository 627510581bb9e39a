package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_NilRunReturnsZeroValue(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.TotalSteps)
	assert.Equal(t, int64(0), s.TotalAccepted)
	assert.Equal(t, 0.0, s.MeanAcceptLen)
	assert.NotNil(t, s.RequestStepCounts)
	assert.Empty(t, s.RequestStepCounts)
}

func TestSummarize_EmptyRunReturnsZeroValue(t *testing.T) {
	r := NewRun(Config{Level: LevelSteps})
	s := Summarize(r)
	assert.Equal(t, 0, s.TotalSteps)
	assert.Equal(t, 0.0, s.MeanAcceptLen)
}

func TestSummarize_AggregatesAcrossSteps(t *testing.T) {
	r := NewRun(Config{Level: LevelFull})
	r.RecordStep(StepRecord{RequestID: "r1", TreeSize: 5, AcceptedLength: 3, SlotsUsed: 10})
	r.RecordStep(StepRecord{RequestID: "r1", TreeSize: 7, AcceptedLength: 1, SlotsUsed: 20, FallbackToken: true})
	r.RecordStep(StepRecord{RequestID: "r2", TreeSize: 2, AcceptedLength: 2, SlotsUsed: 5})

	s := Summarize(r)

	assert.Equal(t, 3, s.TotalSteps)
	assert.Equal(t, int64(6), s.TotalAccepted)
	assert.Equal(t, int64(14), s.TotalTreeNodes)
	assert.Equal(t, 1, s.FallbackCount)
	assert.InDelta(t, 2.0, s.MeanAcceptLen, 1e-9)
	assert.Equal(t, 7, s.MaxTreeSize)
	assert.Equal(t, int64(20), s.PeakSlotsUsed)
	assert.Equal(t, 2, s.RequestStepCounts["r1"])
	assert.Equal(t, 1, s.RequestStepCounts["r2"])
}
