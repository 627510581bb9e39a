package eagle

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDraftRunner struct {
	logits [][]float64
	calls  int
}

func (f *fakeDraftRunner) ForwardDraft(ctx context.Context, batch ForwardBatch, input DraftInput) (LogitsOutput, error) {
	f.calls++
	return LogitsOutput{NextTokenLogits: f.logits}, nil
}

func TestDraftLoop_Run_EmptyWithoutIncomingTopK(t *testing.T) {
	loop := &DraftLoop{Runner: &fakeDraftRunner{}}
	frags, err := loop.Run(context.Background(), ForwardBatch{}, DraftInput{}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, TreeFragments{}, frags)
}

func TestDraftLoop_Run_ExpandsTopKAcrossSteps(t *testing.T) {
	row0 := []float64{5, 4, 3, 2}
	row1 := []float64{1, 2, 3, 4}
	runner := &fakeDraftRunner{logits: [][]float64{row0, row1}}
	loop := &DraftLoop{Runner: runner}

	input := DraftInput{
		TopkP:     []float64{0.7, 0.3},
		TopkIndex: []int64{5, 6},
		Positions: 0,
	}

	frags, err := loop.Run(context.Background(), ForwardBatch{}, input, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls, "one forward call between step 0 and the final step")

	require.Len(t, frags.TokenList, 2)
	assert.Equal(t, []int64{5, 6}, frags.TokenList[0])
	assert.Equal(t, []int64{-1, -1}, frags.ParentList[0])

	p0 := softmax(row0)
	p1 := softmax(row1)
	// parent0 (score 0.7, token 5) combines with row0's own top-2; parent1
	// (score 0.3, token 6) combines with row1's own top-2. The two highest
	// products survive into step 1.
	scoreParent0Child0 := 0.7 * p0[0]
	scoreParent1Child0 := 0.3 * p1[3]
	assert.Greater(t, scoreParent0Child0, scoreParent1Child0)
	assert.Equal(t, int64(0), frags.TokenList[1][0])
	assert.Equal(t, int64(3), frags.TokenList[1][1])
	assert.Equal(t, []int64{0, 1}, frags.ParentList[1])
}

func TestDraftLoop_Run_ErrorsOnNonFiniteIntermediateLogits(t *testing.T) {
	row0 := []float64{5, 4, 3, math.NaN()}
	runner := &fakeDraftRunner{logits: [][]float64{row0, row0}}
	loop := &DraftLoop{Runner: runner, CheckNaN: true}

	input := DraftInput{
		TopkP:     []float64{0.7, 0.3},
		TopkIndex: []int64{5, 6},
		Positions: 0,
	}

	_, err := loop.Run(context.Background(), ForwardBatch{}, input, 2, 2)
	assert.ErrorIs(t, err, ErrNumeric)
}

func TestDraftLoop_Run_IgnoresNonFiniteLogitsWhenCheckDisabled(t *testing.T) {
	row0 := []float64{5, 4, 3, math.NaN()}
	runner := &fakeDraftRunner{logits: [][]float64{row0, row0}}
	loop := &DraftLoop{Runner: runner}

	input := DraftInput{
		TopkP:     []float64{0.7, 0.3},
		TopkIndex: []int64{5, 6},
		Positions: 0,
	}

	_, err := loop.Run(context.Background(), ForwardBatch{}, input, 2, 2)
	require.NoError(t, err)
}

func TestTopKFromLogits_SelectsHighestProbabilityIndices(t *testing.T) {
	logits := [][]float64{{1, 5, 2, 0}}
	probs, indices := topKFromLogits(logits, 2)
	require.Len(t, indices, 2)
	assert.Equal(t, int64(1), indices[0])
	assert.Equal(t, int64(2), indices[1])
	assert.Greater(t, probs[0], probs[1])
}
