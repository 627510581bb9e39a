package eagle

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTargetRunner struct {
	verifyLogits [][]float64
	hidden       [][]float64
}

func (f *fakeTargetRunner) ForwardTarget(ctx context.Context, batch ForwardBatch) (LogitsOutput, error) {
	return LogitsOutput{}, nil
}

func (f *fakeTargetRunner) ForwardVerify(ctx context.Context, batch ForwardBatch, verify VerifyInput) (LogitsOutput, error) {
	return LogitsOutput{NextTokenLogits: f.verifyLogits, HiddenStates: f.hidden}, nil
}

func TestVerifier_Verify_AcceptsMatchingDraftedChild(t *testing.T) {
	tree := VerifyInput{
		DraftTokens:        []int64{100, 7},
		Positions:          []int64{10, 11},
		RetriveIndex:       []int64{0, 1},
		RetriveNextToken:   []int64{1, -1},
		RetriveNextSibling: []int64{-1, -1},
		TreeMask:           []bool{true, false, true, true},
	}

	rootLogits := make([]float64, 10)
	for i := range rootLogits {
		rootLogits[i] = -50
	}
	rootLogits[7] = 50

	childLogits := make([]float64, 10)
	for i := range childLogits {
		childLogits[i] = 0
	}

	v := &Verifier{
		Target: &fakeTargetRunner{
			verifyLogits: [][]float64{rootLogits, childLogits},
			hidden:       [][]float64{make([]float64, 4), make([]float64, 4)},
		},
		RNG: NewPartitionedRNG(NewSimulationKey(42)),
	}

	reqs := []*Request{{ID: "r1", SeqLen: 10}}
	result, err := v.Verify(context.Background(), ForwardBatch{CaptureHiddenMode: CaptureFull}, tree, reqs, 2, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.AcceptLengthPerReq[0])
	assert.Equal(t, []int64{100, 7}, result.VerifiedID)
	assert.Empty(t, result.RejectedSlots)
	assert.Equal(t, int64(12), result.NextDraftInput[0].Positions)
	assert.Equal(t, int64(2), result.NextDraftInput[0].AcceptLength)
}

func TestVerifier_Verify_RejectsWhenNoChildMatchesDraw(t *testing.T) {
	tree := VerifyInput{
		DraftTokens:        []int64{100, 7},
		Positions:          []int64{10, 11},
		RetriveIndex:       []int64{0, 1},
		RetriveNextToken:   []int64{1, -1},
		RetriveNextSibling: []int64{-1, -1},
		TreeMask:           []bool{true, false, true, true},
	}

	rootLogits := make([]float64, 10)
	for i := range rootLogits {
		rootLogits[i] = -50
	}
	// Bias toward a vocabulary id no drafted child carries: acceptance
	// stops at the root and falls back to this bonus sample.
	rootLogits[3] = 50
	childLogits := make([]float64, 10)

	v := &Verifier{
		Target: &fakeTargetRunner{
			verifyLogits: [][]float64{rootLogits, childLogits},
			hidden:       [][]float64{make([]float64, 4), make([]float64, 4)},
		},
		RNG: NewPartitionedRNG(NewSimulationKey(7)),
	}

	reqs := []*Request{{ID: "r1", SeqLen: 0}}
	result, err := v.Verify(context.Background(), ForwardBatch{CaptureHiddenMode: CaptureFull}, tree, reqs, 2, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.AcceptLengthPerReq[0])
	assert.Equal(t, []int64{100}, result.VerifiedID)
	assert.Equal(t, []int64{1}, result.RejectedSlots)
}

// forbidOneToken is a GrammarHandle test double that forbids a single
// fixed vocabulary id regardless of the token path so far.
type forbidOneToken struct {
	forbidden int64
}

func (g *forbidOneToken) AllowedMask(tokenPath []int, vocabSize int) []bool {
	mask := make([]bool, vocabSize)
	for i := range mask {
		mask[i] = int64(i) != g.forbidden
	}
	return mask
}

func TestVerifier_Verify_GrammarForbidsDraftedTokenAtRoot(t *testing.T) {
	tree := VerifyInput{
		DraftTokens:        []int64{100, 7},
		Positions:          []int64{10, 11},
		RetriveIndex:       []int64{0, 1},
		RetriveNextToken:   []int64{1, -1},
		RetriveNextSibling: []int64{-1, -1},
		TreeMask:           []bool{true, false, true, true},
	}

	rootLogits := make([]float64, 10)
	for i := range rootLogits {
		rootLogits[i] = -50
	}
	rootLogits[7] = 50 // the target model wants token 7, but the grammar forbids it
	childLogits := make([]float64, 10)

	v := &Verifier{
		Target: &fakeTargetRunner{
			verifyLogits: [][]float64{rootLogits, childLogits},
			hidden:       [][]float64{make([]float64, 4), make([]float64, 4)},
		},
		RNG:       NewPartitionedRNG(NewSimulationKey(3)),
		VocabSize: 10,
	}

	reqs := []*Request{{ID: "r1", SeqLen: 5, Grammar: &forbidOneToken{forbidden: 7}}}
	result, err := v.Verify(context.Background(), ForwardBatch{CaptureHiddenMode: CaptureFull}, tree, reqs, 2, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.AcceptLengthPerReq[0], "the drafted child's token is forbidden, so acceptance stops at the root")
	assert.Equal(t, []int64{100}, result.VerifiedID)
	assert.Equal(t, []int64{1}, result.RejectedSlots)
	assert.Equal(t, -1e30, rootLogits[7], "the forbidden vocabulary id is masked to -inf in place")
	assert.NotEqual(t, -1e30, rootLogits[3], "other vocabulary ids are left untouched by the mask")
}

func TestVerifier_Verify_ErrorsOnNonFiniteVerifyLogits(t *testing.T) {
	tree := VerifyInput{
		DraftTokens:        []int64{100, 7},
		Positions:          []int64{10, 11},
		RetriveIndex:       []int64{0, 1},
		RetriveNextToken:   []int64{1, -1},
		RetriveNextSibling: []int64{-1, -1},
		TreeMask:           []bool{true, false, true, true},
	}

	rootLogits := []float64{1, 2, math.NaN(), 4}
	childLogits := make([]float64, 4)

	v := &Verifier{
		Target: &fakeTargetRunner{
			verifyLogits: [][]float64{rootLogits, childLogits},
			hidden:       [][]float64{make([]float64, 2), make([]float64, 2)},
		},
		RNG:      NewPartitionedRNG(NewSimulationKey(1)),
		CheckNaN: true,
	}

	reqs := []*Request{{ID: "r1", SeqLen: 0}}
	_, err := v.Verify(context.Background(), ForwardBatch{CaptureHiddenMode: CaptureFull}, tree, reqs, 2, 3)
	assert.ErrorIs(t, err, ErrNumeric)
}

func TestVerifier_Verify_AttachesLogprobsWhenRequested(t *testing.T) {
	tree := VerifyInput{
		DraftTokens:        []int64{100, 7},
		Positions:          []int64{10, 11},
		RetriveIndex:       []int64{0, 1},
		RetriveNextToken:   []int64{1, -1},
		RetriveNextSibling: []int64{-1, -1},
		TreeMask:           []bool{true, false, true, true},
	}

	rootLogits := make([]float64, 10)
	for i := range rootLogits {
		rootLogits[i] = -50
	}
	rootLogits[7] = 50
	childLogits := make([]float64, 10)

	v := &Verifier{
		Target: &fakeTargetRunner{
			verifyLogits: [][]float64{rootLogits, childLogits},
			hidden:       [][]float64{make([]float64, 4), make([]float64, 4)},
		},
		RNG: NewPartitionedRNG(NewSimulationKey(42)),
	}

	reqs := []*Request{{ID: "r1", SeqLen: 10, Logprob: &LogprobRequest{TopK: 2}}}
	result, err := v.Verify(context.Background(), ForwardBatch{CaptureHiddenMode: CaptureFull}, tree, reqs, 2, 3)
	require.NoError(t, err)

	require.Len(t, result.Logprobs.SelectedLogprob, 2, "one logprob per accepted position (root + child)")
	lp := logSoftmax(childLogits)
	assert.InDelta(t, lp[7], result.Logprobs.SelectedLogprob[1], 1e-9, "child position's logprob is for its own selected token 7")
	require.Len(t, result.Logprobs.TopLogprobs[1], 2)
}

func TestVerifier_Verify_SkipsLogprobsWhenNotRequested(t *testing.T) {
	tree := VerifyInput{
		DraftTokens:        []int64{100, 7},
		Positions:          []int64{10, 11},
		RetriveIndex:       []int64{0, 1},
		RetriveNextToken:   []int64{1, -1},
		RetriveNextSibling: []int64{-1, -1},
		TreeMask:           []bool{true, false, true, true},
	}
	rootLogits := make([]float64, 10)
	for i := range rootLogits {
		rootLogits[i] = -50
	}
	rootLogits[7] = 50
	childLogits := make([]float64, 10)

	v := &Verifier{
		Target: &fakeTargetRunner{
			verifyLogits: [][]float64{rootLogits, childLogits},
			hidden:       [][]float64{make([]float64, 4), make([]float64, 4)},
		},
		RNG: NewPartitionedRNG(NewSimulationKey(42)),
	}

	reqs := []*Request{{ID: "r1", SeqLen: 10}}
	result, err := v.Verify(context.Background(), ForwardBatch{CaptureHiddenMode: CaptureFull}, tree, reqs, 2, 3)
	require.NoError(t, err)
	assert.Empty(t, result.Logprobs.SelectedLogprob)
}

func TestVerifier_Verify_ErrorsWithoutCapturedHiddenStates(t *testing.T) {
	tree := VerifyInput{DraftTokens: []int64{1}, RetriveNextToken: []int64{-1}, RetriveNextSibling: []int64{-1}, TreeMask: []bool{true}}
	v := &Verifier{
		Target: &fakeTargetRunner{verifyLogits: [][]float64{{1, 2, 3}}},
		RNG:    NewPartitionedRNG(NewSimulationKey(1)),
	}
	_, err := v.Verify(context.Background(), ForwardBatch{}, tree, []*Request{{ID: "r1"}}, 1, 2)
	assert.ErrorIs(t, err, ErrInvariant)
}
