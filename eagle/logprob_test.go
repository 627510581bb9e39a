package eagle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSoftmax_SumsToOneAndPreservesOrder(t *testing.T) {
	p := softmax([]float64{1, 2, 3})
	var sum float64
	for _, v := range p {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.True(t, p[2] > p[1] && p[1] > p[0])
}

func TestSoftmax_EmptyInput(t *testing.T) {
	assert.Nil(t, softmax(nil))
}

func TestLogSoftmax_MatchesLogOfSoftmax(t *testing.T) {
	logits := []float64{0.5, -1, 2, 3}
	p := softmax(logits)
	lp := logSoftmax(logits)
	for i := range p {
		assert.InDelta(t, math.Log(p[i]), lp[i], 1e-9)
	}
}

func TestAttachLogprobs_SelectedAndTopK(t *testing.T) {
	logits := [][]float64{{1, 2, 3, 4}}
	selected := []int64{3}
	reqs := []LogprobRequest{{TopK: 2}}

	out := AttachLogprobs(logits, selected, reqs)

	lp := logSoftmax(logits[0])
	assert.InDelta(t, lp[3], out.SelectedLogprob[0], 1e-9)
	assert.Len(t, out.TopLogprobs[0], 2)
	assert.Equal(t, int64(3), out.TopTokenIDs[0][0], "highest logit (index 3) ranks first")
	assert.Equal(t, int64(2), out.TopTokenIDs[0][1])
}

func TestAttachLogprobs_NoTopKRequested(t *testing.T) {
	logits := [][]float64{{1, 2, 3}}
	out := AttachLogprobs(logits, []int64{0}, []LogprobRequest{{}})
	assert.Nil(t, out.TopLogprobs[0])
	assert.Nil(t, out.TopTokenIDs[0])
}
