package eagle

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// softmax returns a numerically stable softmax of logits, subtracting
// the row max before exponentiating (mirrors eagle_worker.py's
// log_softmax temperature handling, collapsed to the k==1 temperature
// case used by the reference draft runtime).
func softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	out := append([]float64(nil), logits...)
	max := floats.Max(out)
	var sum float64
	for i, v := range out {
		e := math.Exp(v - max)
		out[i] = e
		sum += e
	}
	floats.Scale(1/sum, out)
	return out
}

// logSoftmax returns log-softmax(logits), used for logprob attachment
// where float64 precision on the log scale matters more than a plain
// probability vector (add_logprob_values).
func logSoftmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	out := append([]float64(nil), logits...)
	max := floats.Max(out)
	logSumExp := 0.0
	for _, v := range out {
		logSumExp += math.Exp(v - max)
	}
	logSumExp = math.Log(logSumExp) + max
	for i, v := range out {
		out[i] = v - logSumExp
	}
	return out
}

// LogprobAttachment computes the per-accepted-token log-probabilities
// a request asked for, plus its top-K logprobs if requested, following
// the add_logprob_values shape of the original worker: one logprob per
// accepted token for its own selected id, and (optionally) the top-K
// logprob/token-id pairs at that same position.
type LogprobAttachment struct {
	// SelectedLogprob is the log-probability of the token that was
	// actually selected at each accepted position.
	SelectedLogprob []float64

	// TopLogprobs and TopTokenIDs are populated only when a request's
	// LogprobRequest.TopK > 0; nil rows otherwise.
	TopLogprobs [][]float64
	TopTokenIDs [][]int64
}

// AttachLogprobs computes logprob attachments for a batch of accepted
// positions given their raw logits and per-request logprob settings.
// logitsPerPosition and selectedID must be the same length; reqOf maps
// each position back to the owning request's LogprobRequest.
func AttachLogprobs(logitsPerPosition [][]float64, selectedID []int64, reqOf []LogprobRequest) LogprobAttachment {
	n := len(logitsPerPosition)
	out := LogprobAttachment{
		SelectedLogprob: make([]float64, n),
		TopLogprobs:     make([][]float64, n),
		TopTokenIDs:     make([][]int64, n),
	}
	for i := 0; i < n; i++ {
		lp := logSoftmax(logitsPerPosition[i])
		if int(selectedID[i]) < len(lp) {
			out.SelectedLogprob[i] = lp[selectedID[i]]
		}
		req := reqOf[i]
		if req.TopK <= 0 {
			continue
		}
		topProbs, topIDs := topKLogprobs(lp, req.TopK)
		out.TopLogprobs[i] = topProbs
		out.TopTokenIDs[i] = topIDs
	}
	return out
}

func topKLogprobs(lp []float64, k int) ([]float64, []int64) {
	order := make([]int, len(lp))
	for i := range order {
		order[i] = i
	}
	// Partial selection sort is fine at these K (single-digit-to-low-
	// dozens) and keeps this free of an extra sort.Interface allocation.
	for i := 0; i < k && i < len(order); i++ {
		best := i
		for j := i + 1; j < len(order); j++ {
			if lp[order[j]] > lp[order[best]] {
				best = j
			}
		}
		order[i], order[best] = order[best], order[i]
	}
	n := k
	if n > len(order) {
		n = len(order)
	}
	probs := make([]float64, n)
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		probs[i] = lp[order[i]]
		ids[i] = int64(order[i])
	}
	return probs, ids
}
