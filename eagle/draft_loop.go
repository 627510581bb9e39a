package eagle

import (
	"context"
	"fmt"
	"sort"
)

// DraftLoop runs the S-step draft expansion, calling back
// into a DraftRunner once per intermediate step and accumulating the
// per-step (score, token, parent) fragments TreeBuilder consumes.
type DraftLoop struct {
	Runner   DraftRunner
	HotToken *HotTokenMap // nil if no remap configured
	CheckNaN bool         // if true, abort on non-finite intermediate draft logits
}

// scoredChild is one candidate produced by selectTopKTokens, prior to
// being flattened into TreeFragments.
type scoredChild struct {
	token  int64
	score  float64
	parent int
}

// Run executes the S-step loop for one request and returns the
// accumulated TreeFragments, ready for BuildTree. batch carries the
// shared forward-call plumbing (mode, cache locations); input is this
// request's DraftInput.
func (l *DraftLoop) Run(ctx context.Context, batch ForwardBatch, input DraftInput, numSteps, topk int) (TreeFragments, error) {
	if len(input.TopkIndex) == 0 {
		return TreeFragments{}, nil
	}

	frags := TreeFragments{
		ScoreList:  make([][]float64, 0, numSteps),
		TokenList:  make([][]int64, 0, numSteps),
		ParentList: make([][]int64, 0, numSteps),
	}

	// children holds the current active K paths, carried step to
	// step; at step 0 they are the K leaf paths from the incoming
	// topk (step 0).
	children := l.selectInitial(input.TopkP, input.TopkIndex)
	position := input.Positions

	for step := 0; step < numSteps; step++ {
		stepScores := make([]float64, 0, topk)
		stepTokens := make([]int64, 0, topk)
		stepParents := make([]int64, 0, topk)

		for _, c := range children {
			stepScores = append(stepScores, c.score)
			stepTokens = append(stepTokens, c.token)
			if step == 0 {
				stepParents = append(stepParents, -1)
			} else {
				stepParents = append(stepParents, int64(c.parent))
			}
		}
		frags.ScoreList = append(frags.ScoreList, stepScores)
		frags.TokenList = append(frags.TokenList, stepTokens)
		frags.ParentList = append(frags.ParentList, stepParents)

		if step == numSteps-1 {
			break
		}

		childTokens := make([]int64, 0, topk)
		for _, c := range children {
			childTokens = append(childTokens, c.token)
		}

		stepBatch := batch
		stepBatch.InputIDs = childTokens
		stepBatch.Mode = ForwardDecode
		position++
		stepBatch.Positions = []int64{position}

		out, err := l.Runner.ForwardDraft(ctx, stepBatch, input)
		if err != nil {
			return TreeFragments{}, fmt.Errorf("draft loop step %d: %w", step, err)
		}
		if l.CheckNaN {
			if err := checkFinite(out.NextTokenLogits); err != nil {
				return TreeFragments{}, err
			}
		}

		// out carries one logits row per active path (len(children)
		// rows); each row's own top-k children compete against every
		// other path's, combined multiplicatively with that path's
		// cumulative score, and the global top `topk` survive.
		newTopkP, newTopkIndex := topKFromLogits(out.NextTokenLogits, topk)
		l.HotToken.ApplyIndices(newTopkIndex)

		candidates := make([]scoredChild, 0, len(children)*topk)
		for parentIdx := range children {
			rowBase := parentIdx * topk
			for k := 0; k < topk && rowBase+k < len(newTopkP); k++ {
				candidates = append(candidates, scoredChild{
					token:  newTopkIndex[rowBase+k],
					score:  children[parentIdx].score * newTopkP[rowBase+k],
					parent: parentIdx,
				})
			}
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
		n := topk
		if n > len(candidates) {
			n = len(candidates)
		}
		children = append([]scoredChild(nil), candidates[:n]...)
	}

	return frags, nil
}

// selectInitial builds the K leaf paths for step 0: scores are the raw
// incoming top-k probabilities, unchanged (step 0 case).
func (l *DraftLoop) selectInitial(topkP []float64, topkIndex []int64) []scoredChild {
	out := make([]scoredChild, 0, len(topkIndex))
	for i := range topkIndex {
		out = append(out, scoredChild{token: topkIndex[i], score: topkP[i]})
	}
	return out
}

// topKFromLogits extracts the top-k token probabilities and ids per row
// from raw logits via a numerically stable softmax, used when a
// DraftRunner returns logits rather than pre-computed top-k (the
// reference runtime's path; device kernels usually return topk
// directly and bypass this).
func topKFromLogits(logits [][]float64, k int) (probs []float64, indices []int64) {
	for _, row := range logits {
		p := softmax(row)
		order := make([]int, len(p))
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(i, j int) bool { return p[order[i]] > p[order[j]] })
		n := k
		if n > len(order) {
			n = len(order)
		}
		for i := 0; i < n; i++ {
			probs = append(probs, p[order[i]])
			indices = append(indices, int64(order[i]))
		}
	}
	return probs, indices
}
