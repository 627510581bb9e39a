package eagle

import (
	"context"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// Verifier runs one target forward over a batch's flattened candidate
// tree and walks each request's tree to decide how many draft tokens
// to accept.
type Verifier struct {
	Target    TargetRunner
	RNG       *PartitionedRNG
	VocabSize int  // required whenever any request carries a Grammar
	CheckNaN  bool // if true, abort before sampling on non-finite verify logits
}

// Verify runs the target forward and applies the acceptance rule. reqs
// must be in the same order the tree was built in (batch order);
// treeSize is D, the per-request node count; topk seeds the width of
// the returned NextDraftInput's top-k (step 0 input shape).
func (v *Verifier) Verify(ctx context.Context, batch ForwardBatch, tree VerifyInput, reqs []*Request, treeSize, topk int) (VerifyOutput, error) {
	var mask [][][]bool
	var grammarErr error

	g, gctx := errgroup.WithContext(ctx)
	anyGrammar := false
	for _, r := range reqs {
		if r.Grammar != nil {
			anyGrammar = true
			break
		}
	}
	if anyGrammar {
		g.Go(func() error {
			_ = gctx
			m, err := buildVocabMask(tree, reqs, treeSize, v.VocabSize)
			if err != nil {
				grammarErr = err
				return err
			}
			mask = m
			return nil
		})
	}

	out, err := v.Target.ForwardVerify(ctx, batch, tree)
	if err != nil {
		return VerifyOutput{}, fmt.Errorf("verifier target forward: %w", err)
	}
	if err := g.Wait(); err != nil {
		return VerifyOutput{}, fmt.Errorf("verifier grammar mask: %w", grammarErr)
	}

	if out.HiddenStates == nil {
		return VerifyOutput{}, fmt.Errorf("%w: verify forward returned no hidden states under capture_hidden_mode=FULL", ErrInvariant)
	}
	if v.CheckNaN {
		if err := checkFinite(out.NextTokenLogits); err != nil {
			return VerifyOutput{}, err
		}
	}

	result := VerifyOutput{
		AcceptLengthPerReq: make([]int64, len(reqs)),
		NextDraftInput:     make([]DraftInput, len(reqs)),
	}

	var lpLogits [][]float64
	var lpSelected []int64
	var lpReqs []LogprobRequest
	anyLogprob := false

	for b, req := range reqs {
		base := b * treeSize
		if mask != nil {
			applyVocabMask(out.NextTokenLogits[base:base+treeSize], mask[b])
		}

		accepted, rejected := v.walkAcceptance(req, tree, out.NextTokenLogits, base, treeSize)
		result.AcceptLengthPerReq[b] = int64(len(accepted))
		var verifiedForReq []int64
		for _, idx := range accepted {
			result.AcceptedIndices = append(result.AcceptedIndices, int64(idx))
			result.VerifiedID = append(result.VerifiedID, tree.DraftTokens[idx])
			verifiedForReq = append(verifiedForReq, tree.DraftTokens[idx])

			lpLogits = append(lpLogits, out.NextTokenLogits[idx])
			lpSelected = append(lpSelected, tree.DraftTokens[idx])
			if req.Logprob != nil {
				anyLogprob = true
				lpReqs = append(lpReqs, *req.Logprob)
			} else {
				lpReqs = append(lpReqs, LogprobRequest{})
			}
		}
		for _, idx := range rejected {
			result.RejectedSlots = append(result.RejectedSlots, int64(idx))
		}

		lastAccepted := accepted[len(accepted)-1]
		topkP, topkIndex := topKFromLogits([][]float64{out.NextTokenLogits[lastAccepted]}, topk)
		var hidden [][]float64
		if out.HiddenStates != nil && lastAccepted < len(out.HiddenStates) {
			hidden = [][]float64{out.HiddenStates[lastAccepted]}
		}
		result.NextDraftInput[b] = DraftInput{
			HiddenStates: hidden,
			VerifiedID:   verifiedForReq,
			TopkP:        topkP,
			TopkIndex:    topkIndex,
			Positions:    req.SeqLen + int64(len(accepted)),
			AcceptLength: int64(len(accepted)),
			CaptureMode:  CaptureLast,
		}
	}

	if anyLogprob {
		result.Logprobs = AttachLogprobs(lpLogits, lpSelected, lpReqs)
	}

	return result, nil
}

// walkAcceptance walks request req's tree from its root (global index
// base) along the sampled target distribution, accepting while a
// random draw matches a drafted child. It returns the
// accepted global indices (including the root) in root-to-leaf order,
// and the global indices of every node in this request's block that is
// not on the accepted path (for bulk cache reclaim).
func (v *Verifier) walkAcceptance(req *Request, tree VerifyInput, logits [][]float64, base, treeSize int) (accepted, rejected []int) {
	rng := v.RNG.ForRequest(SubsystemVerify(req.ID), req)

	accepted = []int{base}
	current := base
	for step := 0; step < treeSize; step++ {
		child := firstChildMatchingDraw(tree, logits, current, rng)
		if child < 0 {
			break
		}
		accepted = append(accepted, child)
		current = child
	}

	acceptedSet := make(map[int]bool, len(accepted))
	for _, idx := range accepted {
		acceptedSet[idx] = true
	}
	for i := base; i < base+treeSize; i++ {
		if !acceptedSet[i] {
			rejected = append(rejected, i)
		}
	}
	return accepted, rejected
}

// firstChildMatchingDraw samples from node's distribution and returns
// the global index of the child whose drafted token equals the draw, or
// -1 if no child matches (acceptance stops here).
func firstChildMatchingDraw(tree VerifyInput, logits [][]float64, node int, rng *rand.Rand) int {
	p := softmax(logits[node])
	draw := sampleFrom(p, rng)

	child := int(tree.RetriveNextToken[node])
	for child != -1 {
		if tree.DraftTokens[child] == int64(draw) {
			return child
		}
		child = int(tree.RetriveNextSibling[child])
	}
	return -1
}

// sampleFrom draws a single categorical sample from probs.
func sampleFrom(probs []float64, rng *rand.Rand) int {
	r := rng.Float64()
	var cumulative float64
	for i, p := range probs {
		cumulative += p
		if r < cumulative {
			return i
		}
	}
	return len(probs) - 1
}

// buildVocabMask generates a per-node allowed-vocabulary mask from each
// request's grammar handle, walking (retrive_next_token,
// retrive_next_sibling, draft_tokens) to build the root-to-node token
// path for every node. Runs concurrently with the target
// forward; masks are rebuilt from scratch every call so no state leaks
// across steps. masks[b][n] is nil for an unconstrained node, otherwise
// the full per-vocabulary-id allowed mask AllowedMask returned for that
// node's token path.
func buildVocabMask(tree VerifyInput, reqs []*Request, treeSize, vocabSize int) ([][][]bool, error) {
	masks := make([][][]bool, len(reqs))
	for b, req := range reqs {
		if req.Grammar == nil {
			continue
		}
		base := b * treeSize
		rowMask := make([][]bool, treeSize)
		for n := 0; n < treeSize; n++ {
			path := tokenPathTo(tree, base+n)
			rowMask[n] = req.Grammar.AllowedMask(path, vocabSize)
		}
		masks[b] = rowMask
	}
	return masks, nil
}

// tokenPathTo reconstructs the root-to-node token sequence for global
// node index n by consulting its ancestor row in the tree mask (the
// mask is reflexive and transitive, so this row is exactly the set of
// ancestors including n itself).
func tokenPathTo(tree VerifyInput, n int) []int {
	total := len(tree.RetriveIndex)
	var path []int
	for i := 0; i < total; i++ {
		if tree.TreeMask[n*total+i] {
			path = append(path, int(tree.DraftTokens[i]))
		}
	}
	return path
}

// applyVocabMask forbids every vocabulary id the grammar disallows at
// each node, by vocabulary id rather than collapsing the whole row: a
// node with a non-nil mask keeps its allowed logits untouched and sets
// every forbidden id to -1e30, so softmax drives their probability to
// zero instead of flattening the row to a uniform distribution.
func applyVocabMask(logits [][]float64, rowMask [][]bool) {
	if rowMask == nil {
		return
	}
	negInf := -1e30
	for i, allowed := range rowMask {
		if i >= len(logits) || allowed == nil {
			continue
		}
		row := logits[i]
		for j := range row {
			if j < len(allowed) && !allowed[j] {
				row[j] = negInf
			}
		}
	}
}
