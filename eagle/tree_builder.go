package eagle

import "sort"

// TreeFragments accumulates the three per-step lists DraftLoop produces:
// at step i, ScoreList[i]/TokenList[i]/ParentList[i] hold
// one entry per (request, branch) candidate child produced at that
// depth. ParentList[i][j] indexes into step i-1's flat candidate list
// (within the same request), or -1 at step 0 where the parent is the
// request's verified root.
type TreeFragments struct {
	ScoreList  [][]float64
	TokenList  [][]int64
	ParentList [][]int64
}

// candidate is one drafted node from TreeFragments (reqCount per step),
// flattened across steps for a single request, used internally while
// picking the nodes TreeBuilder keeps.
type candidate struct {
	step      int
	branch    int // index within ScoreList[step]/TokenList[step] for this request
	parent    int // index of parent candidate in the kept set (-1 for root), filled after selection
	token     int64
	score     float64
	pathIndex int // tie-break: branch path ordinal assigned at step 0, inherited by descendants
	depth     int
}

// BuildTree assembles the candidate tree for one request from its slice
// of TreeFragments plus its verified root token and base sequence
// position, keeping the draftTokens-1 highest-scoring candidates (all of
// them when there are fewer) under the root and laying them out as
// parallel flat arrays, so the tree has at most draftTokens nodes. reqStart/reqCount locate this request's
// entries within each step's flat ScoreList/TokenList/ParentList
// (branches [reqStart, reqStart+reqCount)).
func BuildTree(frags TreeFragments, verifiedID int64, baseSeqLen int64, topk, numSteps, draftTokens int, reqStart, reqCount int) VerifyInput {
	// Step 0: reqCount == topk branches, each its own path.
	all := make([]candidate, 0, draftTokens)
	// pathOf maps a (step, branch-within-request) back to its candidate
	// slice index in `all`, used to resolve ParentList references.
	type key struct{ step, branch int }
	pathOf := make(map[key]int)

	for step := 0; step < numSteps; step++ {
		if step >= len(frags.TokenList) {
			break
		}
		tokens := frags.TokenList[step]
		scores := frags.ScoreList[step]
		parents := frags.ParentList[step]
		for b := 0; b < reqCount; b++ {
			idx := reqStart + b
			if idx >= len(tokens) {
				continue
			}
			c := candidate{
				step:   step,
				branch: b,
				token:  tokens[idx],
				score:  scores[idx],
				depth:  step + 1,
			}
			if step == 0 {
				c.pathIndex = b
				c.parent = -1
			} else {
				parentBranch := int(parents[idx])
				c.pathIndex = parentBranch // inherits the ordinal of the branch it descends from at step 0; refined below
				if parentIdx, ok := pathOf[key{step - 1, parentBranch}]; ok {
					c.parent = parentIdx
					c.pathIndex = all[parentIdx].pathIndex
				} else {
					c.parent = -1
				}
			}
			pathOf[key{step, b}] = len(all)
			all = append(all, c)
		}
	}

	// Tie-break sort: descending score, then lower pathIndex, then
	// lower depth.
	order := make([]int, len(all))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := all[order[i]], all[order[j]]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.pathIndex != b.pathIndex {
			return a.pathIndex < b.pathIndex
		}
		return a.depth < b.depth
	})

	keepCount := draftTokens - 1 // node 0 is the verified root, not a candidate
	if keepCount > len(order) {
		keepCount = len(order)
	}
	kept := order[:keepCount]
	keptSet := make(map[int]bool, keepCount)
	for _, idx := range kept {
		keptSet[idx] = true
	}

	// oldIdx -> new tree-flat slot, 1-based (0 reserved for root).
	newSlot := make(map[int]int, keepCount)
	sort.Slice(kept, func(i, j int) bool { return kept[i] < kept[j] })
	for i, idx := range kept {
		newSlot[idx] = i + 1
	}

	total := keepCount + 1
	draftTok := make([]int64, total)
	positions := make([]int64, total)
	nextToken := make([]int64, total)
	nextSibling := make([]int64, total)
	mask := make([]bool, total*total)

	draftTok[0] = verifiedID
	positions[0] = baseSeqLen
	nextToken[0] = -1
	nextSibling[0] = -1
	mask[0*total+0] = true

	// childHead[parentSlot] tracks the most recently linked child, so
	// the next child discovered becomes its sibling (reverse-chained,
	// then the head is recorded as the parent's first child).
	childHead := make(map[int]int)

	for _, idx := range kept {
		slot := newSlot[idx]
		c := all[idx]
		draftTok[slot] = c.token
		positions[slot] = baseSeqLen + int64(c.depth)
		nextToken[slot] = -1
		nextSibling[slot] = -1

		parentSlot := 0
		if c.parent >= 0 && keptSet[c.parent] {
			parentSlot = newSlot[c.parent]
		}

		if prevChild, ok := childHead[parentSlot]; ok {
			nextSibling[slot] = -1
			// link prevChild -> slot as siblings by walking to the end,
			// but since we process in ascending slot order, prevChild is
			// simply the previous child recorded; chain it forward.
			nextSibling[prevChild] = slot
		} else {
			nextToken[parentSlot] = slot
		}
		childHead[parentSlot] = slot

		// Ancestor mask: copy parent's row, then add self.
		copy(mask[slot*total:slot*total+total], mask[parentSlot*total:parentSlot*total+total])
		mask[slot*total+slot] = true
	}

	retrieveIndex := make([]int64, total)
	for i := range retrieveIndex {
		retrieveIndex[i] = int64(i)
	}

	return VerifyInput{
		DraftTokens:        draftTok,
		TreeMask:           mask,
		Positions:          positions,
		RetriveIndex:       retrieveIndex,
		RetriveNextToken:   nextToken,
		RetriveNextSibling: nextSibling,
		CaptureHiddenMode:  CaptureFull,
	}
}

// ConcatTrees assembles a batch-wide VerifyInput from per-request trees
// built by BuildTree, rewriting every index field from request-local to
// batch-flat global indices so the verifier can walk the combined tree
// without carrying a separate base offset through every helper. Every
// request tree must have the same node count D.
func ConcatTrees(trees []VerifyInput, seqLensSum int64) VerifyInput {
	if len(trees) == 0 {
		return VerifyInput{}
	}
	d := len(trees[0].DraftTokens)
	total := d * len(trees)

	out := VerifyInput{
		DraftTokens:        make([]int64, 0, total),
		Positions:          make([]int64, 0, total),
		RetriveIndex:       make([]int64, 0, total),
		RetriveNextToken:   make([]int64, 0, total),
		RetriveNextSibling: make([]int64, 0, total),
		TreeMask:           make([]bool, total*total),
		SeqLensSum:         seqLensSum,
		CaptureHiddenMode:  CaptureFull,
	}

	for b, t := range trees {
		base := b * d
		out.DraftTokens = append(out.DraftTokens, t.DraftTokens...)
		out.Positions = append(out.Positions, t.Positions...)
		for _, idx := range t.RetriveIndex {
			out.RetriveIndex = append(out.RetriveIndex, idx+int64(base))
		}
		for _, idx := range t.RetriveNextToken {
			out.RetriveNextToken = append(out.RetriveNextToken, offsetOrSentinel(idx, base))
		}
		for _, idx := range t.RetriveNextSibling {
			out.RetriveNextSibling = append(out.RetriveNextSibling, offsetOrSentinel(idx, base))
		}
		for i := 0; i < d; i++ {
			for j := 0; j < d; j++ {
				out.TreeMask[(base+i)*total+(base+j)] = t.TreeMask[i*d+j]
			}
		}
	}
	return out
}

func offsetOrSentinel(idx int64, base int) int64 {
	if idx < 0 {
		return -1
	}
	return idx + int64(base)
}
