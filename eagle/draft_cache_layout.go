package eagle

import "github.com/specdecode/eagleworker/eagle/internal/util"

// ReqToTokenTable is the read/append interface the worker needs into
// the shared request-to-token table: SlotAt resolves "last_loc" — the
// cache slot id a request's most recent token occupies — for
// page-aligned extend allocation, and Append records a newly allocated
// slot once the worker commits it. The table itself is owned by
// PagedKvAllocator's implementation (eagle/kv); the worker plumbs it
// through so layout computation stays a pure function of its inputs
// plus this one lookup.
type ReqToTokenTable interface {
	SlotAt(poolIndex int, position int64) int64
	Append(poolIndex int, slot int64)
}

// DraftLayout is the result of computing a draft-step cache allocation
// plan for one batch.
type DraftLayout struct {
	PrefixLens         []int64 // per-request prefix length before this draft allocation
	NewSeqLens         []int64 // per-request sequence length after allocation
	ExtendLens         []int64 // per-request slot count to allocate (paged paths only)
	LastLoc            []int64 // per-request slot id of (req, prefixLens[i]-1) (paged paths only)
	NumNewPagesPerTopK []int64 // per-request new-page count per branch (P>1, K>1 path only)
	PerReqSlotCounts   []int64 // per-request slot count, populated in every regime
	TotalSlots         int64   // total slots to request from the allocator in one call
}

// ComputeDraftLayout implements the three cache-layout regimes, given
// seqLens (per-request prefix length before the draft pass), the
// speculative step count S, branching factor K, and page size P.
// poolIndices gives each request's row in table, parallel to seqLens.
//
// table is only consulted when P > 1 (it resolves LastLoc); pass nil
// for the P == 1 path.
func ComputeDraftLayout(seqLens []int64, poolIndices []int, numSteps, topk int, pageSize int64, table ReqToTokenTable) DraftLayout {
	b := int64(len(seqLens))
	s := int64(numSteps)
	k := int64(topk)

	if pageSize == 1 {
		// Single call, B*S*K slots, no prefix/page reasoning.
		perReq := make([]int64, b)
		for i := range perReq {
			perReq[i] = s * k
		}
		return DraftLayout{
			PrefixLens:       append([]int64(nil), seqLens...),
			NewSeqLens:       addScalar(seqLens, s*k),
			PerReqSlotCounts: perReq,
			TotalSlots:       b * s * k,
		}
	}

	if topk == 1 {
		prefixLens := append([]int64(nil), seqLens...)
		newSeqLens := addScalar(seqLens, s)
		lastLoc := resolveLastLoc(prefixLens, poolIndices, table)
		extendLens := make([]int64, b)
		var total int64
		for i := range extendLens {
			extendLens[i] = newSeqLens[i] - prefixLens[i]
			total += extendLens[i]
		}
		return DraftLayout{
			PrefixLens:       prefixLens,
			NewSeqLens:       newSeqLens,
			ExtendLens:       extendLens,
			LastLoc:          lastLoc,
			PerReqSlotCounts: extendLens,
			TotalSlots:       total,
		}
	}

	// P > 1, K > 1: the last partial page of each sequence must be
	// logically duplicated K times so every branch has contiguous
	// trailing pages.
	prefixLens := append([]int64(nil), seqLens...)
	lastLoc := resolveLastLoc(prefixLens, poolIndices, table)
	newSeqLens := make([]int64, b)
	extendLens := make([]int64, b)
	numNewPages := make([]int64, b)
	var total int64
	for i, prefix := range prefixLens {
		lastPageLen := prefix % pageSize
		numNewPagesPerTopK := util.CeilDiv(lastPageLen+s, pageSize)
		newSeqLen := (prefix/pageSize)*pageSize + numNewPagesPerTopK*pageSize*k
		numNewPages[i] = numNewPagesPerTopK
		newSeqLens[i] = newSeqLen
		extendLens[i] = newSeqLen - prefix
		total += extendLens[i]
	}
	return DraftLayout{
		PrefixLens:         prefixLens,
		NewSeqLens:         newSeqLens,
		ExtendLens:         extendLens,
		LastLoc:            lastLoc,
		NumNewPagesPerTopK: numNewPages,
		PerReqSlotCounts:   extendLens,
		TotalSlots:         total,
	}
}

func addScalar(in []int64, delta int64) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = v + delta
	}
	return out
}

func resolveLastLoc(prefixLens []int64, poolIndices []int, table ReqToTokenTable) []int64 {
	out := make([]int64, len(prefixLens))
	if table == nil {
		for i := range out {
			out[i] = -1
		}
		return out
	}
	for i, prefix := range prefixLens {
		if prefix == 0 || i >= len(poolIndices) {
			out[i] = -1
			continue
		}
		out[i] = table.SlotAt(poolIndices[i], prefix-1)
	}
	return out
}
