package eagle

// VerifyOutput is the result of one target verify pass: the tokens
// accepted from the candidate tree, per-request accept counts, and the
// DraftInput that seeds the next draft iteration. A worker
// consuming VerifyOutput never looks back into VerifyInput — every
// downstream decision (cache reclaim, logprob attachment, draft
// continuation) is a function of these fields alone.
type VerifyOutput struct {
	// VerifiedID is the flat, request-major list of accepted token
	// ids, including the one bonus token sampled directly from the
	// target model's own distribution when every drafted child of a
	// node is rejected.
	VerifiedID []int64

	// AcceptedIndices gives, per accepted token, the index into the
	// originating VerifyInput's flat arrays it corresponds to — used
	// to pull the matching hidden state for capture.
	AcceptedIndices []int64

	// AcceptLengthPerReq is the number of candidate tokens accepted
	// for each request this pass, 1 <= accept <= numSteps+1.
	AcceptLengthPerReq []int64

	// RejectedSlots is the flat list of cache slot ids that belonged
	// to rejected branches and must be released back to the
	// allocator ("bulk reclaim").
	RejectedSlots []int64

	// NextDraftInput seeds the following draft iteration, one entry per
	// request in batch order.
	NextDraftInput []DraftInput

	// Logprobs carries the per-accepted-token logprob attachment. It is
	// populated when any request in the batch set Request.Logprob, with
	// one entry per accepted position of every request, in the same
	// request-major order as VerifiedID/AcceptedIndices; positions of
	// requests without Logprob get no top-k rows.
	Logprobs LogprobAttachment
}

// TotalAccepted sums AcceptLengthPerReq, the count of tokens this pass
// advanced generation by across the whole batch.
func (v VerifyOutput) TotalAccepted() int64 {
	var total int64
	for _, n := range v.AcceptLengthPerReq {
		total += n
	}
	return total
}
