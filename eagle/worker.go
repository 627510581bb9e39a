package eagle

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/specdecode/eagleworker/eagle/trace"
)

// ForwardResult is the Worker.Forward return tuple:
// (logits_output, next_tokens, batch_id, num_accepted, can_use_graph).
type ForwardResult struct {
	Logits      LogitsOutput
	NextTokens  []int64
	BatchID     string
	NumAccepted int64
	CanUseGraph bool
	Logprobs    LogprobAttachment
}

// Worker is the public orchestrator: it owns both model runners, the
// shared cache allocator, and dispatches extend vs decode. One Worker
// instance advances exactly one batch at a time.
type Worker struct {
	Config    SpeculativeConfig
	Draft     DraftRunner
	Target    TargetRunner
	Allocator PagedKvAllocator
	ReqTable  ReqToTokenTable
	RNG       *PartitionedRNG
	HotToken  *HotTokenMap
	Metrics   *Metrics
	Log       *logrus.Logger
	Trace     *trace.Run // nil disables tracing
}

// Forward runs one iteration of speculative generation for batch,
// dispatching to the extend path or the draft/verify/extend-after-
// decode path.
func (w *Worker) Forward(ctx context.Context, batch *Batch) (ForwardResult, error) {
	if batch.IsIdle() {
		return ForwardResult{BatchID: batch.ID}, nil
	}

	if batch.IsExtend() {
		return w.forwardExtend(ctx, batch)
	}
	return w.forwardDecode(ctx, batch)
}

// forwardExtend implements the extend branch: run the target model
// with full hidden-state capture, sample the next token, then run the
// draft model's extend pass to seed its KV cache and the initial top-k
// for the first decode step.
func (w *Worker) forwardExtend(ctx context.Context, batch *Batch) (ForwardResult, error) {
	fb := ForwardBatch{
		Mode:              ForwardExtend,
		SeqLens:           batch.SeqLens(),
		CaptureHiddenMode: CaptureFull,
	}

	out, err := w.Target.ForwardTarget(ctx, fb)
	if err != nil {
		return ForwardResult{}, fmt.Errorf("forward extend target pass: %w", err)
	}
	if err := w.detectNaN(out.NextTokenLogits); err != nil {
		return ForwardResult{}, err
	}

	nextTokens := make([]int64, len(batch.Requests))
	for i, logits := range out.NextTokenLogits {
		p := softmax(logits)
		rng := w.RNG.ForRequest(SubsystemVerify(batch.Requests[i].ID), batch.Requests[i])
		nextTokens[i] = int64(sampleFrom(p, rng))
	}

	for i, req := range batch.Requests {
		draftIn := DraftInput{
			HiddenStates: [][]float64{out.HiddenStates[i]},
			VerifiedID:   []int64{nextTokens[i]},
			Positions:    req.SeqLen,
			CaptureMode:  CaptureLast,
		}
		draftFb := fb
		draftFb.Mode = ForwardExtend
		draftFb.InputIDs = []int64{nextTokens[i]}

		res, err := w.Draft.ForwardDraft(ctx, draftFb, draftIn)
		if err != nil {
			return ForwardResult{}, fmt.Errorf("forward_draft_extend request %s: %w", req.ID, err)
		}
		topkP, topkIndex := topKFromLogits(res.NextTokenLogits, w.Config.EagleTopK)
		w.HotToken.ApplyIndices(topkIndex)
		draftIn.TopkP = topkP
		draftIn.TopkIndex = topkIndex
		draftIn.HiddenStates = res.HiddenStates
		batch.DraftState[req.ID] = draftIn
		req.SeqLen++
		req.IsExtend = false
	}

	var logprobs LogprobAttachment
	anyLogprob := false
	reqOf := make([]LogprobRequest, len(batch.Requests))
	for i, req := range batch.Requests {
		if req.Logprob != nil {
			anyLogprob = true
			reqOf[i] = *req.Logprob
		}
	}
	if anyLogprob {
		logprobs = AttachLogprobs(out.NextTokenLogits, nextTokens, reqOf)
	}

	return ForwardResult{
		Logits:      out,
		NextTokens:  nextTokens,
		BatchID:     batch.ID,
		NumAccepted: 0,
		CanUseGraph: false,
		Logprobs:    logprobs,
	}, nil
}

// forwardDecode implements the decode branch:
// draft -> verify -> draft_extend_after_decode.
func (w *Worker) forwardDecode(ctx context.Context, batch *Batch) (ForwardResult, error) {
	seqLens := batch.SeqLens()
	layout := ComputeDraftLayout(seqLens, batch.PoolIndices(), w.Config.NumSteps, w.Config.EagleTopK, w.Config.PageSize, w.ReqTable)

	slots, allocState, err := w.allocateDraftLayout(layout)
	if err != nil {
		return ForwardResult{}, err
	}
	w.recordAllocatedSlots(batch, layout, slots)

	loop := &DraftLoop{Runner: w.Draft, HotToken: w.HotToken, CheckNaN: w.Config.EnableNanDetection}
	fb := ForwardBatch{Mode: ForwardDecode, SeqLens: seqLens, OutCacheLoc: slots}

	draftInputs := w.perRequestDraftInputs(batch)
	trees := make([]VerifyInput, len(batch.Requests))
	var seqLensSum int64
	for i, req := range batch.Requests {
		frags, err := loop.Run(ctx, fb, draftInputs[i], w.Config.NumSteps, w.Config.EagleTopK)
		if err != nil {
			w.Allocator.RestoreState(allocState)
			return ForwardResult{}, err
		}
		verifiedID := draftInputs[i].VerifiedID[len(draftInputs[i].VerifiedID)-1]
		tree := BuildTree(frags, verifiedID, req.SeqLen, w.Config.EagleTopK, w.Config.NumSteps, w.Config.NumDraftTokens, 0, w.Config.EagleTopK)
		trees[i] = tree
		seqLensSum += req.SeqLen
	}
	combined := ConcatTrees(trees, seqLensSum)
	// BuildTree keeps at most NumDraftTokens nodes per request, fewer when
	// the draft loop produced fewer candidates; the verifier walks each
	// request's block by the node count the trees were actually built with.
	treeSize := w.Config.NumDraftTokens
	if len(trees) > 0 {
		treeSize = len(trees[0].DraftTokens)
	}

	verifier := &Verifier{Target: w.Target, RNG: w.RNG, VocabSize: w.Config.VocabSize, CheckNaN: w.Config.EnableNanDetection}
	vfb := fb
	vfb.Mode = ForwardDecode
	vfb.InputIDs = combined.DraftTokens
	vfb.Positions = combined.Positions
	vfb.TreeMask = combined.TreeMask
	vfb.CaptureHiddenMode = CaptureFull

	result, err := verifier.Verify(ctx, vfb, combined, batch.Requests, treeSize, w.Config.EagleTopK)
	if err != nil {
		w.Allocator.RestoreState(allocState)
		return ForwardResult{}, err
	}
	for _, di := range result.NextDraftInput {
		if err := w.detectNaN(di.HiddenStates); err != nil {
			w.Allocator.RestoreState(allocState)
			return ForwardResult{}, err
		}
	}

	// Reclaim rejected branches in bulk; accepted slots stay leased.
	w.Allocator.Free(result.RejectedSlots)
	if w.Metrics != nil {
		w.Metrics.RecordStep(result.AcceptLengthPerReq, int64(len(combined.DraftTokens)), w.Allocator.UsedSlots())
	}

	for i, req := range batch.Requests {
		if w.Trace != nil {
			w.Trace.RecordStep(trace.StepRecord{
				RequestID:      req.ID,
				Clock:          req.SeqLen,
				TreeSize:       treeSize,
				AcceptedLength: result.AcceptLengthPerReq[i],
				FallbackToken:  result.AcceptLengthPerReq[i] <= 1,
				SlotsUsed:      w.Allocator.UsedSlots(),
			})
		}
		batch.DraftState[req.ID] = result.NextDraftInput[i]
		req.SeqLen += result.AcceptLengthPerReq[i]
	}

	if err := w.draftExtendAfterDecode(ctx, batch, result); err != nil {
		return ForwardResult{}, err
	}

	return ForwardResult{
		NextTokens:  result.VerifiedID,
		BatchID:     batch.ID,
		NumAccepted: result.TotalAccepted(),
		CanUseGraph: true,
		Logprobs:    result.Logprobs,
	}, nil
}

// recordAllocatedSlots appends each request's newly allocated slots to
// the shared request-to-token table in allocation order, so a later
// draft step's page-aligned extend can resolve last_loc against them.
// Slots belonging to branches the verifier goes on to reject are left
// recorded too: every future lookup only ever consults positions
// already committed by an earlier step, so the extra rows are never
// read.
func (w *Worker) recordAllocatedSlots(batch *Batch, layout DraftLayout, slots []int64) {
	if w.ReqTable == nil {
		return
	}
	offset := 0
	for i, req := range batch.Requests {
		if i >= len(layout.PerReqSlotCounts) {
			break
		}
		n := int(layout.PerReqSlotCounts[i])
		for j := 0; j < n && offset < len(slots); j++ {
			w.ReqTable.Append(req.PoolIndex, slots[offset])
			offset++
		}
	}
}

// allocateDraftLayout dispatches to the allocator's flat or paged-
// extend call depending on the layout's regime.
func (w *Worker) allocateDraftLayout(layout DraftLayout) ([]int64, AllocatorState, error) {
	if w.Config.PageSize == 1 {
		slots, state, err := w.Allocator.AllocTokenSlots(layout.TotalSlots, true)
		if err != nil {
			return nil, AllocatorState{}, fmt.Errorf("%w: %v", ErrAllocator, err)
		}
		return slots, state, nil
	}
	slots, state, err := w.Allocator.AllocPagedTokenSlotsExtend(layout.PrefixLens, layout.NewSeqLens, layout.LastLoc, layout.TotalSlots, true)
	if err != nil {
		return nil, AllocatorState{}, fmt.Errorf("%w: %v", ErrAllocator, err)
	}
	return slots, state, nil
}

// draftExtendAfterDecode runs a second draft forward ingesting every
// newly-accepted token, re-seeding hidden state and top-k for the next
// iteration. Each request's accept length is an independent local
// value here, so no shared-buffer save/restore is needed; a future
// device-graph capture path that shares buffers across calls will.
func (w *Worker) draftExtendAfterDecode(ctx context.Context, batch *Batch, result VerifyOutput) error {
	fb := ForwardBatch{Mode: ForwardExtend, SeqLens: batch.SeqLens()}
	for i, req := range batch.Requests {
		di := result.NextDraftInput[i]
		reqFb := fb
		reqFb.InputIDs = di.VerifiedID
		out, err := w.Draft.ForwardDraft(ctx, reqFb, di)
		if err != nil {
			return fmt.Errorf("draft_extend_after_decode request %s: %w", req.ID, err)
		}
		newTopkP, newTopkIndex := topKFromLogits(out.NextTokenLogits, w.Config.EagleTopK)
		w.HotToken.ApplyIndices(newTopkIndex)
		di.TopkP = newTopkP
		di.TopkIndex = newTopkIndex
		di.HiddenStates = out.HiddenStates
		batch.DraftState[req.ID] = di
	}
	return nil
}

// perRequestDraftInputs collects each request's carried-over DraftInput
// from batch.DraftState in batch order.
func (w *Worker) perRequestDraftInputs(batch *Batch) []DraftInput {
	out := make([]DraftInput, len(batch.Requests))
	for i, req := range batch.Requests {
		di := batch.DraftState[req.ID]
		out[i] = di
	}
	return out
}

// detectNaN scans logits for NaN/Inf when enabled by configuration,
// returning an ErrNumeric-wrapped error that invalidates the whole
// batch.
func (w *Worker) detectNaN(rows [][]float64) error {
	if !w.Config.EnableNanDetection {
		return nil
	}
	return checkFinite(rows)
}

// checkFinite scans rows for NaN/Inf and returns an ErrNumeric-wrapped
// error identifying the first offending row/column. Shared by Worker,
// DraftLoop, and Verifier: it checks the target-extend logits, the
// intermediate draft-loop logits, the target-verify logits, and the
// hidden states seeded by verification. The logits of the draft extend
// passes (after the target extend and after decode) are not checked.
func checkFinite(rows [][]float64) error {
	for i, row := range rows {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite value at row %d col %d", ErrNumeric, i, j)
			}
		}
	}
	return nil
}
