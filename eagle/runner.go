package eagle

import "context"

// ForwardMode distinguishes a prefill/extend pass from a decode pass.
type ForwardMode string

const (
	ForwardExtend ForwardMode = "extend"
	ForwardDecode ForwardMode = "decode"
)

// ForwardBatch is the device-bound input handed to a DraftRunner or
// TargetRunner forward call. InputIDs, Positions, and OutCacheLoc are
// flat, request-major arrays; SeqLens gives the per-request boundary
// into them. TreeMask and friends are only populated for a tree-verify
// forward (VerifyInput.Populate fills them in); they are nil for plain
// extend/decode forwards.
type ForwardBatch struct {
	Mode        ForwardMode
	InputIDs    []int64
	Positions   []int64
	SeqLens     []int64
	OutCacheLoc []int64

	// Populated only when this forward verifies a candidate tree.
	TreeMask          []bool
	RetrieveIndex     [][]int64
	CaptureHiddenMode CaptureHiddenMode
}

// LogitsOutput is what a runner hands back: next-token logits for every
// position submitted, plus optional captured hidden states (governed by
// the ForwardBatch's CaptureHiddenMode) that seed the following draft
// iteration's DraftInput.
type LogitsOutput struct {
	NextTokenLogits [][]float64 // one row per submitted position
	HiddenStates    [][]float64 // nil unless capture was requested
}

// DraftRunner is the external collaborator that owns the draft model's
// weights and forward pass. The worker
// never reasons about tensors directly past this boundary; everything
// downstream of a DraftRunner call operates on the flat arrays in
// ForwardBatch/LogitsOutput.
type DraftRunner interface {
	ForwardDraft(ctx context.Context, batch ForwardBatch, input DraftInput) (LogitsOutput, error)
}

// TargetRunner is the external collaborator owning the target model.
// ForwardVerify runs the single batched tree-attention pass that scores
// every candidate token in the flattened tree at once.
type TargetRunner interface {
	ForwardTarget(ctx context.Context, batch ForwardBatch) (LogitsOutput, error)
	ForwardVerify(ctx context.Context, batch ForwardBatch, verify VerifyInput) (LogitsOutput, error)
}
