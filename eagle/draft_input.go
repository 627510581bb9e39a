package eagle

// CaptureHiddenMode controls how much hidden-state the target forward
// captures for the next draft iteration to consume.
type CaptureHiddenMode int

const (
	// CaptureNone captures nothing; used on the final verify pass of a
	// request that has finished generating.
	CaptureNone CaptureHiddenMode = iota
	// CaptureLast captures only the last position's hidden state,
	// sufficient for EAGLE's single-layer draft model.
	CaptureLast
	// CaptureFull captures hidden states for every accepted position,
	// required by EAGLE3's multi-layer feature fusion.
	CaptureFull
)

func (m CaptureHiddenMode) String() string {
	switch m {
	case CaptureNone:
		return "NONE"
	case CaptureLast:
		return "LAST"
	case CaptureFull:
		return "FULL"
	default:
		return "UNKNOWN"
	}
}

// DraftInput is one request's per-iteration state, produced by the
// previous target forward and consumed by the next draft forward. It
// is the sole channel through which verification results flow back
// into drafting: the draft loop never reaches into VerifyOutput
// directly. A Batch carries one DraftInput per live request in
// Batch.DraftState.
type DraftInput struct {
	// HiddenStates are the target model's captured hidden states for
	// this request: one row for CaptureLast, one row per accepted
	// position for CaptureFull.
	HiddenStates [][]float64

	// VerifiedID is the token(s) the previous verify pass accepted for
	// this request, used as the draft model's first input token(s)
	// for this iteration.
	VerifiedID []int64

	// TopkP and TopkIndex are the top-K draft-vocab probabilities and
	// token ids carried from the previous draft iteration's final
	// step, seeding tie-breaking for the first new step.
	TopkP     []float64
	TopkIndex []int64

	// Positions is the starting position for the new draft tokens
	// about to be generated for this request.
	Positions int64

	// AcceptLength is the number of tokens accepted for this request
	// on the previous verify pass; zero for a request's first
	// iteration.
	AcceptLength int64

	CaptureMode CaptureHiddenMode
}
