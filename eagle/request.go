// Defines the Request and SamplingParams types the worker operates on.
// A Request's lifecycle (queued -> running -> completed) and its batch
// membership are owned by the external scheduler; the worker only reads
// and advances per-request sequence length, sampling state, and optional
// grammar/logprob requests.

package eagle

// LogprobRequest describes what per-token logprob data a request wants
// attached by LogprobAttachment.
type LogprobRequest struct {
	TopK          int   // emit the top-K logprobs at each accepted position (0 = none)
	TokenIDs      []int // fixed list of token ids (nil = none); AttachLogprobs does not read it, so no per-id logprobs are emitted
	OutputVal     []float64
	OutputIdx     []int
	TopLogprobVal [][]float64
	TopLogprobIdx [][]int
}

// GrammarHandle is the narrow interface the verifier needs from the
// external structured-output grammar engine to build a per-node vocab
// mask. It is intentionally minimal: the grammar engine itself is out
// of scope for this worker.
type GrammarHandle interface {
	// AllowedMask returns true for vocabulary ids still valid after
	// having generated tokenPath (root-to-node token sequence).
	AllowedMask(tokenPath []int, vocabSize int) []bool
}

// Request models one in-flight sequence the worker advances by one
// verified step per call to Worker.Forward.
type Request struct {
	ID string // unique identifier, stable across iterations

	PoolIndex int   // index into the shared request-to-token table
	SeqLen    int64 // running sequence length (tokens already in the KV cache)

	Temperature float64
	Seed        int64 // per-request sampler seed, combined with PartitionedRNG

	Grammar GrammarHandle   // nil if unconstrained
	Logprob *LogprobRequest // nil if logprobs were not requested

	// IsExtend is true for the initial prompt / any request still prefilling.
	// The worker dispatches to extend-mode forward when any request in the
	// batch has IsExtend set.
	IsExtend bool
}

// AcceptedSlotRange returns the half-open [SeqLen, SeqLen+acceptLength)
// range of positions newly committed to the KV cache by one verify step.
func (r *Request) AcceptedSlotRange(acceptLength int) (start, end int64) {
	return r.SeqLen, r.SeqLen + int64(acceptLength)
}
