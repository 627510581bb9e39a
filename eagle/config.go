package eagle

import "fmt"

// SpeculativeAlgorithm selects the draft/target coupling strategy.
type SpeculativeAlgorithm string

const (
	AlgorithmEAGLE  SpeculativeAlgorithm = "EAGLE"
	AlgorithmEAGLE3 SpeculativeAlgorithm = "EAGLE3"
)

// AttentionBackend selects the attention kernel family. Each value
// determines which multi-step draft backend the worker selects and
// whether a prefill-capable extend backend is also required.
type AttentionBackend string

const (
	BackendFlashInfer    AttentionBackend = "flashinfer"
	BackendFlashInferMLA AttentionBackend = "flashinfer-mla"
	BackendTriton        AttentionBackend = "triton"
	BackendFA3           AttentionBackend = "fa3"
	BackendFlashMLA      AttentionBackend = "flashmla"
)

// validAttentionBackends lists the recognized backend names; every entry
// maps to true. Whether a backend has a prefill-capable extend path is
// recorded separately in backendsWithoutExtend.
var validAttentionBackends = map[AttentionBackend]bool{
	BackendFlashInfer:    true,
	BackendFlashInferMLA: true,
	BackendTriton:        true,
	BackendFA3:           true,
	BackendFlashMLA:      true,
}

// backendsWithoutExtend lists backends that have no prefill-capable
// extend attention path (the draft-extend phase still runs, but without
// a dedicated extend backend selection).
var backendsWithoutExtend = map[AttentionBackend]bool{
	BackendFlashMLA: true,
}

// SupportsDraftExtendBackend reports whether b has a dedicated
// prefill-capable extend attention backend.
func (b AttentionBackend) SupportsDraftExtendBackend() bool {
	return !backendsWithoutExtend[b]
}

// SpeculativeConfig groups the recognized configuration options for
// the speculative decoding worker, mirroring a grouped-config-struct
// pattern (KVCacheConfig, BatchConfig, ModelHardwareConfig, ...).
type SpeculativeConfig struct {
	Algorithm          SpeculativeAlgorithm `yaml:"speculative_algorithm"`
	EagleTopK          int                  `yaml:"speculative_eagle_topk"`
	NumSteps           int                  `yaml:"speculative_num_steps"`
	NumDraftTokens     int                  `yaml:"speculative_num_draft_tokens"`
	TokenMapPath       string               `yaml:"speculative_token_map"`
	PageSize           int64                `yaml:"page_size"`
	VocabSize          int                  `yaml:"vocab_size"`
	AttentionBackend   AttentionBackend     `yaml:"attention_backend"`
	EnableNanDetection bool                 `yaml:"enable_nan_detection"`
	EnableDPAttention  bool                 `yaml:"enable_dp_attention"`
	DisableCudaGraph   bool                 `yaml:"disable_cuda_graph"`
}

// maxTreeSize returns 1 + K + K^2 + ... + K^S, the full candidate space
// size, the upper bound a valid speculative_num_draft_tokens must stay
// within.
func maxTreeSize(k, s int) int64 {
	total := int64(1)
	term := int64(1)
	for i := 0; i < s; i++ {
		term *= int64(k)
		total += term
	}
	return total
}

// Validate checks the cross-field constraints between the speculative
// decoding parameters, returning ErrConfiguration-wrapped errors for
// construction-time failures.
func (c SpeculativeConfig) Validate() error {
	if c.Algorithm != AlgorithmEAGLE && c.Algorithm != AlgorithmEAGLE3 {
		return fmt.Errorf("%w: unsupported speculative_algorithm %q", ErrConfiguration, c.Algorithm)
	}
	if c.EagleTopK <= 0 {
		return fmt.Errorf("%w: speculative_eagle_topk must be positive, got %d", ErrConfiguration, c.EagleTopK)
	}
	if c.NumSteps <= 0 {
		return fmt.Errorf("%w: speculative_num_steps must be positive, got %d", ErrConfiguration, c.NumSteps)
	}
	if c.NumDraftTokens <= 0 {
		return fmt.Errorf("%w: speculative_num_draft_tokens must be positive, got %d", ErrConfiguration, c.NumDraftTokens)
	}
	if bound := maxTreeSize(c.EagleTopK, c.NumSteps); int64(c.NumDraftTokens) > bound {
		return fmt.Errorf("%w: speculative_num_draft_tokens=%d exceeds 1+K+...+K^S=%d", ErrConfiguration, c.NumDraftTokens, bound)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("%w: page_size must be positive, got %d", ErrConfiguration, c.PageSize)
	}
	if c.VocabSize <= 0 {
		return fmt.Errorf("%w: vocab_size must be positive, got %d", ErrConfiguration, c.VocabSize)
	}
	if !validAttentionBackends[c.AttentionBackend] {
		return fmt.Errorf("%w: unsupported attention_backend %q", ErrConfiguration, c.AttentionBackend)
	}
	if c.Algorithm == AlgorithmEAGLE3 && c.TokenMapPath != "" {
		// Not fatal, just ignored: EAGLE3 models already carry their own
		// hot-token ids (see hot_token_map.go).
		return nil
	}
	return nil
}
