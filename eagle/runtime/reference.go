// Package runtime provides deterministic DraftRunner/TargetRunner test
// doubles driven entirely by eagle.PartitionedRNG: small deterministic
// stand-ins for the expensive external model collaborators, built as a
// non-test package so both the test suite and the CLI benchmark
// harness can share one reference implementation.
package runtime

import (
	"context"
	"math"

	"github.com/specdecode/eagleworker/eagle"
)

// ReferenceConfig parameterizes the reference runners' synthetic
// vocabulary and hidden size, independent of any real model weights.
type ReferenceConfig struct {
	VocabSize  int
	HiddenSize int
}

// ReferenceDraftRunner produces logits deterministically from the shared
// SubsystemDraft RNG stream and the input token id, so repeated runs with
// the same SimulationKey reproduce bit-identical candidate trees.
type ReferenceDraftRunner struct {
	Config ReferenceConfig
	RNG    *eagle.PartitionedRNG
}

func (r *ReferenceDraftRunner) ForwardDraft(ctx context.Context, batch eagle.ForwardBatch, input eagle.DraftInput) (eagle.LogitsOutput, error) {
	rows := len(batch.InputIDs)
	if rows == 0 {
		rows = 1
	}
	out := eagle.LogitsOutput{
		NextTokenLogits: make([][]float64, rows),
		HiddenStates:    make([][]float64, rows),
	}
	rng := r.RNG.ForSubsystem(eagle.SubsystemDraft)
	for i := 0; i < rows; i++ {
		seed := int64(0)
		if i < len(batch.InputIDs) {
			seed = batch.InputIDs[i]
		}
		out.NextTokenLogits[i] = syntheticLogits(rng, seed, r.Config.VocabSize)
		out.HiddenStates[i] = syntheticHidden(rng, seed, r.Config.HiddenSize)
	}
	return out, nil
}

// ReferenceTargetRunner mirrors ReferenceDraftRunner for the target
// model's two entry points. Its verify-pass logits are deliberately
// skewed toward the drafted token at each node (a configurable
// acceptance bias) so test fixtures can exercise both high- and
// low-acceptance regimes deterministically.
type ReferenceTargetRunner struct {
	Config         ReferenceConfig
	RNG            *eagle.PartitionedRNG
	AcceptanceBias float64 // extra logit mass given to the drafted token, 0 = unbiased
}

func (r *ReferenceTargetRunner) ForwardTarget(ctx context.Context, batch eagle.ForwardBatch) (eagle.LogitsOutput, error) {
	rows := len(batch.SeqLens)
	if rows == 0 {
		rows = 1
	}
	out := eagle.LogitsOutput{
		NextTokenLogits: make([][]float64, rows),
		HiddenStates:    make([][]float64, rows),
	}
	rng := r.RNG.ForSubsystem(eagle.SubsystemVerify("target"))
	for i := 0; i < rows; i++ {
		out.NextTokenLogits[i] = syntheticLogits(rng, int64(i), r.Config.VocabSize)
		out.HiddenStates[i] = syntheticHidden(rng, int64(i), r.Config.HiddenSize)
	}
	return out, nil
}

func (r *ReferenceTargetRunner) ForwardVerify(ctx context.Context, batch eagle.ForwardBatch, verify eagle.VerifyInput) (eagle.LogitsOutput, error) {
	n := len(verify.DraftTokens)
	out := eagle.LogitsOutput{
		NextTokenLogits: make([][]float64, n),
		HiddenStates:    make([][]float64, n),
	}
	rng := r.RNG.ForSubsystem(eagle.SubsystemVerify("target"))
	for i, tok := range verify.DraftTokens {
		row := syntheticLogits(rng, tok, r.Config.VocabSize)
		if tok >= 0 && int(tok) < len(row) {
			row[tok] += r.AcceptanceBias
		}
		out.NextTokenLogits[i] = row
		out.HiddenStates[i] = syntheticHidden(rng, tok, r.Config.HiddenSize)
	}
	return out, nil
}

// syntheticLogits generates a deterministic-given-rng-state logit row.
// Not reproducible across goroutines concurrently sharing rng — callers
// must serialize calls to a single ReferenceDraftRunner/
// ReferenceTargetRunner, matching eagle.PartitionedRNG's own
// single-goroutine contract.
func syntheticLogits(rng interface{ Float64() float64 }, seed int64, vocabSize int) []float64 {
	if vocabSize <= 0 {
		vocabSize = 32
	}
	row := make([]float64, vocabSize)
	for i := range row {
		row[i] = rng.Float64()*2 - 1
	}
	// Bias the row toward `seed mod vocabSize` so the reference model's
	// own greedy continuation is at least self-consistent.
	idx := int(((seed % int64(vocabSize)) + int64(vocabSize)) % int64(vocabSize))
	row[idx] += 1.5
	return row
}

func syntheticHidden(rng interface{ Float64() float64 }, seed int64, hiddenSize int) []float64 {
	if hiddenSize <= 0 {
		hiddenSize = 8
	}
	row := make([]float64, hiddenSize)
	for i := range row {
		row[i] = math.Sin(float64(seed)+float64(i)) * rng.Float64()
	}
	return row
}
