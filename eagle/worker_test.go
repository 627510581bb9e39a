package eagle_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specdecode/eagleworker/eagle"
	"github.com/specdecode/eagleworker/eagle/kv"
	"github.com/specdecode/eagleworker/eagle/runtime"
	"github.com/specdecode/eagleworker/eagle/trace"
)

func newTestWorker(t *testing.T) (*eagle.Worker, *eagle.Batch) {
	t.Helper()
	rng := eagle.NewPartitionedRNG(eagle.NewSimulationKey(7))
	refCfg := runtime.ReferenceConfig{VocabSize: 32, HiddenSize: 8}

	metrics, err := eagle.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	w := &eagle.Worker{
		Config: eagle.SpeculativeConfig{
			Algorithm:        eagle.AlgorithmEAGLE,
			EagleTopK:        2,
			NumSteps:         2,
			NumDraftTokens:   7,
			PageSize:         1,
			AttentionBackend: eagle.BackendFlashInfer,
		},
		Draft:     &runtime.ReferenceDraftRunner{Config: refCfg, RNG: rng},
		Target:    &runtime.ReferenceTargetRunner{Config: refCfg, RNG: rng, AcceptanceBias: 10},
		Allocator: kv.NewAllocator(1024),
		ReqTable:  kv.NewTable(),
		RNG:       rng,
		Metrics:   metrics,
		Log:       logrus.New(),
	}

	reqs := []*eagle.Request{
		{ID: "r1", PoolIndex: 0, SeqLen: 0, IsExtend: true},
		{ID: "r2", PoolIndex: 1, SeqLen: 0, IsExtend: true},
	}
	batch := eagle.NewBatch("b1", reqs)
	return w, batch
}

func TestWorker_Forward_ExtendThenDecodeStepsAdvanceSeqLen(t *testing.T) {
	w, batch := newTestWorker(t)

	extendResult, err := w.Forward(context.Background(), batch)
	require.NoError(t, err)
	assert.Len(t, extendResult.NextTokens, 2)
	assert.False(t, batch.IsExtend(), "both requests leave extend mode after one extend pass")

	for step := 0; step < 3; step++ {
		beforeSeqLens := batch.SeqLens()
		result, err := w.Forward(context.Background(), batch)
		require.NoError(t, err)
		require.Len(t, result.NextTokens, int(result.NumAccepted), "NextTokens holds every accepted token, concatenated request by request")

		for i, req := range batch.Requests {
			assert.GreaterOrEqual(t, req.SeqLen, beforeSeqLens[i]+1, "every decode step accepts at least the fallback token")
		}
	}

	assert.Equal(t, 3, w.Metrics.ForwardSteps)
	assert.Greater(t, w.Metrics.TotalDraftedNodes, int64(0))
}

func TestWorker_Forward_IdleBatchIsNoOp(t *testing.T) {
	w, _ := newTestWorker(t)
	batch := eagle.NewBatch("empty", nil)

	result, err := w.Forward(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, "empty", result.BatchID)
	assert.Empty(t, result.NextTokens)
}

func TestWorker_Forward_RecordsTraceWhenConfigured(t *testing.T) {
	w, batch := newTestWorker(t)
	w.Trace = trace.NewRun(trace.Config{Level: trace.LevelFull})

	_, err := w.Forward(context.Background(), batch)
	require.NoError(t, err)
	_, err = w.Forward(context.Background(), batch)
	require.NoError(t, err)

	assert.Len(t, w.Trace.Steps, len(batch.Requests), "one StepRecord per request from the single decode step")
}
