package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBatchTestEncoder(batchSize int) *CrossEncoder {
	return &CrossEncoder{
		cfg:     ModelConfig{BatchSize: batchSize},
		modelID: "test-model",
		memo:    make(map[string]float32),
	}
}

func TestCrossEncoderScoreBatches(t *testing.T) {
	logitFor := map[string]float32{"c0": -2, "c1": -1, "c2": 0, "c3": 1, "c4": 2}
	candidates := []string{"c0", "c1", "c2", "c3", "c4"}

	t.Run("scores land at their original index", func(t *testing.T) {
		enc := newBatchTestEncoder(2)
		enc.memo[enc.memoKey("target", "c2")] = 0.75

		var batches [][]string
		run := func(batch []string) ([]float32, error) {
			batches = append(batches, append([]string(nil), batch...))
			out := make([]float32, len(batch))
			for i, cand := range batch {
				out[i] = logitFor[cand]
			}
			return out, nil
		}

		got, err := enc.scoreBatches(context.Background(), "target", candidates, run)
		require.NoError(t, err)
		require.Len(t, got, len(candidates))

		assert.Equal(t, [][]string{{"c0", "c1"}, {"c3", "c4"}}, batches)
		for i, cand := range candidates {
			if cand == "c2" {
				assert.InDelta(t, 0.75, got[i], 1e-7)
				continue
			}
			assert.InDelta(t, sigmoid(logitFor[cand]), got[i], 1e-7, cand)
		}

		batches = nil
		again, err := enc.scoreBatches(context.Background(), "target", candidates, run)
		require.NoError(t, err)
		assert.Empty(t, batches)
		assert.Equal(t, got, again)
	})

	t.Run("memo is keyed by target", func(t *testing.T) {
		enc := newBatchTestEncoder(8)
		calls := 0
		run := func(batch []string) ([]float32, error) {
			calls++
			return make([]float32, len(batch)), nil
		}
		_, err := enc.scoreBatches(context.Background(), "first", candidates, run)
		require.NoError(t, err)
		_, err = enc.scoreBatches(context.Background(), "second", candidates, run)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("logit count mismatch", func(t *testing.T) {
		enc := newBatchTestEncoder(2)
		_, err := enc.scoreBatches(context.Background(), "target", candidates, func(batch []string) ([]float32, error) {
			return []float32{0}, nil
		})
		assert.ErrorContains(t, err, "returned 1 logits for 2 pairs")
	})

	t.Run("run error", func(t *testing.T) {
		boom := errors.New("session failed")
		enc := newBatchTestEncoder(2)
		_, err := enc.scoreBatches(context.Background(), "target", candidates, func([]string) ([]float32, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, enc.memo)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		enc := newBatchTestEncoder(2)
		_, err := enc.scoreBatches(ctx, "target", candidates, func(batch []string) ([]float32, error) {
			return make([]float32, len(batch)), nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBuildInputs(t *testing.T) {
	pairs := []pairTokens{
		{ids: []int{0, 11, 12, 2}, mask: []int{1, 1, 1, 1}, types: []int{0, 0, 1, 1}},
		{ids: []int{0, 13}, mask: []int{1, 1}, types: []int{0, 1}},
		{ids: []int{0, 14, 2}, mask: []int{1, 1, 1}},
	}

	ids, mask, types, seqLen := buildInputs(pairs, 1)

	assert.Equal(t, 4, seqLen)
	assert.Equal(t, []int64{
		0, 11, 12, 2,
		0, 13, 1, 1,
		0, 14, 2, 1,
	}, ids)
	assert.Equal(t, []int64{
		1, 1, 1, 1,
		1, 1, 0, 0,
		1, 1, 1, 0,
	}, mask)
	assert.Equal(t, []int64{
		0, 0, 1, 1,
		0, 1, 0, 0,
		0, 0, 0, 0,
	}, types)
}

func TestFirstLogits(t *testing.T) {
	got, err := firstLogits([]float32{0.5, -1, 1.5, -2, 2.5, -3}, 3)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 1.5, 2.5}, got)

	got, err = firstLogits([]float32{0.1, 0.2}, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, got)

	_, err = firstLogits([]float32{1, 2, 3}, 2)
	assert.Error(t, err)
	_, err = firstLogits(nil, 1)
	assert.Error(t, err)
}
