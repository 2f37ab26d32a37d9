package matcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScorer(t *testing.T) {
	ctx := context.Background()

	t.Run("lexical backend", func(t *testing.T) {
		cfg := DefaultConfig().Model
		cfg.Backend = BackendLexical
		scorer, err := NewScorer(ctx, cfg, nil)
		require.NoError(t, err)
		assert.IsType(t, &LexicalScorer{}, scorer)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := DefaultConfig().Model
		cfg.Backend = "bag-of-words"
		_, err := NewScorer(ctx, cfg, nil)
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})

	t.Run("cross-encoder without model files", func(t *testing.T) {
		cfg := DefaultConfig().Model
		cfg.ModelPath = "/nonexistent/model.onnx"
		cfg.TokenizerPath = "/nonexistent/tokenizer.json"
		_, err := NewScorer(ctx, cfg, nil)
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})
}

func TestNewCrossEncoderRejectsUnknownInputs(t *testing.T) {
	cfg := DefaultConfig().Model
	cfg.InputNames = []string{"input_ids", "pixel_values"}
	_, err := NewCrossEncoder(ModelFiles{}, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Contains(t, err.Error(), "pixel_values")
}

func TestSigmoid(t *testing.T) {
	assert.InDelta(t, 0.5, sigmoid(0), 1e-7)
	assert.Greater(t, sigmoid(3), sigmoid(2))
	assert.InDelta(t, 1.0, sigmoid(40), 1e-6)
	assert.InDelta(t, 0.0, sigmoid(-40), 1e-6)
}

func TestCrossEncoderMemoKey(t *testing.T) {
	a := &CrossEncoder{modelID: "m1"}
	b := &CrossEncoder{modelID: "m2"}
	assert.Equal(t, a.memoKey("t", "c"), a.memoKey("t", "c"))
	assert.NotEqual(t, a.memoKey("t", "c"), b.memoKey("t", "c"))
	assert.NotEqual(t, a.memoKey("t", "c1"), a.memoKey("t", "c2"))
}
