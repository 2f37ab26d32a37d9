package matcher

import (
	"context"
	"fmt"
)

// NewScorer builds the scorer selected by cfg.Backend. The cross-encoder
// backend resolves its model files through fetcher first.
func NewScorer(ctx context.Context, cfg ModelConfig, fetcher *ModelFetcher) (Scorer, error) {
	switch cfg.Backend {
	case BackendLexical:
		return NewLexicalScorer(), nil
	case BackendCrossEncoder, "":
		if fetcher == nil {
			fetcher = &ModelFetcher{}
		}
		files, err := fetcher.Ensure(ctx, cfg)
		if err != nil {
			return nil, err
		}
		encoder, err := NewCrossEncoder(files, cfg)
		if err != nil {
			return nil, err
		}
		return encoder, nil
	default:
		return nil, modelUnavailable(fmt.Errorf("unknown backend %q", cfg.Backend))
	}
}
