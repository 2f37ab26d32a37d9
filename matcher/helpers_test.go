package matcher

import (
	"context"
	"errors"
	"sync"
)

// fakeScorer returns fixed scores per candidate statement; unknown statements score 0.
type fakeScorer struct {
	scores map[string]float32
	err    error

	mu     sync.Mutex
	calls  int
	closed bool
}

func (f *fakeScorer) Score(_ context.Context, _ string, candidates []string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float32, len(candidates))
	for i, c := range candidates {
		out[i] = f.scores[c]
	}
	return out, nil
}

func (f *fakeScorer) ModelID() string { return "fake" }

func (f *fakeScorer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("already closed")
	}
	f.closed = true
	return nil
}

// shortScorer always drops the last score.
type shortScorer struct{ fakeScorer }

func (s *shortScorer) Score(ctx context.Context, target string, candidates []string) ([]float32, error) {
	out, err := s.fakeScorer.Score(ctx, target, candidates)
	if err != nil || len(out) == 0 {
		return out, err
	}
	return out[:len(out)-1], nil
}

// declareItem registers item in t without any candidates, a state the CSV loader never produces.
func declareItem(t *ReferenceTable, item string) {
	if _, ok := t.groups[item]; !ok {
		t.order = append(t.order, item)
		t.groups[item] = nil
	}
}
