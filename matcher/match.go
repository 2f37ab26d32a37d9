package matcher

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Scorer computes pairwise similarity between a target and each candidate.
// Only the relative order of scores for one target is meaningful.
type Scorer interface {
	Score(ctx context.Context, target string, candidates []string) ([]float32, error)
	ModelID() string
	Close() error
}

// ScoreAll scores every candidate against target and tags each score with the
// candidate's position in candidates.
func ScoreAll(ctx context.Context, scorer Scorer, target TargetStatement, candidates []string) ([]ScoredCandidate, error) {
	if len(candidates) == 0 {
		return nil, ErrEmptyInput
	}
	scores, err := scorer.Score(ctx, string(target), candidates)
	if err != nil {
		return nil, fmt.Errorf("score candidates: %w", err)
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("scorer %s returned %d scores for %d candidates", scorer.ModelID(), len(scores), len(candidates))
	}
	out := make([]ScoredCandidate, len(candidates))
	for i, stmt := range candidates {
		out[i] = ScoredCandidate{Index: i, Score: scores[i], Statement: stmt}
	}
	return out, nil
}

// Best returns the highest scoring candidate. Ties go to the lowest index and
// NaN scores lose to any number.
func Best(scored []ScoredCandidate) (ScoredCandidate, error) {
	if len(scored) == 0 {
		return ScoredCandidate{}, ErrEmptyInput
	}
	best := scored[0]
	for _, sc := range scored[1:] {
		if outranks(sc, best) {
			best = sc
		}
	}
	return best, nil
}

func outranks(a, b ScoredCandidate) bool {
	aNaN, bNaN := isNaN(a.Score), isNaN(b.Score)
	switch {
	case aNaN && bNaN:
		return a.Index < b.Index
	case aNaN:
		return false
	case bNaN:
		return true
	case a.Score == b.Score:
		return a.Index < b.Index
	}
	return a.Score > b.Score
}

func isNaN(v float32) bool {
	return math.IsNaN(float64(v))
}

// Rank returns a copy of scored ordered by descending score, lowest index first on ties.
func Rank(scored []ScoredCandidate) []ScoredCandidate {
	out := make([]ScoredCandidate, len(scored))
	copy(out, scored)
	sort.SliceStable(out, func(i, j int) bool {
		return outranks(out[i], out[j])
	})
	return out
}

func limitRanked(ranked []ScoredCandidate, k int) []ScoredCandidate {
	if k <= 0 {
		return nil
	}
	if len(ranked) <= k {
		return ranked
	}
	return ranked[:k]
}
