package matcher

import (
	"context"
	"math"
	"strings"
	"unicode"
)

// LexicalScorer scores candidates by cosine similarity of term-frequency vectors.
// It needs no model files and is deterministic.
type LexicalScorer struct {
	// MinTokenLen drops shorter tokens; zero keeps every token.
	MinTokenLen int
}

// NewLexicalScorer returns a scorer that ignores tokens shorter than three runes.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{MinTokenLen: 3}
}

// ModelID implements Scorer.
func (l *LexicalScorer) ModelID() string {
	return string(BackendLexical)
}

// Close implements Scorer.
func (l *LexicalScorer) Close() error {
	return nil
}

// Score implements Scorer.
func (l *LexicalScorer) Score(ctx context.Context, target string, candidates []string) ([]float32, error) {
	tv := l.termVector(target)
	out := make([]float32, len(candidates))
	for i, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = float32(tv.cosine(l.termVector(cand)))
	}
	return out, nil
}

type termVector struct {
	counts map[string]float64
	norm   float64
}

func (l *LexicalScorer) termVector(text string) termVector {
	counts := make(map[string]float64)
	for _, tok := range l.tokenize(text) {
		counts[tok]++
	}
	var norm float64
	for _, c := range counts {
		norm += c * c
	}
	return termVector{counts: counts, norm: math.Sqrt(norm)}
}

func (l *LexicalScorer) tokenize(text string) []string {
	lowered := strings.ToLower(NormalizeText(text))
	raw := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := raw[:0]
	for _, tok := range raw {
		if len([]rune(tok)) < l.MinTokenLen {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func (a termVector) cosine(b termVector) float64 {
	if a.norm == 0 || b.norm == 0 {
		return 0
	}
	small, large := a, b
	if len(large.counts) < len(small.counts) {
		small, large = large, small
	}
	var dot float64
	for tok, c := range small.counts {
		dot += c * large.counts[tok]
	}
	return dot / (a.norm * b.norm)
}
