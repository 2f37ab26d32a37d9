package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Service matches every item of a reference table against one target statement
// using a single shared scorer.
type Service struct {
	scorer Scorer
	cfg    Config
	logger *slog.Logger

	progressMu sync.Mutex
	onProgress func(MatchResult)
}

// NewService constructs a service with the given scorer and configuration.
func NewService(scorer Scorer, cfg Config, logger *slog.Logger) (*Service, error) {
	if scorer == nil {
		return nil, errors.New("scorer is required")
	}
	cfg.ApplyDefaults()
	return &Service{
		scorer: scorer,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Close releases scorer resources.
func (s *Service) Close() error {
	if s.scorer != nil {
		return s.scorer.Close()
	}
	return nil
}

// Config returns a copy of the current configuration.
func (s *Service) Config() Config {
	return s.cfg.Clone()
}

// OnProgress registers fn to be called once per finished item. Calls are serialized.
func (s *Service) OnProgress(fn func(MatchResult)) {
	s.progressMu.Lock()
	s.onProgress = fn
	s.progressMu.Unlock()
}

// MatchItem picks the candidate of one item that best matches target.
func (s *Service) MatchItem(ctx context.Context, item string, candidates []CandidateRecord, target TargetStatement) (MatchResult, error) {
	res := MatchResult{Item: item}
	statements := make([]string, len(candidates))
	for i, rec := range candidates {
		statements[i] = rec.Statement
	}
	scored, err := ScoreAll(ctx, s.scorer, target, statements)
	if err != nil {
		return res, fmt.Errorf("item %q: %w", item, err)
	}
	best, err := Best(scored)
	if err != nil {
		return res, fmt.Errorf("item %q: %w", item, err)
	}
	res.Best = best
	res.Record = candidates[best.Index]
	res.Ranked = limitRanked(Rank(scored), s.cfg.Output.Top)
	return res, nil
}

// MatchAll returns one result per item in table order. Items without candidates
// are reported through MatchResult.Err; any other scoring failure aborts the run.
func (s *Service) MatchAll(ctx context.Context, table *ReferenceTable, target TargetStatement) ([]MatchResult, error) {
	items := table.Items()
	results := make([]MatchResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Matching.Workers)
	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := s.MatchItem(gctx, item, table.Candidates(item), target)
			if err != nil {
				if !errors.Is(err, ErrEmptyInput) {
					return err
				}
				res.Err = err
				s.logWarn("item has no candidates, skipping", "item", item)
			} else {
				s.logDebug("matched item", "item", item, "index", res.Best.Index, "score", res.Best.Score)
			}
			results[i] = res
			s.progress(res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) progress(res MatchResult) {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	if s.onProgress != nil {
		s.onProgress(res)
	}
}

func (s *Service) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Service) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
