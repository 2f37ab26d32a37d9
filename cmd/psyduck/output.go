package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"yashubustudio/psyduck/matcher"
)

type renderFunc func(w io.Writer, top int, results []matcher.MatchResult) error

func rendererFor(format string) (renderFunc, error) {
	switch strings.ToLower(format) {
	case "text", "":
		return renderText, nil
	case "table":
		return renderTable, nil
	case "json":
		return renderJSON, nil
	case "csv":
		return renderCSV, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (use text, table, json or csv)", format)
	}
}

func writeResults(w io.Writer, cfg matcher.OutputConfig, results []matcher.MatchResult) error {
	render, err := rendererFor(cfg.Format)
	if err != nil {
		return err
	}
	matched := make([]matcher.MatchResult, 0, len(results))
	for _, res := range results {
		if res.Err == nil {
			matched = append(matched, res)
		}
	}
	return render(w, cfg.Top, matched)
}

// openOutput returns stdout when path is empty, otherwise a freshly created file.
func openOutput(stdout io.Writer, path string) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve output path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(absPath)
	if err != nil {
		return nil, nil, fmt.Errorf("create result file: %w", err)
	}
	return f, f.Close, nil
}

func renderText(w io.Writer, _ int, results []matcher.MatchResult) error {
	for _, res := range results {
		if _, err := fmt.Fprintf(w, "%s: %s\n", res.Item, res.Record.Statement); err != nil {
			return err
		}
	}
	return nil
}

func renderTable(w io.Writer, top int, results []matcher.MatchResult) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	header := table.Row{"ITEM", "CODE", "STATEMENT", "VALUE", "SCORE"}
	if top > 1 {
		header = append(header, "RUNNERS-UP")
	}
	tw.AppendHeader(header)
	for _, res := range results {
		row := table.Row{res.Item, res.Record.Code, res.Record.Statement, res.Record.Value, formatScore(res.Best.Score)}
		if top > 1 {
			row = append(row, runnersUp(res))
		}
		tw.AppendRow(row)
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, WidthMax: 60},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 6, WidthMax: 60},
	})
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

func runnersUp(res matcher.MatchResult) string {
	parts := make([]string, 0, len(res.Ranked))
	for _, sc := range res.Ranked {
		if sc.Index == res.Best.Index {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", sc.Statement, formatScore(sc.Score)))
	}
	return strings.Join(parts, "\n")
}

// Scores are pointers so that NaN, which encoding/json rejects, is written as null.
type jsonCandidate struct {
	Index     int      `json:"index"`
	Score     *float32 `json:"score"`
	Statement string   `json:"statement"`
}

type jsonResult struct {
	Item      string          `json:"item"`
	Code      string          `json:"code"`
	Statement string          `json:"statement"`
	Value     string          `json:"value"`
	Index     int             `json:"index"`
	Score     *float32        `json:"score"`
	Ranked    []jsonCandidate `json:"ranked,omitempty"`
}

func renderJSON(w io.Writer, top int, results []matcher.MatchResult) error {
	out := make([]jsonResult, len(results))
	for i, res := range results {
		out[i] = jsonResult{
			Item:      res.Item,
			Code:      res.Record.Code,
			Statement: res.Record.Statement,
			Value:     res.Record.Value,
			Index:     res.Best.Index,
			Score:     jsonScore(res.Best.Score),
		}
		if top > 0 {
			for _, sc := range res.Ranked {
				out[i].Ranked = append(out[i].Ranked, jsonCandidate{
					Index:     sc.Index,
					Score:     jsonScore(sc.Score),
					Statement: sc.Statement,
				})
			}
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func jsonScore(score float32) *float32 {
	if math.IsNaN(float64(score)) || math.IsInf(float64(score), 0) {
		return nil
	}
	return &score
}

func renderCSV(w io.Writer, _ int, results []matcher.MatchResult) error {
	writer := csv.NewWriter(w)
	header := []string{matcher.ColumnItem, matcher.ColumnCode, matcher.ColumnStatement, matcher.ColumnValue, "SCORE"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, res := range results {
		row := []string{res.Item, res.Record.Code, res.Record.Statement, res.Record.Value, formatScore(res.Best.Score)}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush result: %w", err)
	}
	return nil
}

func formatScore(score float32) string {
	return fmt.Sprintf("%.4f", score)
}
