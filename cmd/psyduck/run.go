package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"yashubustudio/psyduck/matcher"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <reference.csv> <statement.txt>",
		Short: "Match every codebook item against a statement file",
		Long: `Match every item of a codebook CSV against a statement file.

The CSV needs the header columns ITEM, CODE, STATEMENT and VALUE (any order).
The statement file is free text; blank lines are ignored.

Examples:
  psyduck run codebook.csv answer.txt
  psyduck run codebook.csv answer.txt --format table --top 3
  psyduck run codebook.csv answer.txt --backend lexical --format json -o result.json`,
		Args: cobra.ExactArgs(2),
		RunE: runMatch,
	}

	cmd.Flags().StringP("format", "f", "text", "Output format (text, table, json, csv)")
	cmd.Flags().Int("top", 0, "Include the N highest ranked candidates per item in table and json output")
	cmd.Flags().StringP("output", "o", "", "Write results to this file instead of stdout")
	cmd.Flags().Int("workers", 1, "Number of items scored concurrently")
	cmd.Flags().String("backend", string(matcher.BackendCrossEncoder), "Scoring backend (cross-encoder, lexical)")
	cmd.Flags().Bool("skip-malformed", false, "Skip malformed reference rows instead of failing")
	cmd.Flags().Bool("no-progress", false, "Disable the progress bar")

	_ = viper.BindPFlag("output.format", cmd.Flags().Lookup("format"))
	_ = viper.BindPFlag("output.top", cmd.Flags().Lookup("top"))
	_ = viper.BindPFlag("matching.workers", cmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("model.backend", cmd.Flags().Lookup("backend"))
	_ = viper.BindPFlag("matching.skip_malformed", cmd.Flags().Lookup("skip-malformed"))

	return cmd
}

func runMatch(cmd *cobra.Command, args []string) error {
	refPath, stmtPath := args[0], args[1]
	if err := checkInputs(refPath, stmtPath); err != nil {
		return err
	}

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if _, err := rendererFor(cfg.Output.Format); err != nil {
		return err
	}
	outputPath, _ := cmd.Flags().GetString("output")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	ctx := cmd.Context()
	logger := slog.Default().With("run_id", uuid.NewString())

	table, err := matcher.LoadReferenceTable(refPath, matcher.LoadOptions{
		Columns:       cfg.Columns,
		SkipMalformed: cfg.Matching.SkipMalformed,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("load reference: %w", err)
	}
	target, err := matcher.AssembleStatement(stmtPath)
	if err != nil {
		return fmt.Errorf("read statement: %w", err)
	}
	logger.Info("Loaded inputs", "items", table.Len(), "rows", table.Rows(), "statement_chars", len(target))

	fetcher := &matcher.ModelFetcher{
		Token:  os.Getenv("HF_TOKEN"),
		Logger: logger,
	}
	scorer, err := matcher.NewScorer(ctx, cfg.Model, fetcher)
	if err != nil {
		return fmt.Errorf("init scorer: %w", err)
	}
	service, err := matcher.NewService(scorer, cfg, logger)
	if err != nil {
		_ = scorer.Close()
		return fmt.Errorf("init service: %w", err)
	}
	defer func() {
		if closeErr := service.Close(); closeErr != nil {
			logger.Warn("Failed to release scorer", "error", closeErr)
		}
	}()
	logger.Info("Scorer ready", "model", scorer.ModelID(), "workers", cfg.Matching.Workers)

	if !noProgress && isTerminal(os.Stderr) {
		bar := newProgressBar(os.Stderr, table.Len())
		service.OnProgress(func(matcher.MatchResult) {
			_ = bar.Add(1)
		})
	}

	results, err := service.MatchAll(ctx, table, target)
	if err != nil {
		return fmt.Errorf("match: %w", err)
	}

	out, closeOut, err := openOutput(cmd.OutOrStdout(), outputPath)
	if err != nil {
		return err
	}
	if err := writeResults(out, cfg.Output, results); err != nil {
		_ = closeOut()
		return err
	}
	if err := closeOut(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if outputPath != "" {
		logger.Info("Wrote results", "path", outputPath)
	}

	skipped := 0
	for _, res := range results {
		if res.Err != nil {
			skipped++
		}
	}
	if skipped > 0 {
		logger.Warn("Some items were skipped", "skipped", skipped, "items", len(results))
	}
	return nil
}

// checkInputs validates the command arguments before any model is loaded.
func checkInputs(refPath, stmtPath string) error {
	if _, err := os.Stat(refPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reference file '%s' does not exist", refPath)
		}
		return fmt.Errorf("reference file '%s': %w", refPath, err)
	}
	if !strings.EqualFold(filepath.Ext(refPath), ".csv") {
		return fmt.Errorf("'%s' is not a CSV file", refPath)
	}
	if _, err := os.Stat(stmtPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("statement file '%s' does not exist", stmtPath)
		}
		return fmt.Errorf("statement file '%s': %w", stmtPath, err)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan]Matching items...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionClearOnFinish(),
	)
}
