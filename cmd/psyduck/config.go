package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"yashubustudio/psyduck/matcher"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// registerDefaults seeds v with every key of the default configuration so that
// env vars and Unmarshal see the full key set.
func registerDefaults(v *viper.Viper) {
	d := matcher.DefaultConfig()
	v.SetDefault("model.backend", string(d.Model.Backend))
	v.SetDefault("model.repo", d.Model.Repo)
	v.SetDefault("model.hub_url", d.Model.HubURL)
	v.SetDefault("model.model_file", d.Model.ModelFile)
	v.SetDefault("model.tokenizer_file", d.Model.TokenizerFile)
	v.SetDefault("model.model_path", d.Model.ModelPath)
	v.SetDefault("model.tokenizer_path", d.Model.TokenizerPath)
	v.SetDefault("model.ort_library", d.Model.OrtLibrary)
	v.SetDefault("model.cache_dir", d.Model.CacheDir)
	v.SetDefault("model.max_seq_len", d.Model.MaxSeqLen)
	v.SetDefault("model.batch_size", d.Model.BatchSize)
	v.SetDefault("model.input_names", d.Model.InputNames)
	v.SetDefault("model.output_name", d.Model.OutputName)
	v.SetDefault("model.pad_id", d.Model.PadID)
	v.SetDefault("model.fetch_attempts", d.Model.FetchAttempts)
	v.SetDefault("model.normalize", d.Model.Normalize)
	v.SetDefault("matching.workers", d.Matching.Workers)
	v.SetDefault("matching.skip_malformed", d.Matching.SkipMalformed)
	v.SetDefault("columns.item", d.Columns.Item)
	v.SetDefault("columns.code", d.Columns.Code)
	v.SetDefault("columns.statement", d.Columns.Statement)
	v.SetDefault("columns.value", d.Columns.Value)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.top", d.Output.Top)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

func loadConfig(v *viper.Viper) (matcher.Config, error) {
	var cfg matcher.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := matcher.DefaultConfigFile
			if len(args) == 1 {
				path = args[0]
			}
			force, _ := cmd.Flags().GetBool("force")
			if err := matcher.SaveConfig(path, matcher.DefaultConfig(), force); err != nil {
				if errors.Is(err, matcher.ErrConfigExists) {
					return fmt.Errorf("'%s' already exists (use --force to overwrite)", path)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	cmd.AddCommand(initCmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(viper.GetViper())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	})
	return cmd
}
