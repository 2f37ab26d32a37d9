package matcher

import "encoding/json"

// Backend selects the scoring implementation.
type Backend string

const (
	// BackendCrossEncoder scores pairs with an ONNX cross-encoder.
	BackendCrossEncoder Backend = "cross-encoder"
	// BackendLexical scores pairs by term-frequency cosine similarity.
	BackendLexical Backend = "lexical"
)

// CandidateRecord is one codebook row.
type CandidateRecord struct {
	Item      string `json:"item" validate:"required"`
	Code      string `json:"code"`
	Statement string `json:"statement" validate:"required"`
	Value     string `json:"value"`
}

// TargetStatement is the assembled free-text document the candidates are compared against.
type TargetStatement string

// ScoredCandidate is a candidate statement tagged with its original position.
type ScoredCandidate struct {
	Index     int     `json:"index"`
	Score     float32 `json:"score"`
	Statement string  `json:"statement"`
}

// MatchResult holds the chosen candidate for a single item.
type MatchResult struct {
	Item   string            `json:"item"`
	Best   ScoredCandidate   `json:"best"`
	Record CandidateRecord   `json:"record"`
	Ranked []ScoredCandidate `json:"ranked,omitempty"`
	Err    error             `json:"-"`
}

// ColumnNames holds the header names expected in the reference file.
type ColumnNames struct {
	Item      string `json:"item" mapstructure:"item"`
	Code      string `json:"code" mapstructure:"code"`
	Statement string `json:"statement" mapstructure:"statement"`
	Value     string `json:"value" mapstructure:"value"`
}

// ModelConfig wraps the settings for the scorer and its model files.
type ModelConfig struct {
	Backend       Backend  `json:"backend" mapstructure:"backend"`
	Repo          string   `json:"repo" mapstructure:"repo"`
	HubURL        string   `json:"hub_url" mapstructure:"hub_url"`
	ModelFile     string   `json:"model_file" mapstructure:"model_file"`
	TokenizerFile string   `json:"tokenizer_file" mapstructure:"tokenizer_file"`
	ModelPath     string   `json:"model_path" mapstructure:"model_path"`
	TokenizerPath string   `json:"tokenizer_path" mapstructure:"tokenizer_path"`
	OrtLibrary    string   `json:"ort_library" mapstructure:"ort_library"`
	CacheDir      string   `json:"cache_dir" mapstructure:"cache_dir"`
	MaxSeqLen     int      `json:"max_seq_len" mapstructure:"max_seq_len"`
	BatchSize     int      `json:"batch_size" mapstructure:"batch_size"`
	InputNames    []string `json:"input_names" mapstructure:"input_names"`
	OutputName    string   `json:"output_name" mapstructure:"output_name"`
	PadID         int      `json:"pad_id" mapstructure:"pad_id"`
	FetchAttempts int      `json:"fetch_attempts" mapstructure:"fetch_attempts"`
	Normalize     bool     `json:"normalize" mapstructure:"normalize"`
}

// MatchingConfig controls the driver.
type MatchingConfig struct {
	Workers       int  `json:"workers" mapstructure:"workers"`
	SkipMalformed bool `json:"skip_malformed" mapstructure:"skip_malformed"`
}

// OutputConfig controls how results are rendered by the CLI.
type OutputConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Top    int    `json:"top" mapstructure:"top"`
}

// LoggingConfig controls the slog handler set up by the CLI.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// Config aggregates runtime settings.
type Config struct {
	Model    ModelConfig    `json:"model" mapstructure:"model"`
	Matching MatchingConfig `json:"matching" mapstructure:"matching"`
	Columns  ColumnNames    `json:"columns" mapstructure:"columns"`
	Output   OutputConfig   `json:"output" mapstructure:"output"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// Clone creates a deep copy of the configuration so callers can mutate safely.
func (c Config) Clone() Config {
	buf, _ := json.Marshal(c)
	var out Config
	_ = json.Unmarshal(buf, &out)
	return out
}

// ApplyDefaults populates zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Model.Backend == "" {
		c.Model.Backend = BackendCrossEncoder
	}
	if c.Model.Repo == "" {
		c.Model.Repo = "cross-encoder/stsb-roberta-large"
	}
	if c.Model.HubURL == "" {
		c.Model.HubURL = "https://huggingface.co"
	}
	if c.Model.ModelFile == "" {
		c.Model.ModelFile = "onnx/model.onnx"
	}
	if c.Model.TokenizerFile == "" {
		c.Model.TokenizerFile = "tokenizer.json"
	}
	if c.Model.CacheDir == "" {
		c.Model.CacheDir = "models"
	}
	if c.Model.MaxSeqLen == 0 {
		c.Model.MaxSeqLen = 512
	}
	if c.Model.BatchSize <= 0 {
		c.Model.BatchSize = 16
	}
	if len(c.Model.InputNames) == 0 {
		c.Model.InputNames = []string{"input_ids", "attention_mask"}
	}
	if c.Model.OutputName == "" {
		c.Model.OutputName = "logits"
	}
	if c.Model.FetchAttempts <= 0 {
		c.Model.FetchAttempts = 3
	}
	if c.Matching.Workers <= 0 {
		c.Matching.Workers = 1
	}
	c.Columns = c.Columns.withDefaults()
	if c.Output.Format == "" {
		c.Output.Format = "text"
	}
	if c.Output.Top < 0 {
		c.Output.Top = 0
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() Config {
	// PadID 1 is RoBERTa's <pad>; BERT-style exports use 0.
	cfg := Config{Model: ModelConfig{Normalize: true, PadID: 1}}
	cfg.ApplyDefaults()
	return cfg
}
