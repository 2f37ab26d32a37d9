package matcher

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// CrossEncoder scores (target, candidate) pairs with a sequence-classification
// transformer exported to ONNX. Calls are serialized; scores are memoized for
// the lifetime of the encoder.
type CrossEncoder struct {
	session *ort.DynamicAdvancedSession
	tk      *tokenizer.Tokenizer
	cfg     ModelConfig
	modelID string
	ownsEnv bool

	mu   sync.Mutex
	memo map[string]float32
}

// NewCrossEncoder loads the tokenizer and the ONNX session. Failures wrap ErrModelUnavailable.
func NewCrossEncoder(files ModelFiles, cfg ModelConfig) (*CrossEncoder, error) {
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = 512
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	for _, name := range cfg.InputNames {
		switch name {
		case "input_ids", "attention_mask", "token_type_ids":
		default:
			return nil, modelUnavailable(fmt.Errorf("unsupported model input %q", name))
		}
	}

	tk, err := pretrained.FromFile(files.TokenizerPath)
	if err != nil {
		return nil, modelUnavailable(fmt.Errorf("load tokenizer %s: %w", files.TokenizerPath, err))
	}
	tk.WithTruncation(&tokenizer.TruncationParams{
		MaxLength: cfg.MaxSeqLen,
		Strategy:  tokenizer.LongestFirst,
	})

	ownsEnv := false
	if !ort.IsInitialized() {
		if cfg.OrtLibrary != "" {
			ort.SetSharedLibraryPath(cfg.OrtLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, modelUnavailable(fmt.Errorf("initialize onnxruntime: %w", err))
		}
		ownsEnv = true
	}
	session, err := ort.NewDynamicAdvancedSession(files.ModelPath, cfg.InputNames, []string{cfg.OutputName}, nil)
	if err != nil {
		if ownsEnv {
			_ = ort.DestroyEnvironment()
		}
		return nil, modelUnavailable(fmt.Errorf("create session for %s: %w", files.ModelPath, err))
	}

	modelID := cfg.Repo
	if cfg.ModelPath != "" || modelID == "" {
		modelID = filepath.Base(filepath.Dir(files.ModelPath)) + "/" + filepath.Base(files.ModelPath)
	}
	return &CrossEncoder{
		session: session,
		tk:      tk,
		cfg:     cfg,
		modelID: modelID,
		ownsEnv: ownsEnv,
		memo:    make(map[string]float32),
	}, nil
}

// ModelID returns the identifier used for memo keys.
func (c *CrossEncoder) ModelID() string {
	return c.modelID
}

// Close releases ORT resources.
func (c *CrossEncoder) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	if c.session != nil {
		errs = append(errs, c.session.Destroy())
		c.session = nil
	}
	if c.ownsEnv {
		errs = append(errs, ort.DestroyEnvironment())
		c.ownsEnv = false
	}
	c.memo = nil
	return errors.Join(errs...)
}

// Score implements Scorer. Each score is the sigmoid of the first logit.
func (c *CrossEncoder) Score(ctx context.Context, target string, candidates []string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, errors.New("cross-encoder is closed")
	}
	if c.cfg.Normalize {
		target = NormalizeText(target)
		candidates = NormalizeAll(candidates)
	}

	return c.scoreBatches(ctx, target, candidates, func(batch []string) ([]float32, error) {
		return c.runBatch(target, batch)
	})
}

// scoreBatches answers memoized pairs from the memo and sends the rest through
// run in batches of cfg.BatchSize. run returns one logit per batch entry; each
// score is written back to its candidate's original position. Callers hold c.mu.
func (c *CrossEncoder) scoreBatches(ctx context.Context, target string, candidates []string, run func(batch []string) ([]float32, error)) ([]float32, error) {
	batchSize := max(c.cfg.BatchSize, 1)
	out := make([]float32, len(candidates))
	pending := make([]int, 0, len(candidates))
	for i, cand := range candidates {
		if score, ok := c.memo[c.memoKey(target, cand)]; ok {
			out[i] = score
			continue
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+batchSize, len(pending))
		batch := make([]string, 0, end-start)
		for _, idx := range pending[start:end] {
			batch = append(batch, candidates[idx])
		}
		logits, err := run(batch)
		if err != nil {
			return nil, err
		}
		if len(logits) != len(batch) {
			return nil, fmt.Errorf("model returned %d logits for %d pairs", len(logits), len(batch))
		}
		for j, idx := range pending[start:end] {
			score := sigmoid(logits[j])
			out[idx] = score
			c.memo[c.memoKey(target, candidates[idx])] = score
		}
	}
	return out, nil
}

// pairTokens is the tokenizer output for one (target, candidate) pair.
type pairTokens struct {
	ids   []int
	mask  []int
	types []int
}

func (c *CrossEncoder) runBatch(target string, batch []string) ([]float32, error) {
	pairs := make([]pairTokens, len(batch))
	for i, cand := range batch {
		enc, err := c.tk.EncodePair(target, cand, true)
		if err != nil {
			return nil, fmt.Errorf("tokenize pair %d: %w", i, err)
		}
		pairs[i] = pairTokens{ids: enc.GetIds(), mask: enc.GetAttentionMask(), types: enc.GetTypeIds()}
	}
	ids, mask, types, seqLen := buildInputs(pairs, c.cfg.PadID)

	shape := ort.NewShape(int64(len(pairs)), int64(seqLen))
	inputs := make([]ort.Value, 0, len(c.cfg.InputNames))
	defer func() {
		for _, v := range inputs {
			_ = v.Destroy()
		}
	}()
	for _, name := range c.cfg.InputNames {
		data := ids
		switch name {
		case "attention_mask":
			data = mask
		case "token_type_ids":
			data = types
		}
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create %s tensor: %w", name, err)
		}
		inputs = append(inputs, t)
	}

	outputs := []ort.Value{nil}
	if err := c.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("run cross-encoder: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			_ = outputs[0].Destroy()
		}
	}()
	logitsT, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	return firstLogits(logitsT.GetData(), len(pairs))
}

// buildInputs lays the pairs out as row-major [rows, seqLen] int64 tensors,
// where seqLen is the longest pair. Short rows are padded with padID and a zero
// attention mask.
func buildInputs(pairs []pairTokens, padID int) (ids, mask, types []int64, seqLen int) {
	for _, p := range pairs {
		seqLen = max(seqLen, len(p.ids))
	}
	rows := len(pairs)
	ids = make([]int64, rows*seqLen)
	mask = make([]int64, rows*seqLen)
	types = make([]int64, rows*seqLen)
	for i, p := range pairs {
		for j := 0; j < seqLen; j++ {
			pos := i*seqLen + j
			if j >= len(p.ids) {
				ids[pos] = int64(padID)
				continue
			}
			ids[pos] = int64(p.ids[j])
			if j < len(p.mask) {
				mask[pos] = int64(p.mask[j])
			}
			if j < len(p.types) {
				types[pos] = int64(p.types[j])
			}
		}
	}
	return ids, mask, types, seqLen
}

// firstLogits takes column 0 of a [rows, labels] logits tensor.
func firstLogits(data []float32, rows int) ([]float32, error) {
	if rows == 0 || len(data) == 0 || len(data)%rows != 0 {
		return nil, fmt.Errorf("unexpected output size %d for batch of %d", len(data), rows)
	}
	labels := len(data) / rows
	logits := make([]float32, rows)
	for i := range logits {
		logits[i] = data[i*labels]
	}
	return logits, nil
}

func (c *CrossEncoder) memoKey(target, candidate string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, c.modelID)
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, target)
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, candidate)
	return hex.EncodeToString(h.Sum(nil))
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}
