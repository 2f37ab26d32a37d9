package matcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// ModelFiles locates the ONNX graph and tokenizer definition on disk.
type ModelFiles struct {
	ModelPath     string
	TokenizerPath string
}

// ModelFetcher resolves model files, downloading them from a Hugging Face
// compatible hub into the cache directory when no local paths are configured.
type ModelFetcher struct {
	Client *http.Client
	// Token is sent as a bearer token when set (HF_TOKEN).
	Token  string
	Retry  RetryOptions
	Logger *slog.Logger
}

// Ensure returns local paths for the configured model, fetching what is missing.
// Every failure wraps ErrModelUnavailable.
func (f *ModelFetcher) Ensure(ctx context.Context, cfg ModelConfig) (ModelFiles, error) {
	if cfg.ModelPath != "" || cfg.TokenizerPath != "" {
		files := ModelFiles{ModelPath: cfg.ModelPath, TokenizerPath: cfg.TokenizerPath}
		for _, p := range []string{files.ModelPath, files.TokenizerPath} {
			if p == "" {
				return ModelFiles{}, modelUnavailable(errors.New("model_path and tokenizer_path must be set together"))
			}
			if _, err := os.Stat(p); err != nil {
				return ModelFiles{}, modelUnavailable(notFound("model", p, err))
			}
		}
		return files, nil
	}
	if cfg.Repo == "" {
		return ModelFiles{}, modelUnavailable(errors.New("no model repo configured"))
	}

	dir := filepath.Join(cfg.CacheDir, filepath.FromSlash(cfg.Repo))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ModelFiles{}, modelUnavailable(fmt.Errorf("create model cache dir: %w", err))
	}
	lock := flock.New(filepath.Join(dir, ".lock"))
	locked, err := lock.TryLockContext(ctx, 250*time.Millisecond)
	if err != nil {
		return ModelFiles{}, modelUnavailable(fmt.Errorf("lock model cache %s: %w", dir, err))
	}
	if !locked {
		return ModelFiles{}, modelUnavailable(fmt.Errorf("model cache %s is locked", dir))
	}
	defer func() {
		_ = lock.Unlock()
	}()

	files := ModelFiles{
		ModelPath:     filepath.Join(dir, filepath.FromSlash(cfg.ModelFile)),
		TokenizerPath: filepath.Join(dir, filepath.FromSlash(cfg.TokenizerFile)),
	}
	for _, target := range []struct{ file, dest string }{
		{cfg.ModelFile, files.ModelPath},
		{cfg.TokenizerFile, files.TokenizerPath},
	} {
		file, dest := target.file, target.dest
		if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
			continue
		}
		url := hubFileURL(cfg.HubURL, cfg.Repo, file)
		opts := f.Retry
		if opts.MaxAttempts <= 0 {
			opts.MaxAttempts = cfg.FetchAttempts
		}
		if opts.Logger == nil {
			opts.Logger = f.Logger
		}
		f.logf("fetching model file", "url", url, "dest", dest)
		err := WithRetry(ctx, func(ctx context.Context) error {
			return f.download(ctx, url, dest)
		}, opts)
		if err != nil {
			return ModelFiles{}, modelUnavailable(fmt.Errorf("fetch %s: %w", file, err))
		}
	}
	return files, nil
}

func hubFileURL(hub, repo, file string) string {
	return fmt.Sprintf("%s/%s/resolve/main/%s", strings.TrimRight(hub, "/"), strings.Trim(repo, "/"), strings.TrimLeft(file, "/"))
}

func (f *ModelFetcher) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &PermanentError{Err: err}
	}
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("GET %s: %s", url, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
			resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
			return &PermanentError{Err: statusErr}
		}
		return statusErr
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &PermanentError{Err: err}
	}
	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return &PermanentError{Err: err}
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("download %s: %w", url, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

func (f *ModelFetcher) logf(msg string, args ...any) {
	if f.Logger != nil {
		f.Logger.Info(msg, args...)
	}
}
