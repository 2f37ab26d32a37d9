package matcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModelConfig(t *testing.T, hub string) ModelConfig {
	t.Helper()
	cfg := DefaultConfig().Model
	cfg.HubURL = hub
	cfg.Repo = "org/tiny-cross-encoder"
	cfg.CacheDir = t.TempDir()
	return cfg
}

func TestModelFetcherDownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		auth.Store(r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/org/tiny-cross-encoder/resolve/main/onnx/model.onnx":
			_, _ = w.Write([]byte("onnx-bytes"))
		case "/org/tiny-cross-encoder/resolve/main/tokenizer.json":
			_, _ = w.Write([]byte(`{"model":{}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := testModelConfig(t, srv.URL)
	fetcher := &ModelFetcher{Client: srv.Client(), Token: "secret", Retry: fastRetry(2)}

	files, err := fetcher.Ensure(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.CacheDir, "org", "tiny-cross-encoder", "onnx", "model.onnx"), files.ModelPath)

	data, err := os.ReadFile(files.ModelPath)
	require.NoError(t, err)
	assert.Equal(t, "onnx-bytes", string(data))
	data, err = os.ReadFile(files.TokenizerPath)
	require.NoError(t, err)
	assert.Equal(t, `{"model":{}}`, string(data))
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, "Bearer secret", auth.Load())

	again, err := fetcher.Ensure(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, files, again)
	assert.Equal(t, int32(2), hits.Load(), "cached files must not be fetched again")
}

func TestModelFetcherFailures(t *testing.T) {
	t.Run("missing repo file is not retried", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			http.NotFound(w, r)
		}))
		defer srv.Close()

		fetcher := &ModelFetcher{Client: srv.Client(), Retry: fastRetry(3)}
		_, err := fetcher.Ensure(context.Background(), testModelConfig(t, srv.URL))
		assert.ErrorIs(t, err, ErrModelUnavailable)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("server errors are retried", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		fetcher := &ModelFetcher{Client: srv.Client(), Retry: fastRetry(3)}
		_, err := fetcher.Ensure(context.Background(), testModelConfig(t, srv.URL))
		assert.ErrorIs(t, err, ErrModelUnavailable)
		assert.ErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("local paths must exist", func(t *testing.T) {
		cfg := DefaultConfig().Model
		cfg.ModelPath = filepath.Join(t.TempDir(), "model.onnx")
		cfg.TokenizerPath = filepath.Join(t.TempDir(), "tokenizer.json")
		_, err := (&ModelFetcher{}).Ensure(context.Background(), cfg)
		assert.ErrorIs(t, err, ErrModelUnavailable)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("local paths are used as-is", func(t *testing.T) {
		cfg := DefaultConfig().Model
		cfg.ModelPath = writeFile(t, "model.onnx", "x")
		cfg.TokenizerPath = writeFile(t, "tokenizer.json", "{}")
		files, err := (&ModelFetcher{}).Ensure(context.Background(), cfg)
		require.NoError(t, err)
		assert.Equal(t, ModelFiles{ModelPath: cfg.ModelPath, TokenizerPath: cfg.TokenizerPath}, files)
	})

	t.Run("half configured local paths", func(t *testing.T) {
		cfg := DefaultConfig().Model
		cfg.ModelPath = writeFile(t, "model.onnx", "x")
		_, err := (&ModelFetcher{}).Ensure(context.Background(), cfg)
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})
}

func TestHubFileURL(t *testing.T) {
	assert.Equal(t,
		"https://huggingface.co/cross-encoder/stsb-roberta-large/resolve/main/onnx/model.onnx",
		hubFileURL("https://huggingface.co/", "cross-encoder/stsb-roberta-large", "onnx/model.onnx"))
}
