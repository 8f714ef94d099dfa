package modelserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/latex-ocr/pkg/types"
)

func TestNewValidatesURL(t *testing.T) {
	_, err := New(Config{InferURL: "::"})
	assert.Error(t, err)

	c, err := New(Config{InferURL: "http://127.0.0.1:8502/predict"})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8502/health", c.cfg.HealthURL)
}

func TestRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.Header.Get("X-Internal-Token"))

		var req types.InferenceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		raw, err := base64.StdEncoding.DecodeString(req.ImageB64)
		require.NoError(t, err)
		assert.Equal(t, "\x89PNG", string(raw[:4]))
		assert.Equal(t, "png", req.Format)

		_ = json.NewEncoder(w).Encode(types.InferenceResponse{Text: " \\sqrt{2} \n"})
	}))
	defer srv.Close()

	c, err := New(Config{InferURL: srv.URL + "/predict", AuthToken: "tok"})
	require.NoError(t, err)

	got, err := c.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 5, 5)))
	require.NoError(t, err)
	assert.Equal(t, "\\sqrt{2}", got)
}

func TestRecognizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"CUDA out of memory"}`))
	}))
	defer srv.Close()

	c, err := New(Config{InferURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 5, 5)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestWarmupWaitsForHealth(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(Config{InferURL: srv.URL + "/predict"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Warmup(ctx))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestWarmupTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(Config{InferURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 700*time.Millisecond)
	defer cancel()
	err = c.Warmup(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout waiting for model server")
}
