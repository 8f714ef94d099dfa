package llamacpp

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rawRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type     string `json:"type"`
			Text     string `json:"text"`
			ImageURL *struct {
				URL string `json:"url"`
			} `json:"image_url"`
		} `json:"content"`
	} `json:"messages"`
}

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestRecognizeStringContent(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req rawRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen2.5-vl", req.Model)
		require.Len(t, req.Messages, 1)
		require.Len(t, req.Messages[0].Content, 2)
		assert.Equal(t, "image_url", req.Messages[0].Content[1].Type)
		assert.True(t, strings.HasPrefix(req.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,"))

		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"\\[x^2\\]"}}]}`))
	})

	c, err := NewClient(srv.URL+"/", "qwen2.5-vl")
	require.NoError(t, err)
	c.WithAPIKey("secret")

	got, err := c.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)))
	require.NoError(t, err)
	assert.Equal(t, "x^2", got)
}

func TestRecognizeArrayContent(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"a+"},{"type":"text","text":"b"}]}}]}`))
	})

	c, _ := NewClient(srv.URL, "m")
	got, err := c.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)))
	require.NoError(t, err)
	assert.Equal(t, "a+b", got)
}

func TestRecognizeErrors(t *testing.T) {
	failing := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})
	empty := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	img := image.NewGray(image.Rect(0, 0, 4, 4))

	c, _ := NewClient(failing.URL, "m")
	_, err := c.Recognize(context.Background(), img)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")

	c, _ = NewClient(empty.URL, "m")
	_, err = c.Recognize(context.Background(), img)
	assert.EqualError(t, err, "no choices in response")
}

func TestWarmupWaitsForModel(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"Loading model"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _ := NewClient(srv.URL, "m")
	require.NoError(t, c.Warmup(ctx))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWarmupTimeout(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"Loading model"}}`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 700*time.Millisecond)
	defer cancel()

	c, _ := NewClient(srv.URL, "m")
	err := c.Warmup(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Loading model")
}

func TestWithTimeout(t *testing.T) {
	c, _ := NewClient("", "m")
	assert.Equal(t, DefaultTimeout, c.Timeout())
	assert.Equal(t, 30*time.Second, c.WithTimeout(30*time.Second).Timeout())
	assert.Equal(t, 30*time.Second, c.WithTimeout(0).Timeout())
}

func TestRecognizeAppliesTimeout(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	c, _ := NewClient(srv.URL, "m")
	c.WithTimeout(200 * time.Millisecond)
	_, err := c.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadline exceeded")
}
