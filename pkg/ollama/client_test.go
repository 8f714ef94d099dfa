package ollama

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeOllama(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/show", func(w http.ResponseWriter, r *http.Request) {
		var req api.ShowRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "pix2tex-vl" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"modelfile":""}`))
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "pix2tex-vl", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Len(t, req.Messages[0].Images, 1)

		_ = json.NewEncoder(w).Encode(api.ChatResponse{
			Model:   req.Model,
			Message: api.Message{Role: "assistant", Content: answer},
			Done:    true,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("http://localhost:11434", "")
	assert.Error(t, err)

	_, err = NewClient("not a url", "m")
	assert.Error(t, err)

	c, err := NewClient("http://localhost:11434/api/chat", "m")
	require.NoError(t, err)
	assert.Equal(t, "ollama/m", c.Name())
}

func TestRecognize(t *testing.T) {
	srv := fakeOllama(t, "$$\\frac{1}{2}$$")

	c, err := NewClient(srv.URL, "pix2tex-vl")
	require.NoError(t, err)

	got, err := c.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 8, 8)))
	require.NoError(t, err)
	assert.Equal(t, "\\frac{1}{2}", got)
}

func TestWarmup(t *testing.T) {
	srv := fakeOllama(t, "")

	c, err := NewClient(srv.URL, "pix2tex-vl")
	require.NoError(t, err)
	assert.NoError(t, c.Warmup(context.Background()))

	missing, err := NewClient(srv.URL, "other")
	require.NoError(t, err)
	assert.Error(t, missing.Warmup(context.Background()))
}
