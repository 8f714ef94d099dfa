// Package server exposes the recognition service over HTTP.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	latexocr "github.com/menta2k/latex-ocr"
	"github.com/menta2k/latex-ocr/internal/config"
	"github.com/menta2k/latex-ocr/internal/utils"
	"github.com/menta2k/latex-ocr/pkg/types"
)

// Handle serves the OCR endpoint and the probes
type Handle struct {
	svc          *latexocr.Service
	maxBodyBytes int64
	ready        atomic.Bool
}

// New creates a handler around svc. maxBodyBytes <= 0 disables the body cap.
func New(svc *latexocr.Service, maxBodyBytes int64) *Handle {
	return &Handle{
		svc:          svc,
		maxBodyBytes: maxBodyBytes,
	}
}

// SetReady flips the readiness probe
func (h *Handle) SetReady(ready bool) {
	h.ready.Store(ready)
}

// NewRouter builds the chi router with logging, CORS and panic containment
func NewRouter(h *Handle, cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(recoverJSON)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Post("/ocr", h.Ocr)
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	return r
}

// Ocr decodes {"image": base64} and answers {"latex": text}. Every failure
// is reported as 500 {"error": msg}.
func (h *Handle) Ocr(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		writeError(w, r, latexocr.Malformed(fmt.Errorf("failed to read request body: %w", err)))
		return
	}

	req, err := parseRequest(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Printf("ocr request %s: %s payload", middleware.GetReqID(r.Context()), utils.FormatFileSize(int64(len(*req.Image))))

	latex, err := h.svc.RecognizeBase64(r.Context(), *req.Image)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, types.OCRResponse{Latex: latex})
}

// Healthz reports that the process is up
func (h *Handle) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

// Readyz reports whether the model has been warmed up
func (h *Handle) Readyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !h.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "not ready")
		return
	}
	_, _ = io.WriteString(w, "ready")
}

func parseRequest(data []byte) (*types.OCRRequest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, latexocr.Malformed(errors.New("empty request body"))
	}
	var req types.OCRRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, latexocr.Malformed(fmt.Errorf("bad json: %w", err))
	}
	if req.Image == nil {
		return nil, latexocr.Malformed(errors.New(`missing required field "image"`))
	}
	return &req, nil
}

// writeError is the single place failures leave the service
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("ocr request %s failed (%s): %v", middleware.GetReqID(r.Context()), latexocr.KindOf(err), err)
	writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// recoverJSON turns handler panics into the usual 500 error body
func recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				writeError(w, r, fmt.Errorf("internal error: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
