// Package latexocr turns images of mathematical formulas into LaTeX markup.
//
// The package glues three components together:
//
// 1. Decoder (pkg/decoder): base64 and image decoding, RGB normalisation
// 2. Recognizer (pkg/recognizer): the pretrained model behind a small interface
// 3. Backends (pkg/modelserver, pkg/ollama, pkg/llamacpp, pkg/gemini): where the model runs
//
// Basic usage:
//
//	rec, _ := modelserver.New(modelserver.Config{InferURL: "http://127.0.0.1:8502/predict"})
//	svc := latexocr.New(rec)
//	latex, err := svc.RecognizeBase64(ctx, payload)
//
// The HTTP surface lives in internal/server; cmd/latex-ocr wires it up.
package latexocr

import (
	"context"
	"fmt"
	"image"

	"github.com/menta2k/latex-ocr/pkg/decoder"
	"github.com/menta2k/latex-ocr/pkg/recognizer"
)

// Version of the service
const Version = "1.0.0"

// Service decodes images and hands them to a recognizer. It holds no
// per-request state and is safe for concurrent use as long as the
// recognizer is.
type Service struct {
	decoder    *decoder.Decoder
	recognizer recognizer.Recognizer
}

// New creates a Service with the default decoder configuration
func New(rec recognizer.Recognizer) *Service {
	return &Service{
		decoder:    decoder.New(),
		recognizer: rec,
	}
}

// NewWithConfig creates a Service with a custom decoder configuration
func NewWithConfig(cfg decoder.Config, rec recognizer.Recognizer) *Service {
	return &Service{
		decoder:    decoder.NewWithConfig(cfg),
		recognizer: rec,
	}
}

// RecognizeBase64 runs the whole pipeline on a base64 payload
func (s *Service) RecognizeBase64(ctx context.Context, payload string) (string, error) {
	data, err := s.decoder.DecodeBase64(payload)
	if err != nil {
		return "", &Error{Kind: KindDecode, Err: err}
	}
	return s.RecognizeBytes(ctx, data)
}

// RecognizeBytes decodes raw image bytes and recognizes them
func (s *Service) RecognizeBytes(ctx context.Context, data []byte) (string, error) {
	img, err := s.decoder.DecodeRGB(data)
	if err != nil {
		return "", &Error{Kind: KindDecode, Err: err}
	}
	return s.recognize(ctx, img)
}

// RecognizeImage normalises an already decoded image and recognizes it
func (s *Service) RecognizeImage(ctx context.Context, img image.Image) (string, error) {
	if img == nil {
		return "", &Error{Kind: KindDecode, Err: decoder.ErrEmptyImage}
	}
	if err := s.decoder.ValidateImage(img); err != nil {
		return "", &Error{Kind: KindDecode, Err: err}
	}
	return s.recognize(ctx, decoder.ToRGB(img))
}

// RecognizeFile loads an image from disk and recognizes it
func (s *Service) RecognizeFile(ctx context.Context, path string) (string, error) {
	img, err := s.decoder.LoadImage(path)
	if err != nil {
		return "", &Error{Kind: KindDecode, Err: err}
	}
	return s.recognize(ctx, decoder.ToRGB(img))
}

func (s *Service) recognize(ctx context.Context, img *image.NRGBA) (latex string, err error) {
	if s.recognizer == nil {
		return "", &Error{Kind: KindRecognition, Err: recognizer.ErrNotConfigured}
	}
	defer func() {
		if r := recover(); r != nil {
			latex, err = "", &Error{Kind: KindRecognition, Err: fmt.Errorf("recognizer panic: %v", r)}
		}
	}()

	latex, err = s.recognizer.Recognize(ctx, img)
	if err != nil {
		return "", &Error{Kind: KindRecognition, Err: err}
	}
	return latex, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
