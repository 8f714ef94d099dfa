package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	latexocr "github.com/menta2k/latex-ocr"
	"github.com/menta2k/latex-ocr/internal/backend"
	"github.com/menta2k/latex-ocr/internal/config"
	"github.com/menta2k/latex-ocr/internal/server"
	"github.com/menta2k/latex-ocr/internal/utils"
	"github.com/menta2k/latex-ocr/pkg/decoder"
	"github.com/menta2k/latex-ocr/pkg/recognizer"
)

func main() {
	var configPath, in, writeConfig string
	var host, backendName, url, model, apiKey, sendFmt string
	var port, maxConc, sendSize int
	var showVersion, trim bool

	flag.StringVar(&configPath, "config", "", "config file (json|yaml), defaults to "+config.GetConfigPath()+" when present")
	flag.StringVar(&host, "host", "", "listen host (default 0.0.0.0)")
	flag.IntVar(&port, "port", 0, "listen port (default 5000)")
	flag.StringVar(&backendName, "backend", "", "recognizer backend: http|ollama|llamacpp|gemini")
	flag.StringVar(&url, "url", "", "backend URL (model server infer endpoint, ollama or llama.cpp server)")
	flag.StringVar(&model, "model", "", "model name (ollama, llamacpp, gemini)")
	flag.StringVar(&apiKey, "api-key", "", "API key or model server token")
	flag.IntVar(&maxConc, "max-concurrency", 0, "max concurrent recognitions, 0=unlimited")
	flag.StringVar(&sendFmt, "sendfmt", "", "format sent to the model: png|jpg|webp")
	flag.IntVar(&sendSize, "sendsize", 0, "max long side sent to the model (px), 0=original")
	flag.BoolVar(&trim, "trim", false, "crop blank margins before sending to the model")
	flag.StringVar(&in, "in", "", "recognize a single image file, print the LaTeX and exit")
	flag.StringVar(&writeConfig, "write-config", "", "write the effective configuration to this path and exit")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(latexocr.GetVersion())
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatal(err)
	}

	// Flags win over file and environment, but only when given explicitly.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Server.Host = host
		case "port":
			cfg.Server.Port = port
		case "backend":
			cfg.Recognizer.Backend = backendName
		case "url":
			cfg.Recognizer.URL = url
		case "model":
			cfg.Recognizer.Model = model
		case "api-key":
			cfg.Recognizer.APIKey = apiKey
		case "max-concurrency":
			cfg.Recognizer.MaxConcurrency = maxConc
		case "sendfmt":
			cfg.Recognizer.SendFormat = sendFmt
		case "sendsize":
			cfg.Recognizer.SendSize = sendSize
		case "trim":
			cfg.Recognizer.SendTrim = trim
		}
	})
	if cfg.Recognizer.Backend == "gemini" && cfg.Recognizer.APIKey == "" {
		cfg.Recognizer.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if writeConfig != "" {
		if err := cfg.SaveToFile(writeConfig); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", writeConfig)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The model is built and warmed once, before any request is accepted.
	rec, err := backend.New(ctx, cfg.Recognizer)
	if err != nil {
		log.Fatal(err)
	}
	defer recognizer.Close(rec)

	log.Printf("warming up %s", recognizer.Name(rec))
	warmCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Server.WarmupTimeoutSeconds)*time.Second)
	err = recognizer.Warmup(warmCtx, rec)
	cancel()
	if err != nil {
		log.Fatalf("model not ready: %v", err)
	}

	svc := latexocr.NewWithConfig(decoder.Config{
		SupportedFormats: cfg.Decoder.SupportedFormats,
		MinDimension:     cfg.Decoder.MinDimension,
		MaxDimension:     cfg.Decoder.MaxDimension,
	}, rec)

	if in != "" {
		latex, err := svc.RecognizeFile(ctx, in)
		if err != nil {
			log.Fatalf("%s: %v", filepath.Base(in), err)
		}
		fmt.Println(latex)
		return
	}

	if err := serve(ctx, cfg, svc); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.GetConfigPath()
		if !utils.FileExists(path) {
			return config.Default(), nil
		}
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded config from %s", path)
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config, svc *latexocr.Service) error {
	h := server.New(svc, cfg.Server.MaxBodyBytes)
	h.SetReady(true)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           server.NewRouter(h, cfg.Server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("latex-ocr %s listening on %s", latexocr.Version, srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("shutting down")
	h.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
