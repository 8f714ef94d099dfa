package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/latex-ocr/internal/utils"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Decoder    DecoderConfig    `json:"decoder" yaml:"decoder"`
	Recognizer RecognizerConfig `json:"recognizer" yaml:"recognizer"`
}

// ServerConfig holds configuration for the HTTP listener
type ServerConfig struct {
	Host           string   `json:"host" yaml:"host"`
	Port           int      `json:"port" yaml:"port"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	MaxBodyBytes   int64    `json:"max_body_bytes" yaml:"max_body_bytes"`
	// ShutdownTimeoutSeconds bounds graceful shutdown on SIGINT/SIGTERM
	ShutdownTimeoutSeconds int `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
	// WarmupTimeoutSeconds bounds the readiness check run before listening
	WarmupTimeoutSeconds int `json:"warmup_timeout_seconds" yaml:"warmup_timeout_seconds"`
}

// DecoderConfig holds configuration for image decoding
type DecoderConfig struct {
	SupportedFormats []string `json:"supported_formats" yaml:"supported_formats"`
	MinDimension     int      `json:"min_dimension" yaml:"min_dimension"`
	MaxDimension     int      `json:"max_dimension" yaml:"max_dimension"`
}

// RecognizerConfig selects and tunes the model backend
type RecognizerConfig struct {
	Backend        string `json:"backend" yaml:"backend"` // http|ollama|llamacpp|gemini
	URL            string `json:"url" yaml:"url"`
	Model          string `json:"model" yaml:"model"`
	APIKey         string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Prompt         string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	MaxConcurrency int    `json:"max_concurrency" yaml:"max_concurrency"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	SendFormat     string `json:"send_format" yaml:"send_format"`
	SendSize       int    `json:"send_size" yaml:"send_size"`
	SendQuality    int    `json:"send_quality" yaml:"send_quality"`
	SendTrim       bool   `json:"send_trim" yaml:"send_trim"`
}

// Backends lists the recognizer backends understood by the factory
var Backends = []string{"http", "ollama", "llamacpp", "gemini"}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   5000,
			AllowedOrigins:         []string{"*"},
			MaxBodyBytes:           20 << 20,
			ShutdownTimeoutSeconds: 15,
			WarmupTimeoutSeconds:   120,
		},
		Decoder: DecoderConfig{
			SupportedFormats: []string{"png", "jpeg", "gif", "webp", "bmp", "tiff"},
			MinDimension:     1,
			MaxDimension:     8192,
		},
		Recognizer: RecognizerConfig{
			Backend:        "http",
			URL:            "http://127.0.0.1:8502/predict",
			MaxConcurrency: 0,
			TimeoutSeconds: 300,
			SendFormat:     "png",
			SendSize:       1536,
			SendQuality:    90,
		},
	}
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Timeout returns the per-call recognizer timeout
func (r RecognizerConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// LoadFromFile loads configuration from a JSON or YAML file. Values missing
// from the file keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	switch utils.GetFileExtension(filename) {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON or YAML file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	if err := utils.EnsureDir(filepath.Dir(filename)); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch utils.GetFileExtension(filename) {
	case "yaml", "yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from LATEX_OCR_* variables. PORT is honoured
// as well since most PaaS runtimes set it.
func (c *Config) ApplyEnv() error {
	c.Server.Host = getEnv("LATEX_OCR_HOST", c.Server.Host)
	if err := envInt("PORT", &c.Server.Port); err != nil {
		return err
	}
	if err := envInt("LATEX_OCR_PORT", &c.Server.Port); err != nil {
		return err
	}
	if v := os.Getenv("LATEX_OCR_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	c.Recognizer.Backend = getEnv("LATEX_OCR_BACKEND", c.Recognizer.Backend)
	c.Recognizer.URL = getEnv("LATEX_OCR_URL", c.Recognizer.URL)
	c.Recognizer.Model = getEnv("LATEX_OCR_MODEL", c.Recognizer.Model)
	c.Recognizer.Prompt = getEnv("LATEX_OCR_PROMPT", c.Recognizer.Prompt)
	c.Recognizer.APIKey = getEnv("LATEX_OCR_API_KEY", c.Recognizer.APIKey)
	if c.Recognizer.Backend == "gemini" && c.Recognizer.APIKey == "" {
		c.Recognizer.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if err := envInt("LATEX_OCR_MAX_CONCURRENCY", &c.Recognizer.MaxConcurrency); err != nil {
		return err
	}
	return envInt("LATEX_OCR_TIMEOUT_SECONDS", &c.Recognizer.TimeoutSeconds)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes cannot be negative")
	}

	if c.Server.WarmupTimeoutSeconds <= 0 {
		return fmt.Errorf("server.warmup_timeout_seconds must be positive")
	}

	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("server.shutdown_timeout_seconds must be positive")
	}

	if c.Decoder.MinDimension < 0 || c.Decoder.MaxDimension < 0 {
		return fmt.Errorf("decoder dimensions cannot be negative")
	}

	if c.Decoder.MaxDimension > 0 && c.Decoder.MinDimension > c.Decoder.MaxDimension {
		return fmt.Errorf("decoder.min_dimension exceeds decoder.max_dimension")
	}

	if !contains(Backends, c.Recognizer.Backend) {
		return fmt.Errorf("recognizer.backend must be one of %s", strings.Join(Backends, ", "))
	}

	if c.Recognizer.Backend != "gemini" && c.Recognizer.URL == "" {
		return fmt.Errorf("recognizer.url is required for backend %s", c.Recognizer.Backend)
	}

	if (c.Recognizer.Backend == "ollama" || c.Recognizer.Backend == "llamacpp") && c.Recognizer.Model == "" {
		return fmt.Errorf("recognizer.model is required for backend %s", c.Recognizer.Backend)
	}

	if c.Recognizer.Backend == "gemini" && c.Recognizer.APIKey == "" {
		return fmt.Errorf("recognizer.api_key is required for backend gemini")
	}

	if c.Recognizer.MaxConcurrency < 0 {
		return fmt.Errorf("recognizer.max_concurrency cannot be negative")
	}

	switch strings.ToLower(c.Recognizer.SendFormat) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("recognizer.send_format must be png, jpg or webp")
	}

	if c.Recognizer.SendQuality < 1 || c.Recognizer.SendQuality > 100 {
		return fmt.Errorf("recognizer.send_quality must be between 1 and 100")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "latex-ocr", "config.json")
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", k, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
