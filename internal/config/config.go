package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-folio/internal/constants"
	"github.com/kozaktomas/face-folio/internal/facematch"
	"github.com/kozaktomas/face-folio/internal/recognition"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Matching  MatchingConfig  `yaml:"matching"`
	Portrait  PortraitConfig  `yaml:"portrait"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Run       RunConfig       `yaml:"run"`
	Web       WebConfig       `yaml:"web"`
}

type MatchingConfig struct {
	Tolerance   float64 `yaml:"tolerance"`   // maximum distance for two faces to be the same person
	Mode        string  `yaml:"mode"`        // first or best
	Metric      string  `yaml:"metric"`      // euclidean or cosine
	Concurrency int     `yaml:"concurrency"` // parallel oracle calls, 1 = sequential
}

type PortraitConfig struct {
	Padding int `yaml:"padding"` // pixels around the face box
	Quality int `yaml:"quality"` // JPEG quality, 1-100
}

type EmbeddingConfig struct {
	URL     string        `yaml:"url"` // face embedding service
	Timeout time.Duration `yaml:"timeout"`
}

type RunConfig struct {
	// LockFile guards against concurrent runs across processes.
	// Relative paths are resolved against the system temp directory.
	LockFile string `yaml:"lock_file"`
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LockPath returns the absolute path of the run lock file, or "" when locking is disabled.
func (c *RunConfig) LockPath() string {
	if c.LockFile == "" || c.LockFile == "-" {
		return ""
	}
	if filepath.IsAbs(c.LockFile) {
		return c.LockFile
	}
	return filepath.Join(os.TempDir(), c.LockFile)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration ("90s", "2m").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated environment variable.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func Load() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	cfg.Matching.Tolerance = envFloat("FACE_TOLERANCE", cfg.Matching.Tolerance)
	cfg.Matching.Mode = envString("FACE_MATCH_MODE", cfg.Matching.Mode)
	cfg.Matching.Metric = envString("FACE_METRIC", cfg.Matching.Metric)
	cfg.Matching.Concurrency = envInt("FACE_CONCURRENCY", cfg.Matching.Concurrency)
	cfg.Portrait.Padding = envInt("PORTRAIT_PADDING", cfg.Portrait.Padding)
	cfg.Portrait.Quality = envInt("PORTRAIT_QUALITY", cfg.Portrait.Quality)
	cfg.Embedding.URL = envString("EMBEDDING_URL", cfg.Embedding.URL)
	cfg.Embedding.Timeout = envDuration("EMBEDDING_TIMEOUT", cfg.Embedding.Timeout)
	cfg.Run.LockFile = envString("FACE_FOLIO_LOCK_PATH", cfg.Run.LockFile)
	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)
	cfg.Web.AllowedOrigins = envList("WEB_ALLOWED_ORIGINS", cfg.Web.AllowedOrigins)

	return &cfg
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Matching.Tolerance <= 0 {
		errs = append(errs, fmt.Errorf("tolerance must be positive, got %v", c.Matching.Tolerance))
	}
	if _, err := facematch.ParseMatchMode(c.Matching.Mode); err != nil {
		errs = append(errs, err)
	}
	if _, err := recognition.ParseMetric(c.Matching.Metric); err != nil {
		errs = append(errs, err)
	}
	if c.Matching.Concurrency < 1 || c.Matching.Concurrency > constants.MaxConcurrency {
		errs = append(errs, fmt.Errorf("concurrency must be between 1 and %d, got %d", constants.MaxConcurrency, c.Matching.Concurrency))
	}
	if c.Portrait.Padding < 0 {
		errs = append(errs, fmt.Errorf("portrait padding must not be negative, got %d", c.Portrait.Padding))
	}
	if c.Portrait.Quality < 1 || c.Portrait.Quality > 100 {
		errs = append(errs, fmt.Errorf("portrait quality must be between 1 and 100, got %d", c.Portrait.Quality))
	}
	if c.Embedding.URL == "" {
		errs = append(errs, errors.New("embedding service URL is required"))
	}
	return errors.Join(errs...)
}
