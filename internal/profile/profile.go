package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultEmbeddingDim matches text-embedding-3-small.
const DefaultEmbeddingDim = 1536

// Profile is the configuration to start the main server.
// It is loaded once at process start and treated as immutable afterwards.
type Profile struct {
	// EmbeddingProviders is a JSON list of provider entries:
	// [{"url": "...", "key": "...", "model": "...", "name": "..."}, ...].
	// Order is priority: the first entry is the primary provider.
	EmbeddingProviders string

	// Legacy single-provider configuration, used when EmbeddingProviders
	// is absent or empty.
	EmbeddingAPIKey  string
	EmbeddingBaseURL string
	EmbeddingModel   string

	Mode        string
	Addr        string
	Data        string
	Driver      string
	DSN         string
	InstanceURL string
	Version     string

	Port int

	// EmbeddingDim is the vector dimension fixed for the whole deployment.
	// All configured providers must produce vectors of this dimension.
	EmbeddingDim int

	// EmbeddingTimeout is the per-batch provider call timeout in seconds.
	EmbeddingTimeout int

	// EmbeddingRPS bounds the request rate against each provider.
	EmbeddingRPS int
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.EmbeddingProviders = getEnvOrDefault("FIREMARK_EMBEDDING_PROVIDERS", "")

	// Legacy single-provider fallback configuration.
	p.EmbeddingAPIKey = getEnvOrDefault("FIREMARK_EMBEDDING_API_KEY", "")
	p.EmbeddingBaseURL = getEnvOrDefault("FIREMARK_EMBEDDING_BASE_URL", "https://api.openai.com/v1")
	p.EmbeddingModel = getEnvOrDefault("FIREMARK_EMBEDDING_MODEL", "text-embedding-3-small")

	p.EmbeddingDim = getEnvOrDefaultInt("FIREMARK_EMBEDDING_DIM", DefaultEmbeddingDim)
	p.EmbeddingTimeout = getEnvOrDefaultInt("FIREMARK_EMBEDDING_TIMEOUT_SECONDS", 30)
	p.EmbeddingRPS = getEnvOrDefaultInt("FIREMARK_EMBEDDING_RPS", 10)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Driver != "postgres" && p.Driver != "sqlite" {
		return errors.Errorf("unsupported database driver %q", p.Driver)
	}

	if p.EmbeddingDim <= 0 {
		return errors.Errorf("embedding dimension must be positive, got %d", p.EmbeddingDim)
	}
	if p.EmbeddingTimeout <= 0 {
		p.EmbeddingTimeout = 30
	}
	if p.EmbeddingRPS <= 0 {
		p.EmbeddingRPS = 10
	}

	if p.Driver == "sqlite" {
		if p.DSN == "" {
			if p.Data == "" {
				p.Data = "."
			}
			dataDir, err := checkDataDir(p.Data)
			if err != nil {
				return err
			}
			p.Data = dataDir
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("firemark_%s.db", p.Mode))
		}
		return nil
	}

	if p.DSN == "" {
		return errors.New("dsn is required for the postgres driver")
	}
	return nil
}
