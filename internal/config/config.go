package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the searchcore service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Ranking   RankingConfig   `yaml:"ranking"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AuthConfig holds API authentication settings. Empty disables auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the shared cache store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// PostgresConfig holds the region/alias store connection settings.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	Model            string `yaml:"model"`
	Dimensions       int    `yaml:"dimensions"`
	BreakerThreshold int    `yaml:"breaker_threshold"`
	LockTTLMs        int    `yaml:"lock_ttl_ms"`
	PollTimeoutMs    int    `yaml:"poll_timeout_ms"`
}

// LLMConfig holds the last-resort location resolver collaborator settings.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// ResolverConfig holds location resolver settings.
type ResolverConfig struct {
	EnableEmbeddingTier bool    `yaml:"enable_embedding_tier"`
	EnableLLMTier       bool    `yaml:"enable_llm_tier"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	EmbeddingTopK       int     `yaml:"embedding_top_k"`
	EmbeddingGap        float64 `yaml:"embedding_gap"`
}

// RankingConfig holds the six signal weights.
type RankingConfig struct {
	RelevanceWeight    float64 `yaml:"relevance_weight"`
	QualityWeight      float64 `yaml:"quality_weight"`
	DistanceWeight     float64 `yaml:"distance_weight"`
	PriceWeight        float64 `yaml:"price_weight"`
	FreshnessWeight    float64 `yaml:"freshness_weight"`
	CompletenessWeight float64 `yaml:"completeness_weight"`
}

// CacheConfig holds cache TTLs in seconds and the startup warm list.
type CacheConfig struct {
	ResponseTTLSec    int `yaml:"response_ttl_sec"`
	ParsedQueryTTLSec int `yaml:"parsed_query_ttl_sec"`
	LocationTTLSec    int `yaml:"location_ttl_sec"`
	// WarmRegionCodes lists markets whose region names are pre-seeded into
	// the location cache at startup.
	WarmRegionCodes []string `yaml:"warm_region_codes"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.BreakerThreshold <= 0 {
		c.Embedding.BreakerThreshold = 5
	}
	if c.Embedding.LockTTLMs <= 0 {
		c.Embedding.LockTTLMs = 5000
	}
	if c.Embedding.PollTimeoutMs <= 0 {
		c.Embedding.PollTimeoutMs = 3000
	}
	if c.Resolver.SimilarityThreshold <= 0 {
		c.Resolver.SimilarityThreshold = 0.85
	}
	if c.Resolver.EmbeddingTopK <= 0 {
		c.Resolver.EmbeddingTopK = 5
	}
	if c.Resolver.EmbeddingGap <= 0 {
		c.Resolver.EmbeddingGap = 0.1
	}
	if c.Cache.ResponseTTLSec <= 0 {
		c.Cache.ResponseTTLSec = 300
	}
	if c.Cache.ParsedQueryTTLSec <= 0 {
		c.Cache.ParsedQueryTTLSec = 3600
	}
	if c.Cache.LocationTTLSec <= 0 {
		c.Cache.LocationTTLSec = 7 * 24 * 3600
	}
	r := &c.Ranking
	if r.RelevanceWeight+r.QualityWeight+r.DistanceWeight+
		r.PriceWeight+r.FreshnessWeight+r.CompletenessWeight == 0 {
		r.RelevanceWeight = 0.30
		r.QualityWeight = 0.25
		r.DistanceWeight = 0.15
		r.PriceWeight = 0.10
		r.FreshnessWeight = 0.10
		r.CompletenessWeight = 0.10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if c.Resolver.SimilarityThreshold >= 1 {
		return fmt.Errorf("resolver.similarity_threshold must be below 1, got %f",
			c.Resolver.SimilarityThreshold)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
