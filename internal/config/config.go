package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/agenthands/bioguard/internal/core/faults"
)

type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// InsecureDevSecret is used in development when BIOGUARD_SECRET_KEY is unset.
const InsecureDevSecret = "bioguard-insecure-development-secret"

type Prompts struct {
	Food     string `toml:"food"`
	Document string `toml:"document"`
	Chat     string `toml:"chat"`
}

type ProviderConfig struct {
	Model          string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	BaseURL        string `toml:"base_url"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type StorageConfig struct {
	Driver        string         `toml:"driver"`
	DSN           string         `toml:"dsn"`
	VectorBackend string         `toml:"vector_backend"`
	VectorPath    string         `toml:"vector_path"`
	WeaviateURL   string         `toml:"weaviate_url"`
	WeaviateClass string         `toml:"weaviate_class"`
	GraphBackend  string         `toml:"graph_backend"`
	Memgraph      MemgraphConfig `toml:"memgraph"`
	CacheBackend  string         `toml:"cache_backend"`
	CachePath     string         `toml:"cache_path"`
	Embedder      string         `toml:"embedder"`
	EmbeddingDims int            `toml:"embedding_dims"`
	// SimilarNeighbors caps the SIMILAR_TO edges written per record.
	SimilarNeighbors int     `toml:"similar_neighbors"`
	SimilarThreshold float64 `toml:"similar_threshold"`
}

type ReconcileConfig struct {
	MaxAttempts int           `toml:"max_attempts"`
	Concurrency int           `toml:"concurrency"`
	BatchSize   int           `toml:"batch_size"`
	BaseBackoff time.Duration `toml:"-"`
	MaxBackoff  time.Duration `toml:"-"`
	Interval    time.Duration `toml:"-"`
}

// Credentials holds provider secrets. Only presence matters for ordering.
type Credentials struct {
	GeminiAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaBaseURL   string
	EdamamAppID     string
	EdamamAppKey    string
	// OpenFoodFactsUserAgent identifies the app to Open Food Facts, which
	// asks every API client for one.
	OpenFoodFactsUserAgent string
	USDAAPIKey             string
	NutritionixAppID       string
	NutritionixAPIKey      string
}

// Present maps each credential environment key to whether it is set.
func (c Credentials) Present() map[string]bool {
	return map[string]bool{
		"GEMINI_API_KEY":    c.GeminiAPIKey != "",
		"OPENAI_API_KEY":    c.OpenAIAPIKey != "",
		"ANTHROPIC_API_KEY": c.AnthropicAPIKey != "",
		"OLLAMA_BASE_URL":   c.OllamaBaseURL != "",
		"EDAMAM_APP_KEY":    c.EdamamAppKey != "" && c.EdamamAppID != "",

		"OPENFOODFACTS_USER_AGENT": c.OpenFoodFactsUserAgent != "",
		"USDA_API_KEY":             c.USDAAPIKey != "",
		"NUTRITIONIX_API_KEY":      c.NutritionixAPIKey != "" && c.NutritionixAppID != "",
	}
}

// Config is built once by Load and passed to every component; nothing reads
// the environment after startup.
type Config struct {
	Env             Environment   `toml:"-"`
	Port            string        `toml:"-"`
	SecretKey       string        `toml:"-"`
	InsecureSecret  bool          `toml:"-"`
	RateLimit       int           `toml:"-"`
	CacheTTL        time.Duration `toml:"-"`
	MaxContentBytes int64         `toml:"-"`
	ProviderTimeout time.Duration `toml:"-"`
	HistoryLimit    int           `toml:"history_limit"`

	Features    FeatureFlags `toml:"-"`
	Credentials Credentials  `toml:"-"`

	Providers map[string]ProviderConfig `toml:"providers"`
	Prompts   Prompts                   `toml:"prompts"`
	Storage   StorageConfig             `toml:"storage"`
	Reconcile ReconcileConfig           `toml:"reconcile"`
}

// Provider returns the settings for a named provider, falling back to the
// built-in model names.
func (c *Config) Provider(name string) ProviderConfig {
	pc := c.Providers[name]
	def := defaultProviders[name]
	if pc.Model == "" {
		pc.Model = def.Model
	}
	if pc.EmbeddingModel == "" {
		pc.EmbeddingModel = def.EmbeddingModel
	}
	if pc.BaseURL == "" {
		pc.BaseURL = def.BaseURL
	}
	return pc
}

var defaultProviders = map[string]ProviderConfig{
	"gemini":        {Model: "gemini-1.5-flash", EmbeddingModel: "text-embedding-004"},
	"openai":        {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small"},
	"claude":        {Model: "claude-3-5-haiku-latest"},
	"ollama":        {Model: "llama3.2", EmbeddingModel: "nomic-embed-text", BaseURL: "http://localhost:11434"},
	"edamam":        {BaseURL: "https://api.edamam.com"},
	"openfoodfacts": {BaseURL: "https://world.openfoodfacts.org"},
	"fooddata":      {BaseURL: "https://api.nal.usda.gov"},
	"nutritionix":   {BaseURL: "https://trackapi.nutritionix.com"},
}

func defaults(env Environment) *Config {
	cfg := &Config{
		Env:             env,
		Port:            "8080",
		MaxContentBytes: 10 << 20,
		HistoryLimit:    10,
		Storage: StorageConfig{
			Driver:           "sqlite",
			DSN:              "bioguard.db",
			VectorBackend:    "sqlite",
			VectorPath:       "bioguard_vectors.db",
			WeaviateClass:    "AnalysisRecord",
			GraphBackend:     "memory",
			Memgraph:         MemgraphConfig{URI: "bolt://localhost:7687"},
			CacheBackend:     "memory",
			CachePath:        "data/cache",
			Embedder:         "hash",
			EmbeddingDims:    256,
			SimilarNeighbors: 3,
			SimilarThreshold: 0.8,
		},
		Reconcile: ReconcileConfig{
			MaxAttempts: 5,
			Concurrency: 4,
			BatchSize:   50,
			BaseBackoff: 2 * time.Second,
			MaxBackoff:  5 * time.Minute,
			Interval:    30 * time.Second,
		},
	}
	switch env {
	case Production:
		cfg.RateLimit = 30
		cfg.CacheTTL = time.Hour
		cfg.ProviderTimeout = 15 * time.Second
	default:
		cfg.RateLimit = 120
		cfg.CacheTTL = 5 * time.Minute
		cfg.ProviderTimeout = 30 * time.Second
	}
	return cfg
}

// Load resolves configuration from environ (KEY=VALUE pairs, as returned by
// os.Environ) on top of an optional TOML file. A missing file at path is not
// an error; a file that fails to parse is.
func Load(path string, environ []string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	env := envMap(environ)

	mode := Environment(strings.ToLower(env["BIOGUARD_ENV"]))
	switch mode {
	case "":
		mode = Development
	case Development, Production:
	default:
		return nil, &faults.ConfigError{Key: "BIOGUARD_ENV", Reason: fmt.Sprintf("unknown environment %q", mode)}
	}
	cfg := defaults(mode)

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
			logger.Info("config file not found, using environment only", "path", path)
		}
	}

	flags, err := parseFlags(env)
	if err != nil {
		return nil, err
	}
	cfg.Features = flags

	if err := applyEnv(cfg, env); err != nil {
		return nil, err
	}

	cfg.SecretKey = env["BIOGUARD_SECRET_KEY"]
	if cfg.SecretKey == "" {
		if cfg.Env == Production {
			return nil, &faults.ConfigError{Key: "BIOGUARD_SECRET_KEY", Reason: "required in production"}
		}
		cfg.SecretKey = InsecureDevSecret
		cfg.InsecureSecret = true
		logger.Warn("BIOGUARD_SECRET_KEY not set, using insecure development secret")
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return &faults.ConfigError{Key: path, Reason: "failed to parse TOML", Err: err}
	}
	return nil
}

func applyEnv(cfg *Config, env map[string]string) error {
	if v := env["PORT"]; v != "" {
		cfg.Port = v
	}

	p := envParser{env: env}
	p.int("BIOGUARD_RATE_LIMIT", &cfg.RateLimit)
	p.seconds("BIOGUARD_CACHE_TTL", &cfg.CacheTTL)
	p.seconds("BIOGUARD_PROVIDER_TIMEOUT", &cfg.ProviderTimeout)
	p.int("BIOGUARD_HISTORY_LIMIT", &cfg.HistoryLimit)
	var maxMB int
	if p.int("BIOGUARD_MAX_CONTENT_MB", &maxMB) {
		cfg.MaxContentBytes = int64(maxMB) << 20
	}

	s := &cfg.Storage
	p.str("BIOGUARD_DB_DRIVER", &s.Driver)
	p.str("BIOGUARD_DB_DSN", &s.DSN)
	p.str("BIOGUARD_VECTOR_BACKEND", &s.VectorBackend)
	p.str("BIOGUARD_VECTOR_PATH", &s.VectorPath)
	p.str("WEAVIATE_URL", &s.WeaviateURL)
	p.str("BIOGUARD_GRAPH_BACKEND", &s.GraphBackend)
	p.str("MEMGRAPH_URI", &s.Memgraph.URI)
	p.str("MEMGRAPH_USER", &s.Memgraph.User)
	p.str("MEMGRAPH_PASSWORD", &s.Memgraph.Password)
	p.str("BIOGUARD_CACHE_BACKEND", &s.CacheBackend)
	p.str("BIOGUARD_CACHE_PATH", &s.CachePath)
	p.str("BIOGUARD_EMBEDDER", &s.Embedder)

	r := &cfg.Reconcile
	p.int("BIOGUARD_RECONCILE_MAX_ATTEMPTS", &r.MaxAttempts)
	p.int("BIOGUARD_RECONCILE_CONCURRENCY", &r.Concurrency)
	p.seconds("BIOGUARD_RECONCILE_INTERVAL", &r.Interval)

	cfg.Credentials = Credentials{
		GeminiAPIKey:    env["GEMINI_API_KEY"],
		OpenAIAPIKey:    env["OPENAI_API_KEY"],
		AnthropicAPIKey: env["ANTHROPIC_API_KEY"],
		OllamaBaseURL:   env["OLLAMA_BASE_URL"],
		EdamamAppID:     env["EDAMAM_APP_ID"],
		EdamamAppKey:    env["EDAMAM_APP_KEY"],

		OpenFoodFactsUserAgent: env["OPENFOODFACTS_USER_AGENT"],
		USDAAPIKey:             env["USDA_API_KEY"],
		NutritionixAppID:       env["NUTRITIONIX_APP_ID"],
		NutritionixAPIKey:      env["NUTRITIONIX_API_KEY"],
	}

	if p.err != nil {
		return p.err
	}
	return validate(cfg)
}

func validate(cfg *Config) error {
	oneOf := func(key, v string, allowed ...string) error {
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return &faults.ConfigError{Key: key, Reason: fmt.Sprintf("%q is not one of %s", v, strings.Join(allowed, ", "))}
	}
	s := cfg.Storage
	for _, err := range []error{
		oneOf("BIOGUARD_DB_DRIVER", s.Driver, "sqlite", "postgres", "mysql"),
		oneOf("BIOGUARD_VECTOR_BACKEND", s.VectorBackend, "sqlite", "weaviate"),
		oneOf("BIOGUARD_GRAPH_BACKEND", s.GraphBackend, "memory", "memgraph"),
		oneOf("BIOGUARD_CACHE_BACKEND", s.CacheBackend, "memory", "badger"),
		oneOf("BIOGUARD_EMBEDDER", s.Embedder, "hash", "openai", "gemini", "ollama"),
	} {
		if err != nil {
			return err
		}
	}
	if s.VectorBackend == "weaviate" && s.WeaviateURL == "" {
		return &faults.ConfigError{Key: "WEAVIATE_URL", Reason: "required when the vector backend is weaviate"}
	}
	if cfg.RateLimit <= 0 {
		return &faults.ConfigError{Key: "BIOGUARD_RATE_LIMIT", Reason: "must be positive"}
	}
	if cfg.ProviderTimeout <= 0 {
		return &faults.ConfigError{Key: "BIOGUARD_PROVIDER_TIMEOUT", Reason: "must be positive"}
	}
	if cfg.MaxContentBytes <= 0 {
		return &faults.ConfigError{Key: "BIOGUARD_MAX_CONTENT_MB", Reason: "must be positive"}
	}
	if cfg.Reconcile.MaxAttempts <= 0 {
		return &faults.ConfigError{Key: "BIOGUARD_RECONCILE_MAX_ATTEMPTS", Reason: "must be positive"}
	}
	return nil
}

type envParser struct {
	env map[string]string
	err error
}

func (p *envParser) str(key string, dst *string) {
	if v, ok := p.env[key]; ok && v != "" {
		*dst = v
	}
}

func (p *envParser) int(key string, dst *int) bool {
	v, ok := p.env[key]
	if !ok || v == "" || p.err != nil {
		return false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.err = &faults.ConfigError{Key: key, Reason: "expected an integer", Err: err}
		return false
	}
	*dst = n
	return true
}

func (p *envParser) seconds(key string, dst *time.Duration) {
	var n int
	if p.int(key, &n) {
		*dst = time.Duration(n) * time.Second
	}
}

func envMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}
