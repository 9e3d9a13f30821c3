package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultEnvFiles are loaded in order; later files never override earlier
// ones or the real environment.
var DefaultEnvFiles = []string{".env.local", ".env"}

// Config is the service configuration read from the environment.
type Config struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GeminiAPIKey    string
	OllamaHost      string

	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	JWTSecret          string
	JWKSURL            string
	JWTAudience        string
	JWTPrivateKey      string

	DatabaseURL string
	Debug       bool

	LLMProvider string
	LLMModel    string

	EmbedProvider   string
	EmbedModel      string
	EmbedDimensions int
	EmbedCacheSize  int

	MemoryTokenLimit   int
	AgentMaxIterations int
	TurnTimeout        time.Duration
	WorkerPoolSize     int
	SessionIdleTTL     time.Duration
	OrganizationsPath  string

	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	HTTPAddr       string
	RateLimitRPS   float64
	RateLimitBurst int

	TracingEnabled bool
	LogLevel       string
	LogFormat      string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DEBUG", false)
	v.SetDefault("OLLAMA_HOST", "http://localhost:11434")
	v.SetDefault("SUPABASE_JWT_AUDIENCE", "authenticated")
	v.SetDefault("LLM_PROVIDER", "openai")
	v.SetDefault("LLM_MODEL", "gpt-4o")
	v.SetDefault("EMBED_PROVIDER", "openai")
	v.SetDefault("EMBED_MODEL", "text-embedding-3-small")
	v.SetDefault("EMBED_DIMENSIONS", 1536)
	v.SetDefault("EMBED_CACHE_SIZE", 1024)
	v.SetDefault("MEMORY_TOKEN_LIMIT", 100000)
	v.SetDefault("AGENT_MAX_ITERATIONS", 8)
	v.SetDefault("TURN_TIMEOUT", "90s")
	v.SetDefault("WORKER_POOL_SIZE", 4)
	v.SetDefault("SESSION_IDLE_TTL", "12h")
	v.SetDefault("ORGANIZATIONS_PATH", "data/Organizations-All Organizations.csv")
	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("RATE_LIMIT_RPS", 2.0)
	v.SetDefault("RATE_LIMIT_BURST", 5)
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// Load reads env files (missing files are fine) and then the environment.
// With no files given DefaultEnvFiles are used.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		OpenAIAPIKey:    v.GetString("OPENAI_API_KEY"),
		AnthropicAPIKey: v.GetString("ANTHROPIC_API_KEY"),
		GeminiAPIKey:    firstNonEmpty(v.GetString("GOOGLE_API_KEY"), v.GetString("GEMINI_API_KEY")),
		OllamaHost:      v.GetString("OLLAMA_HOST"),

		SupabaseURL:        strings.TrimRight(v.GetString("VITE_PUBLIC_BASE_URL"), "/"),
		SupabaseAnonKey:    v.GetString("VITE_VITE_APP_SUPABASE_ANON_KEY"),
		SupabaseServiceKey: v.GetString("SUPABASE_SERVICE_KEY"),
		JWTSecret:          v.GetString("SUPABASE_JWT_SECRET"),
		JWKSURL:            v.GetString("SUPABASE_JWKS_URL"),
		JWTAudience:        v.GetString("SUPABASE_JWT_AUDIENCE"),
		JWTPrivateKey:      v.GetString("JWT_PRIVATE_KEY"),

		DatabaseURL: v.GetString("DATABASE_URL"),
		Debug:       v.GetBool("DEBUG"),

		LLMProvider: strings.ToLower(v.GetString("LLM_PROVIDER")),
		LLMModel:    v.GetString("LLM_MODEL"),

		EmbedProvider:   strings.ToLower(v.GetString("EMBED_PROVIDER")),
		EmbedModel:      v.GetString("EMBED_MODEL"),
		EmbedDimensions: v.GetInt("EMBED_DIMENSIONS"),
		EmbedCacheSize:  v.GetInt("EMBED_CACHE_SIZE"),

		MemoryTokenLimit:   v.GetInt("MEMORY_TOKEN_LIMIT"),
		AgentMaxIterations: v.GetInt("AGENT_MAX_ITERATIONS"),
		TurnTimeout:        v.GetDuration("TURN_TIMEOUT"),
		WorkerPoolSize:     v.GetInt("WORKER_POOL_SIZE"),
		SessionIdleTTL:     v.GetDuration("SESSION_IDLE_TTL"),
		OrganizationsPath:  v.GetString("ORGANIZATIONS_PATH"),

		MongoURI:        v.GetString("MONGO_URI"),
		MongoDatabase:   v.GetString("MONGO_DATABASE"),
		MongoCollection: v.GetString("MONGO_COLLECTION"),

		HTTPAddr:       v.GetString("HTTP_ADDR"),
		RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),

		TracingEnabled: v.GetBool("TRACING_ENABLED"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		LogFormat:      v.GetString("LOG_FORMAT"),
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// check rejects values that can never work; missing credentials are left to
// Validate because the CLI needs fewer of them than the server.
func (c *Config) check() error {
	var errs []error
	if c.EmbedDimensions < 0 {
		errs = append(errs, errors.New("EMBED_DIMENSIONS must not be negative"))
	}
	if c.MemoryTokenLimit <= 0 {
		errs = append(errs, errors.New("MEMORY_TOKEN_LIMIT must be positive"))
	}
	if c.AgentMaxIterations <= 0 {
		errs = append(errs, errors.New("AGENT_MAX_ITERATIONS must be positive"))
	}
	if c.WorkerPoolSize <= 0 {
		errs = append(errs, errors.New("WORKER_POOL_SIZE must be positive"))
	}
	if c.TurnTimeout < 0 {
		errs = append(errs, errors.New("TURN_TIMEOUT must not be negative"))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	return errors.Join(errs...)
}

// Validate checks that everything the HTTP service needs is present.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" && c.JWKSURL == "" && c.SupabaseURL == "" {
		errs = append(errs, errors.New("one of SUPABASE_JWT_SECRET, SUPABASE_JWKS_URL or VITE_PUBLIC_BASE_URL is required"))
	}
	if c.SupabaseURL != "" && c.SupabaseAnonKey == "" {
		errs = append(errs, errors.New("VITE_VITE_APP_SUPABASE_ANON_KEY is required with VITE_PUBLIC_BASE_URL"))
	}
	if key := c.PlannerAPIKey(); key == "" && c.LLMProvider != "dummy" {
		errs = append(errs, fmt.Errorf("an API key is required for LLM_PROVIDER=%s", c.LLMProvider))
	}
	if c.EmbedProvider == "openai" && c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required for EMBED_PROVIDER=openai"))
	}
	if c.EmbedProvider == "gemini" && c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GOOGLE_API_KEY or GEMINI_API_KEY is required for EMBED_PROVIDER=gemini"))
	}
	if (c.MongoURI != "") != (c.MongoDatabase != "" && c.MongoCollection != "") {
		errs = append(errs, errors.New("MONGO_URI, MONGO_DATABASE and MONGO_COLLECTION must be set together"))
	}
	return errors.Join(errs...)
}

// PlannerAPIKey returns the key of the configured LLM provider.
func (c *Config) PlannerAPIKey() string {
	switch c.LLMProvider {
	case "anthropic", "claude":
		return c.AnthropicAPIKey
	case "gemini", "google":
		return c.GeminiAPIKey
	case "dummy":
		return ""
	default:
		return c.OpenAIAPIKey
	}
}

// EmbedAPIKey returns the key of the configured embedding provider.
func (c *Config) EmbedAPIKey() string {
	switch c.EmbedProvider {
	case "gemini", "google":
		return c.GeminiAPIKey
	case "ollama":
		return ""
	default:
		return c.OpenAIAPIKey
	}
}

// ArchiveEnabled reports whether turns are archived to Mongo.
func (c *Config) ArchiveEnabled() bool { return c.MongoURI != "" }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
