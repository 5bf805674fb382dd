package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrConfig marks a configuration error. These are fatal: main exits non-zero.
var ErrConfig = errors.New("configuration error")

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	SourceYahoo        = "yahoo"
	SourceAlphaVantage = "alphavantage"

	EmbedderOpenAI = "openai"
	EmbedderHash   = "hash"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	StoreDriver string
	PGURL       string
	SQLitePath  string

	PriceSource string
	AVKey       string

	Embedder Embedder

	SymbolsPath  string
	ProfilesPath string
	FieldMapPath string

	BatchSize    int
	HorizonDays  int
	TopK         int
	HistoryLimit int
	Workers      int
	CallTimeout  time.Duration
	MaxRetries   int

	Tables Tables

	Port        string
	AdminAPIKey string
	SyncCron    string

	Redis         Redis
	QueryCacheTTL time.Duration

	LogLevel  string
	LogFormat string
}

// Embedder configures the embedding function. Model is the pipeline-wide model identity.
type Embedder struct {
	Type           string
	BaseURL        string
	APIKey         string
	Model          string
	Dimension      int
	BatchSize      int
	IncludeProfile bool
}

// Tables names the three logical store tables
type Tables struct {
	Companies  string
	Prices     string
	Embeddings string
}

// Redis holds the optional query-vector cache connection
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Load reads configuration from environment variables, after loading an optional .env file
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		StoreDriver:  strings.ToLower(getString("STORE_DRIVER", DriverPostgres)),
		PGURL:        os.Getenv("PG_URL"),
		SQLitePath:   getString("SQLITE_PATH", "marketsync.db"),
		PriceSource:  strings.ToLower(getString("PRICE_SOURCE", SourceYahoo)),
		AVKey:        os.Getenv("AV_KEY"),
		SymbolsPath:  os.Getenv("SYMBOLS_PATH"),
		ProfilesPath: os.Getenv("PROFILES_PATH"),
		FieldMapPath: os.Getenv("FIELD_MAP_PATH"),
		Tables: Tables{
			Companies:  getString("TABLE_COMPANIES", "company_metadata"),
			Prices:     getString("TABLE_PRICES", "stock_data"),
			Embeddings: getString("TABLE_EMBEDDINGS", "stock_embeddings"),
		},
		Port:        getString("PORT", "8080"),
		AdminAPIKey: os.Getenv("ADMIN_API_KEY"),
		SyncCron:    os.Getenv("SYNC_CRON"),
		Redis: Redis{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		LogLevel:  getString("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getString("LOG_FORMAT", "text")),
	}

	var err error
	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"BATCH_SIZE", 100, &cfg.BatchSize},
		{"HORIZON_DAYS", 5 * 365, &cfg.HorizonDays},
		{"TOP_K", 5, &cfg.TopK},
		{"HISTORY_LIMIT", 90, &cfg.HistoryLimit},
		{"WORKERS", 4, &cfg.Workers},
		{"MAX_RETRIES", 3, &cfg.MaxRetries},
		{"EMBED_BATCH_SIZE", 50, &cfg.Embedder.BatchSize},
		{"EMBED_DIMENSION", 256, &cfg.Embedder.Dimension},
		{"REDIS_DB", 0, &cfg.Redis.DB},
	}
	for _, i := range ints {
		if *i.dst, err = getInt(i.key, i.fallback); err != nil {
			return nil, err
		}
	}

	if cfg.CallTimeout, err = getDuration("CALL_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.QueryCacheTTL, err = getDuration("QUERY_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Embedder.IncludeProfile, err = getBool("EMBED_INCLUDE_PROFILE", true); err != nil {
		return nil, err
	}

	cfg.Embedder.Type = strings.ToLower(getString("EMBEDDER", EmbedderOpenAI))
	cfg.Embedder.BaseURL = getString("EMBED_BASE_URL", "https://api.openai.com/v1")
	cfg.Embedder.APIKey = os.Getenv("EMBED_API_KEY")
	defaultModel := "text-embedding-3-small"
	if cfg.Embedder.Type == EmbedderHash {
		defaultModel = fmt.Sprintf("hash-%d", cfg.Embedder.Dimension)
	}
	cfg.Embedder.Model = getString("EMBED_MODEL", defaultModel)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.PGURL == "" {
			return fmt.Errorf("%w: PG_URL environment variable is required", ErrConfig)
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: SQLITE_PATH must not be empty", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown STORE_DRIVER %q", ErrConfig, c.StoreDriver)
	}

	switch c.PriceSource {
	case SourceYahoo:
	case SourceAlphaVantage:
		if c.AVKey == "" {
			return fmt.Errorf("%w: AV_KEY environment variable is required for PRICE_SOURCE=alphavantage", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown PRICE_SOURCE %q", ErrConfig, c.PriceSource)
	}

	switch c.Embedder.Type {
	case EmbedderOpenAI:
		if c.Embedder.APIKey == "" {
			return fmt.Errorf("%w: EMBED_API_KEY environment variable is required for EMBEDDER=openai", ErrConfig)
		}
	case EmbedderHash:
		if c.Embedder.Dimension <= 0 {
			return fmt.Errorf("%w: EMBED_DIMENSION must be positive", ErrConfig)
		}
		// the label is the only thing that keeps vectors of different lengths apart
		if want := fmt.Sprintf("hash-%d", c.Embedder.Dimension); c.Embedder.Model != want {
			return fmt.Errorf("%w: EMBED_MODEL %q does not match EMBED_DIMENSION=%d, expected %q or unset",
				ErrConfig, c.Embedder.Model, c.Embedder.Dimension, want)
		}
	default:
		return fmt.Errorf("%w: unknown EMBEDDER %q", ErrConfig, c.Embedder.Type)
	}

	positive := map[string]int{
		"BATCH_SIZE":       c.BatchSize,
		"HORIZON_DAYS":     c.HorizonDays,
		"TOP_K":            c.TopK,
		"WORKERS":          c.Workers,
		"EMBED_BATCH_SIZE": c.Embedder.BatchSize,
	}
	for key, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrConfig, key, v)
		}
	}
	if c.HistoryLimit < 0 || c.MaxRetries < 0 {
		return fmt.Errorf("%w: HISTORY_LIMIT and MAX_RETRIES must not be negative", ErrConfig)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("%w: CALL_TIMEOUT must be positive", ErrConfig)
	}
	if c.Tables.Companies == "" || c.Tables.Prices == "" || c.Tables.Embeddings == "" {
		return fmt.Errorf("%w: table names must not be empty", ErrConfig)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown LOG_FORMAT %q", ErrConfig, c.LogFormat)
	}
	return nil
}

// RequireReferenceFiles is checked by the sync path only; serving queries needs no reference data.
func (c *Config) RequireReferenceFiles() error {
	if c.SymbolsPath == "" {
		return fmt.Errorf("%w: SYMBOLS_PATH environment variable is required to sync", ErrConfig)
	}
	return nil
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: convert %s value %q to int: %v", ErrConfig, key, value, err)
	}
	return parsed, nil
}

func getBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%w: convert %s value %q to bool: %v", ErrConfig, key, value, err)
	}
	return parsed, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: convert %s value %q to duration: %v", ErrConfig, key, value, err)
	}
	return parsed, nil
}
