package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"

	"github.com/xxxsen/chewie/internal/db"
	"github.com/xxxsen/chewie/internal/docsource"
	"github.com/xxxsen/chewie/internal/pooldata"
)

type Config struct {
	Port           int              `json:"port"`
	DefaultScope   string           `json:"default_scope"`
	MaxIngestBytes int64            `json:"max_ingest_bytes"`
	LogConfig      logger.LogConfig `json:"log_config"`
	Database       db.Config        `json:"database"`
	Redis          RedisConfig      `json:"redis"`
	Cache          CacheConfig      `json:"cache"`
	Retrieval      RetrievalConfig  `json:"retrieval"`
	Embedding      EmbeddingConfig  `json:"embedding"`
	LLM            LLMConfig        `json:"llm"`
	Security       SecurityConfig   `json:"security"`
	Jobs           JobsConfig       `json:"jobs"`
	DocSource      docsource.Config `json:"doc_source"`
	PoolData       pooldata.Config  `json:"pool_data"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type CacheConfig struct {
	// ExactBackend is "redis" or "memory".
	ExactBackend        string  `json:"exact_backend"`
	ExactTTLSeconds     int     `json:"exact_ttl_seconds"`
	MemorySize          int     `json:"memory_size"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	// MaxAgeSeconds < 0 disables the age check.
	MaxAgeSeconds    int  `json:"max_age_seconds"`
	CoalesceInflight bool `json:"coalesce_inflight"`
}

type RetrievalConfig struct {
	TopK                int     `json:"top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	MaxContextLength    int     `json:"max_context_length"`
	ChunkSize           int     `json:"chunk_size"`
	ChunkOverlap        int     `json:"chunk_overlap"`
	EmbedBatchSize      int     `json:"embed_batch_size"`
	EmbedRatePerSecond  float64 `json:"embed_rate_per_second"`
}

type EmbeddingConfig struct {
	Provider      string      `json:"provider"`
	Model         string      `json:"model"`
	Dimension     int         `json:"dimension"`
	LRUSize       int         `json:"lru_size"`
	LRUTTLSeconds int         `json:"lru_ttl_seconds"`
	DBCache       bool        `json:"db_cache"`
	Data          interface{} `json:"data"`
}

type GeneratorConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type LLMConfig struct {
	GeneratorConfig
	Temperature   float64           `json:"temperature"`
	Timeout       int               `json:"timeout"`
	FollowupCount int               `json:"followup_count"`
	Fallbacks     []GeneratorConfig `json:"fallbacks"`
}

type SecurityConfig struct {
	APIKeys            []string `json:"api_keys"`
	CORSOrigins        []string `json:"cors_origins"`
	RateLimitPerMinute int      `json:"rate_limit_per_minute"`
	RateLimitBurst     int      `json:"rate_limit_burst"`
}

type JobsConfig struct {
	CacheExpirySpec          string `json:"cache_expiry_spec"`
	CacheMaxAgeHours         int    `json:"cache_max_age_hours"`
	EmbeddingCacheCleanup    string `json:"embedding_cache_cleanup_spec"`
	EmbeddingCacheMaxAgeDays int    `json:"embedding_cache_max_age_days"`
	ReEmbedSpec              string `json:"reembed_spec"`
	ReEmbedBatch             int    `json:"reembed_batch"`
	RunTimeoutSeconds        int    `json:"run_timeout_seconds"`
}

// Load reads the JSON config at path. Variables from a .env file next to the
// process are loaded first so secrets can stay out of the JSON file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyEnv(&cfg)
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CHEWIE_DB_DSN")); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("CHEWIE_REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CHEWIE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := strings.TrimSpace(os.Getenv("CHEWIE_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHEWIE_API_KEYS")); v != "" {
		cfg.Security.APIKeys = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("CHEWIE_CORS_ORIGINS")); v != "" {
		cfg.Security.CORSOrigins = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("CHEWIE_POOL_DATA_PROVIDER")); v != "" {
		cfg.PoolData.Provider = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (cfg *Config) normalize() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.DefaultScope == "" {
		cfg.DefaultScope = "kamino"
	}
	cfg.DefaultScope = strings.ToLower(cfg.DefaultScope)
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}

	c := &cfg.Cache
	if c.ExactBackend == "" {
		c.ExactBackend = "redis"
		if cfg.Redis.Addr == "" {
			c.ExactBackend = "memory"
		}
	}
	switch c.ExactBackend {
	case "redis":
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for redis exact cache")
		}
	case "memory":
	default:
		return fmt.Errorf("cache.exact_backend must be redis or memory")
	}
	if c.ExactTTLSeconds <= 0 {
		c.ExactTTLSeconds = 24 * 3600
	}
	if c.MemorySize <= 0 {
		c.MemorySize = 10000
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.95
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("cache.similarity_threshold must be within [0, 1]")
	}
	if c.MaxAgeSeconds == 0 {
		c.MaxAgeSeconds = 30
	}

	r := &cfg.Retrieval
	if r.TopK <= 0 {
		r.TopK = 3
	}
	if r.SimilarityThreshold == 0 {
		r.SimilarityThreshold = 0.7
	}
	if r.SimilarityThreshold < 0 || r.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be within [0, 1]")
	}
	if r.MaxContextLength <= 0 {
		r.MaxContextLength = 2000
	}
	if r.ChunkSize <= 0 {
		r.ChunkSize = 1000
	}
	if r.ChunkOverlap <= 0 {
		r.ChunkOverlap = 200
	}

	e := &cfg.Embedding
	if e.Provider == "" {
		e.Provider = "openai"
	}
	if e.Model == "" {
		e.Model = "text-embedding-3-small"
	}
	if e.Dimension <= 0 {
		e.Dimension = 1536
	}
	if e.LRUSize <= 0 {
		e.LRUSize = 2048
	}
	if e.LRUTTLSeconds <= 0 {
		e.LRUTTLSeconds = 3600
	}

	l := &cfg.LLM
	if l.Provider == "" {
		l.Provider = "openai"
	}
	if l.Model == "" {
		l.Model = "gpt-4o-mini"
	}
	if l.Timeout <= 0 {
		l.Timeout = 30
	}
	if l.FollowupCount == 0 {
		l.FollowupCount = 3
	}

	s := &cfg.Security
	if s.RateLimitPerMinute == 0 {
		s.RateLimitPerMinute = 60
	}

	p := &cfg.PoolData
	p.Provider = strings.ToLower(strings.TrimSpace(p.Provider))
	switch p.Provider {
	case "":
		p.Provider = pooldata.SourceMock
	case pooldata.SourceMock, pooldata.SourceKamino:
	default:
		return fmt.Errorf("pool_data.provider must be mock or kamino")
	}

	j := &cfg.Jobs
	if j.CacheMaxAgeHours <= 0 {
		j.CacheMaxAgeHours = 24 * 7
	}
	if j.EmbeddingCacheMaxAgeDays <= 0 {
		j.EmbeddingCacheMaxAgeDays = 30
	}
	if j.ReEmbedBatch <= 0 {
		j.ReEmbedBatch = 100
	}
	if j.RunTimeoutSeconds <= 0 {
		j.RunTimeoutSeconds = 600
	}
	return nil
}
