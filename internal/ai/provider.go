package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/chewie/internal/pkg/errors"
)

const (
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderMock       = "mock"
	ProviderHash       = "hash"
)

var ErrUnavailable = appErr.ErrUnavailable

type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type GenerateRequest struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

type GenerateResult struct {
	Content  string
	Usage    Usage
	Model    string
	Provider string
}

type IGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
	Name() string
	Model() string
}

// IEmbedder turns text into vectors of a fixed dimension. Implementations
// must be deterministic for a fixed model.
type IEmbedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	Dimension() int
}

type providerConfig struct {
	APIKey      string `json:"api_key"`
	BaseURL     string `json:"base_url"`
	HTTPReferer string `json:"http_referer"`
	XTitle      string `json:"x_title"`
}

var apiKeyEnv = map[string]string{
	ProviderOpenAI:     "OPENAI_API_KEY",
	ProviderGemini:     "GEMINI_API_KEY",
	ProviderOpenRouter: "OPENROUTER_API_KEY",
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func loadProviderConfig(provider string, args interface{}) (*providerConfig, error) {
	cfg := &providerConfig{}
	if args != nil {
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		if env, ok := apiKeyEnv[provider]; ok {
			cfg.APIKey = strings.TrimSpace(os.Getenv(env))
		}
	}
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	return cfg, nil
}

// NewGenerator builds the generator for provider. A remote provider without
// an api key degrades to the mock generator.
func NewGenerator(ctx context.Context, provider string, model string, args interface{}) (IGenerator, error) {
	name := normalizeProvider(provider)
	if name == ProviderMock {
		return NewMockGenerator(), nil
	}
	cfg, err := loadProviderConfig(name, args)
	if err != nil {
		return nil, err
	}
	if _, known := apiKeyEnv[name]; !known {
		return nil, fmt.Errorf("unsupported generator provider: %s", provider)
	}
	if cfg.APIKey == "" {
		logutil.GetLogger(ctx).Warn("api key not configured, using mock generator", zap.String("provider", name))
		return NewMockGenerator(), nil
	}
	switch name {
	case ProviderOpenAI:
		return newOpenAIGenerator(cfg, model), nil
	case ProviderGemini:
		return newGeminiGenerator(ctx, cfg, model)
	case ProviderOpenRouter:
		return newOpenRouterGenerator(cfg, model), nil
	}
	return nil, fmt.Errorf("unsupported generator provider: %s", provider)
}

func NewEmbedder(ctx context.Context, provider string, model string, dim int, args interface{}) (IEmbedder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	name := normalizeProvider(provider)
	switch name {
	case ProviderHash:
		return NewHashEmbedder(dim), nil
	case ProviderOpenAI, ProviderGemini:
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
	cfg, err := loadProviderConfig(name, args)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s embedder: %w", name, ErrUnavailable)
	}
	if name == ProviderOpenAI {
		return newOpenAIEmbedder(cfg, model, dim), nil
	}
	return newGeminiEmbedder(ctx, cfg, model, dim)
}

func checkDimension(vecs [][]float32, dim int) error {
	for i, v := range vecs {
		if len(v) != dim {
			return fmt.Errorf("embedding %d has dimension %d, want %d: %w", i, len(v), dim, appErr.ErrEmbedding)
		}
	}
	return nil
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
