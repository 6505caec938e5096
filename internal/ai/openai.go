package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

type openAIGenerator struct {
	client openai.Client
	model  string
}

func newOpenAIClient(cfg *providerConfig) openai.Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return openai.NewClient(opts...)
}

func newOpenAIGenerator(cfg *providerConfig, model string) *openAIGenerator {
	return &openAIGenerator{client: newOpenAIClient(cfg), model: model}
}

func (g *openAIGenerator) Name() string {
	return ProviderOpenAI
}

func (g *openAIGenerator) Model() string {
	return g.model
}

// isReasoningOnly reports models that reject system messages and temperature.
func isReasoningOnly(model string) bool {
	return strings.Contains(model, "o1-") || strings.Contains(model, "o3-")
}

func noTemperature(model string) bool {
	return isReasoningOnly(model) || strings.Contains(model, "gpt-5") || strings.Contains(model, "search-preview")
}

func (g *openAIGenerator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	prompt := req.Prompt
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		if isReasoningOnly(g.model) {
			prompt = req.SystemPrompt + "\n\n" + prompt
		} else {
			messages = append(messages, openai.SystemMessage(req.SystemPrompt))
		}
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if !noTemperature(g.model) {
		params.Temperature = openai.Float(req.Temperature)
	}
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}
	return &GenerateResult{
		Content: strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Model:    g.model,
		Provider: ProviderOpenAI,
	}, nil
}

type openAIEmbedder struct {
	client openai.Client
	model  string
	dim    int
}

func newOpenAIEmbedder(cfg *providerConfig, model string, dim int) *openAIEmbedder {
	return &openAIEmbedder{client: newOpenAIClient(cfg), model: model, dim: dim}
}

func (e *openAIEmbedder) ModelName() string {
	return e.model
}

func (e *openAIEmbedder) Dimension() int {
	return e.dim
}

func (e *openAIEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *openAIEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: openai.Int(int64(e.dim)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || int(item.Index) >= len(out) {
			return nil, fmt.Errorf("openai embedding index out of range: %d", item.Index)
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		out[item.Index] = vec
	}
	if err := checkDimension(out, e.dim); err != nil {
		return nil, err
	}
	return out, nil
}
