package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

func newGeminiClient(ctx context.Context, cfg *providerConfig) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

type geminiGenerator struct {
	client *genai.Client
	model  string
}

func newGeminiGenerator(ctx context.Context, cfg *providerConfig, model string) (*geminiGenerator, error) {
	client, err := newGeminiClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &geminiGenerator{client: client, model: model}, nil
}

func (g *geminiGenerator) Name() string {
	return ProviderGemini
}

func (g *geminiGenerator) Model() string {
	return g.model
}

func (g *geminiGenerator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	resp, err := g.client.Models.GenerateContent(
		ctx,
		g.model,
		[]*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: req.Prompt}}}},
		config,
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	res := &GenerateResult{
		Content:  strings.TrimSpace(resp.Text()),
		Model:    g.model,
		Provider: ProviderGemini,
	}
	if resp.UsageMetadata != nil {
		res.Usage = Usage{
			PromptTokens:     int64(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int64(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return res, nil
}

type geminiEmbedder struct {
	client *genai.Client
	model  string
	dim    int
}

func newGeminiEmbedder(ctx context.Context, cfg *providerConfig, model string, dim int) (*geminiEmbedder, error) {
	client, err := newGeminiClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &geminiEmbedder{client: client, model: model, dim: dim}, nil
}

func (e *geminiEmbedder) ModelName() string {
	return e.model
}

func (e *geminiEmbedder) Dimension() int {
	return e.dim
}

func (e *geminiEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *geminiEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: t}}})
	}
	dim := int32(e.dim)
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, 0, len(texts))
	for _, item := range resp.Embeddings {
		out = append(out, item.Values)
	}
	if err := checkDimension(out, e.dim); err != nil {
		return nil, err
	}
	return out, nil
}
