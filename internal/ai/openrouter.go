package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type openrouterGenerator struct {
	apiKey      string
	baseURL     string
	httpReferer string
	xTitle      string
	model       string
	client      *http.Client
}

type openrouterRequest struct {
	Model       string          `json:"model"`
	Messages    []openrouterMsg `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

type openrouterMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openrouterResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

func newOpenRouterGenerator(cfg *providerConfig, model string) *openrouterGenerator {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	return &openrouterGenerator{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		httpReferer: strings.TrimSpace(cfg.HTTPReferer),
		xTitle:      strings.TrimSpace(cfg.XTitle),
		model:       model,
		client:      http.DefaultClient,
	}
}

func (p *openrouterGenerator) Name() string {
	return ProviderOpenRouter
}

func (p *openrouterGenerator) Model() string {
	return p.model
}

func (p *openrouterGenerator) Generate(ctx context.Context, r GenerateRequest) (*GenerateResult, error) {
	endpoint := strings.TrimRight(p.baseURL, "/") + "/chat/completions"
	msgs := make([]openrouterMsg, 0, 2)
	if r.SystemPrompt != "" {
		msgs = append(msgs, openrouterMsg{Role: "system", Content: r.SystemPrompt})
	}
	msgs = append(msgs, openrouterMsg{Role: "user", Content: r.Prompt})
	data, err := json.Marshal(openrouterRequest{
		Model:       p.model,
		Messages:    msgs,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if p.httpReferer != "" {
		req.Header.Set("HTTP-Referer", p.httpReferer)
	}
	if p.xTitle != "" {
		req.Header.Set("X-Title", p.xTitle)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openrouter request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out openrouterResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("openrouter response has no choices")
	}
	model := out.Model
	if model == "" {
		model = p.model
	}
	return &GenerateResult{
		Content:  strings.TrimSpace(out.Choices[0].Message.Content),
		Usage:    out.Usage,
		Model:    model,
		Provider: ProviderOpenRouter,
	}, nil
}
