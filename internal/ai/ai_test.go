package ai

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/chewie/internal/model"
)

func TestNewGeneratorFallsBackToMock(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	gen, err := NewGenerator(context.Background(), "openai", "gpt-4o-mini", map[string]interface{}{})
	require.NoError(t, err)
	require.Equal(t, ProviderMock, gen.Name())
	require.Equal(t, "mock-llm", gen.Model())
}

func TestNewGeneratorUnknownProvider(t *testing.T) {
	_, err := NewGenerator(context.Background(), "anthropic", "x", nil)
	require.Error(t, err)
}

func TestNewEmbedderRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewEmbedder(context.Background(), "openai", "text-embedding-3-small", 384, map[string]interface{}{})
	require.ErrorIs(t, err, ErrUnavailable)

	emb, err := NewEmbedder(context.Background(), "hash", "", 64, nil)
	require.NoError(t, err)
	require.Equal(t, 64, emb.Dimension())
}

func TestMockGeneratorPicksAnswerByQuestion(t *testing.T) {
	gen := NewMockGenerator()
	tests := []struct {
		prompt string
		want   string
	}{
		{prompt: "User question: what yield can I get", want: mockEarningsAnswer},
		{prompt: "Context...\n\nUser question: is it a risk?", want: mockRiskAnswer},
		{prompt: "User question: how do I deposit", want: mockHowToAnswer},
		{prompt: "hello", want: mockGeneralAnswer},
	}
	for _, tt := range tests {
		res, err := gen.Generate(context.Background(), GenerateRequest{Prompt: tt.prompt})
		require.NoError(t, err)
		require.Equal(t, tt.want, res.Content)
		require.Equal(t, res.Usage.PromptTokens+res.Usage.CompletionTokens, res.Usage.TotalTokens)
	}
}

func TestHashEmbedderDeterministicAndNormalized(t *testing.T) {
	emb := NewHashEmbedder(128)
	a, err := emb.Encode(context.Background(), "What is the APY of Allez USDC?")
	require.NoError(t, err)
	b, err := emb.Encode(context.Background(), "what is the apy of allez usdc")
	require.NoError(t, err)
	require.Len(t, a, 128)
	require.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	require.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	zero, err := emb.Encode(context.Background(), "  ")
	require.NoError(t, err)
	for _, v := range zero {
		require.Zero(t, v)
	}

	batch, err := emb.EncodeBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, batch, 2)
}

func TestOpenRouterGenerate(t *testing.T) {
	var got openrouterRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.Equal(t, "chewie", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  hi  "}}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	}))
	defer srv.Close()

	gen := newOpenRouterGenerator(&providerConfig{APIKey: "k", BaseURL: srv.URL, XTitle: "chewie"}, "m")
	res, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "p", SystemPrompt: "s", Temperature: 0.5, MaxTokens: 10})
	require.NoError(t, err)
	require.Equal(t, "hi", res.Content)
	require.Equal(t, "m", res.Model)
	require.Equal(t, int64(4), res.Usage.TotalTokens)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Equal(t, 10, got.MaxTokens)
}

func TestOpenRouterGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	gen := newOpenRouterGenerator(&providerConfig{APIKey: "k", BaseURL: srv.URL}, "m")
	_, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	require.Error(t, err)
}

func TestParseFollowups(t *testing.T) {
	out := parseFollowups("1. What is APY?\n\n2) How do I withdraw?\n- Is it audited?\n4. extra", 3)
	require.Equal(t, []string{"What is APY?", "How do I withdraw?", "Is it audited?"}, out)
	require.Empty(t, parseFollowups("", 3))
}

func TestManagerAnswerUsesReasoningBudget(t *testing.T) {
	rec := &recordingGenerator{model: "gpt-5-mini"}
	m := NewManager(rec, ManagerConfig{})
	res, err := m.Answer(context.Background(), AnswerRequest{Query: "q", Context: "ctx", QueryType: model.QueryTypeRisk, Scope: "kamino"})
	require.NoError(t, err)
	require.Equal(t, emptyAnswerFallbackMessage, res.Content)
	require.Equal(t, reasoningAnswerMaxTokens, rec.last.MaxTokens)
	require.Contains(t, rec.last.SystemPrompt, "For risk queries")
	require.Contains(t, rec.last.Prompt, "Context from kamino documentation")

	rec.model = "gpt-4o"
	_, err = m.Answer(context.Background(), AnswerRequest{Query: "q", Scope: "kamino"})
	require.NoError(t, err)
	require.Equal(t, answerMaxTokens, rec.last.MaxTokens)
	require.Equal(t, "User question: q", rec.last.Prompt)
}

func TestRefusalHelpers(t *testing.T) {
	require.True(t, IsRefusal(RefusalAnswer("kamino")))
	require.Contains(t, RefusalAnswer("kamino"), "Kamino Finance")
	require.Contains(t, RefusalAnswer("foo"), "foo DeFi")
	require.False(t, IsRefusal("Kamino pays a variable APY."))
	require.Equal(t, "foo DeFi", ServiceName("foo"))
}

type recordingGenerator struct {
	model string
	last  GenerateRequest
}

func (g *recordingGenerator) Generate(_ context.Context, req GenerateRequest) (*GenerateResult, error) {
	g.last = req
	return &GenerateResult{Content: "  ", Model: g.model, Provider: "rec"}, nil
}

func (g *recordingGenerator) Name() string {
	return "rec"
}

func (g *recordingGenerator) Model() string {
	return g.model
}
