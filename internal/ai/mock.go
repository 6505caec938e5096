package ai

import (
	"context"
	"strings"
)

const mockModel = "mock-llm"

const (
	mockEarningsAnswer = "Kamino Finance offers competitive lending rates on Solana. " +
		"The APR varies based on market conditions and pool utilization. " +
		"You can earn passive income by depositing your assets into lending pools. " +
		"Please note that rates are variable and subject to change."
	mockRiskAnswer = "Lending on Kamino involves several risks including smart contract risk, " +
		"market volatility, and liquidation risk. Kamino has been audited by reputable " +
		"security firms. Always do your own research and only invest what you can afford to lose."
	mockHowToAnswer = "To use Kamino Finance: 1) Connect your Solana wallet (Phantom, Solflare, etc.), " +
		"2) Select the asset you want to deposit, 3) Choose the lending pool, " +
		"4) Approve the transaction. Your deposits will start earning interest immediately."
	mockGeneralAnswer = "Kamino Finance is a leading DeFi protocol on Solana offering automated " +
		"liquidity management and lending services. It provides users with optimized " +
		"yield strategies and efficient capital deployment across various DeFi protocols."
)

type mockGenerator struct{}

// NewMockGenerator returns a canned generator used when no provider key is
// configured.
func NewMockGenerator() IGenerator {
	return mockGenerator{}
}

func (mockGenerator) Name() string {
	return ProviderMock
}

func (mockGenerator) Model() string {
	return mockModel
}

func (mockGenerator) Generate(_ context.Context, req GenerateRequest) (*GenerateResult, error) {
	question := "question"
	for _, line := range strings.Split(req.Prompt, "\n") {
		if idx := strings.Index(strings.ToLower(line), "question:"); idx >= 0 {
			question = strings.TrimSpace(line[idx+len("question:"):])
			break
		}
	}
	q := strings.ToLower(question)
	var content string
	switch {
	case strings.Contains(q, "earn") || strings.Contains(q, "apr") || strings.Contains(q, "yield"):
		content = mockEarningsAnswer
	case strings.Contains(q, "risk"):
		content = mockRiskAnswer
	case strings.Contains(q, "how") && (strings.Contains(q, "deposit") || strings.Contains(q, "use")):
		content = mockHowToAnswer
	default:
		content = mockGeneralAnswer
	}
	promptTokens := int64(len(strings.Fields(req.Prompt)))
	completionTokens := int64(len(strings.Fields(content)))
	return &GenerateResult{
		Content: content,
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		Model:    mockModel,
		Provider: ProviderMock,
	}, nil
}
