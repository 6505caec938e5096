package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/chewie/internal/model"
)

const (
	defaultAnswerTemperature   = 0.7
	followupTemperature        = 0.8
	answerMaxTokens            = 1500
	reasoningAnswerMaxTokens   = 4000
	followupMaxTokens          = 200
	emptyAnswerFallbackMessage = "I apologize, but I couldn't generate a response. Please try rephrasing your question."
)

type ManagerConfig struct {
	Timeout     int
	Temperature float64
}

type Manager struct {
	generator IGenerator
	cfg       ManagerConfig
}

func NewManager(generator IGenerator, cfg ManagerConfig) *Manager {
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultAnswerTemperature
	}
	return &Manager{generator: generator, cfg: cfg}
}

type AnswerRequest struct {
	Query     string
	Context   string
	QueryType model.QueryType
	Scope     string
}

// Answer generates the reply for a user question with the retrieved context.
func (m *Manager) Answer(ctx context.Context, req AnswerRequest) (*GenerateResult, error) {
	if m.generator == nil {
		return nil, fmt.Errorf("generator not configured")
	}
	maxTokens := answerMaxTokens
	if isReasoningModel(m.generator.Model()) {
		maxTokens = reasoningAnswerMaxTokens
	}
	res, err := m.generate(ctx, GenerateRequest{
		Prompt:       BuildUserPrompt(req.Query, req.Context, req.Scope),
		SystemPrompt: BuildSystemPrompt(req.QueryType, req.Scope),
		Temperature:  m.cfg.Temperature,
		MaxTokens:    maxTokens,
	})
	if err != nil {
		return nil, err
	}
	if res.Content == "" {
		res.Content = emptyAnswerFallbackMessage
	}
	return res, nil
}

// Followups asks for up to count follow-up questions, one per line.
func (m *Manager) Followups(ctx context.Context, query string, answer string, count int) ([]string, error) {
	if m.generator == nil {
		return nil, fmt.Errorf("generator not configured")
	}
	if count <= 0 {
		return nil, nil
	}
	res, err := m.generate(ctx, GenerateRequest{
		Prompt:      buildFollowupPrompt(query, answer, count),
		Temperature: followupTemperature,
		MaxTokens:   followupMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return parseFollowups(res.Content, count), nil
}

func (m *Manager) ProviderName() string {
	if m.generator == nil {
		return ""
	}
	return m.generator.Name()
}

func (m *Manager) ModelName() string {
	if m.generator == nil {
		return ""
	}
	return m.generator.Model()
}

func (m *Manager) generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	res, err := m.generator.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	res.Content = strings.TrimSpace(res.Content)
	return res, nil
}

func parseFollowups(output string, count int) []string {
	out := make([]string, 0, count)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimLeft(line, "0123456789.-) ")
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) >= count {
			break
		}
	}
	return out
}
