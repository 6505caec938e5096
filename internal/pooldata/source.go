package pooldata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/chewie/internal/model"
)

const (
	SourceMock   = "mock"
	SourceKamino = "kamino"

	defaultLendURL = "https://kamino.finance/lend/"
)

// Source resolves a pool id to its current rates. A nil snapshot with a nil
// error means the pool is unknown.
type Source interface {
	Name() string
	PoolAPR(ctx context.Context, poolID string) (*model.PoolSnapshot, error)
}

type Config struct {
	Provider        string `json:"provider"`
	BaseURL         string `json:"base_url"`
	LendURL         string `json:"lend_url"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds"`
}

func New(cfg Config) (Source, error) {
	mock := NewMockSource(cfg.LendURL)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", SourceMock:
		return mock, nil
	case SourceKamino:
		return NewKaminoSource(KaminoConfig{
			BaseURL:  cfg.BaseURL,
			LendURL:  cfg.LendURL,
			Timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
			CacheTTL: time.Duration(cfg.CacheTTLSeconds) * time.Second,
		}, mock), nil
	default:
		return nil, fmt.Errorf("unsupported pool data provider: %s", cfg.Provider)
	}
}

func lendURL(base, poolID string) string {
	if base == "" {
		base = defaultLendURL
	}
	return strings.TrimRight(base, "/") + "/" + poolID
}
