package pooldata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chewie/internal/model"
)

const (
	defaultKaminoBaseURL = "https://api.kamino.finance"
	defaultKaminoTimeout = 30 * time.Second
	defaultMarketsTTL    = 5 * time.Minute
	marketsCacheKey      = "markets"
)

type KaminoConfig struct {
	BaseURL  string
	LendURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// apiFloat accepts both JSON numbers and numeric strings.
type apiFloat float64

func (f *apiFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	*f = apiFloat(v)
	return nil
}

type kaminoMarket struct {
	Address         string   `json:"address"`
	Symbol          string   `json:"symbol"`
	SupplyAPR       apiFloat `json:"supplyApr"`
	SupplyAPY       apiFloat `json:"supplyApy"`
	BorrowAPR       apiFloat `json:"borrowApr"`
	TotalSupply     apiFloat `json:"totalSupply"`
	UtilizationRate apiFloat `json:"utilizationRate"`
}

// KaminoSource reads lending markets from the Kamino public API. Unknown
// pools and API failures are answered by the fallback source.
type KaminoSource struct {
	baseURL  string
	lendURL  string
	client   *http.Client
	fallback Source
	markets  *expirable.LRU[string, []kaminoMarket]
	now      func() time.Time
}

func NewKaminoSource(cfg KaminoConfig, fallback Source) *KaminoSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultKaminoBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultKaminoTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultMarketsTTL
	}
	return &KaminoSource{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		lendURL:  cfg.LendURL,
		client:   &http.Client{Timeout: cfg.Timeout},
		fallback: fallback,
		markets:  expirable.NewLRU[string, []kaminoMarket](1, nil, cfg.CacheTTL),
		now:      time.Now,
	}
}

func (s *KaminoSource) Name() string {
	return SourceKamino
}

func (s *KaminoSource) PoolAPR(ctx context.Context, poolID string) (*model.PoolSnapshot, error) {
	id := strings.TrimSpace(poolID)
	if id == "" {
		return nil, nil
	}
	markets, err := s.listMarkets(ctx)
	if err != nil {
		logutil.GetLogger(ctx).Warn("fetch kamino markets failed, using fallback", zap.String("pool_id", id), zap.Error(err))
		return s.fromFallback(ctx, id)
	}
	if m := matchMarket(markets, id); m != nil {
		return &model.PoolSnapshot{
			PoolID:      id,
			PoolName:    firstNonEmpty(m.Symbol, "Unknown"),
			Address:     m.Address,
			APR:         float64(m.SupplyAPR),
			APY:         float64(m.SupplyAPY),
			BorrowAPR:   float64(m.BorrowAPR),
			TVL:         float64(m.TotalSupply),
			Utilization: float64(m.UtilizationRate),
			URL:         lendURL(s.lendURL, id),
			UpdatedAt:   s.now(),
		}, nil
	}
	return s.fromFallback(ctx, id)
}

func (s *KaminoSource) fromFallback(ctx context.Context, id string) (*model.PoolSnapshot, error) {
	if s.fallback == nil {
		return nil, nil
	}
	return s.fallback.PoolAPR(ctx, id)
}

func (s *KaminoSource) listMarkets(ctx context.Context) ([]kaminoMarket, error) {
	if cached, ok := s.markets.Get(marketsCacheKey); ok {
		return cached, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/kamino-market", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("kamino request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out []kaminoMarket
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode kamino markets: %w", err)
	}
	s.markets.Add(marketsCacheKey, out)
	return out, nil
}

// matchMarket finds a market by address, exact symbol, or symbol substring.
func matchMarket(markets []kaminoMarket, poolID string) *kaminoMarket {
	lower := strings.ToLower(poolID)
	for i := range markets {
		m := &markets[i]
		symbol := strings.ToLower(m.Symbol)
		if m.Address == poolID || symbol == lower || (symbol != "" && strings.Contains(symbol, lower)) {
			return m
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
