package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xxxsen/chewie/internal/ai"
	"github.com/xxxsen/chewie/internal/classifier"
	"github.com/xxxsen/chewie/internal/metrics"
	"github.com/xxxsen/chewie/internal/model"
	appErr "github.com/xxxsen/chewie/internal/pkg/errors"
	"github.com/xxxsen/chewie/internal/semcache"
)

const (
	DefaultScope         = "kamino"
	defaultFollowupCount = 3
	maxSources           = 2
	storeTimeout         = 10 * time.Second
)

// protocols that trigger an immediate refusal when named in a question
// asked on another protocol's page.
var foreignProtocols = []string{
	"aave", "compound", "uniswap", "curve", "convex", "yearn", "maker", "lido",
	"hyperliquid", "dydx", "gmx", "synthetix", "balancer", "sushiswap",
	"pancakeswap", "trader joe", "benqi",
}

type ExactCache interface {
	Get(ctx context.Context, query, scope string) (json.RawMessage, bool)
	SetAsync(ctx context.Context, query, scope string, payload json.RawMessage)
}

type SemanticCache interface {
	Lookup(ctx context.Context, query, scope string, floor float64, maxAge *time.Duration) (*model.CacheHit, error)
	Store(ctx context.Context, p semcache.StoreParams) (*model.CacheEntry, error)
}

type Retriever interface {
	RetrieveContext(ctx context.Context, query, scope string, topK int, floor float64, maxLength int) (string, []model.RetrievedChunk, error)
}

type Answerer interface {
	Answer(ctx context.Context, req ai.AnswerRequest) (*ai.GenerateResult, error)
	Followups(ctx context.Context, query string, answer string, count int) ([]string, error)
}

// PoolData resolves current pool rates for earnings questions. A nil
// snapshot means the pool is unknown.
type PoolData interface {
	PoolAPR(ctx context.Context, poolID string) (*model.PoolSnapshot, error)
}

type AskConfig struct {
	DefaultScope     string
	SimilarityFloor  float64
	MaxAge           *time.Duration
	TopK             int
	RetrievalFloor   float64
	MaxContextLength int
	FollowupCount    int
	CoalesceInflight bool
}

type AskService struct {
	exact    ExactCache
	semantic SemanticCache
	index    Retriever
	answerer Answerer
	pools    PoolData
	cfg      AskConfig
	group    singleflight.Group
}

func NewAskService(exact ExactCache, semantic SemanticCache, index Retriever, answerer Answerer, pools PoolData, cfg AskConfig) *AskService {
	if cfg.DefaultScope == "" {
		cfg.DefaultScope = DefaultScope
	}
	if cfg.SimilarityFloor <= 0 {
		cfg.SimilarityFloor = semcache.DefaultSimilarityFloor
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.RetrievalFloor <= 0 {
		cfg.RetrievalFloor = 0.7
	}
	if cfg.MaxContextLength <= 0 {
		cfg.MaxContextLength = 2000
	}
	if cfg.FollowupCount < 0 {
		cfg.FollowupCount = 0
	} else if cfg.FollowupCount == 0 {
		cfg.FollowupCount = defaultFollowupCount
	}
	return &AskService{exact: exact, semantic: semantic, index: index, answerer: answerer, pools: pools, cfg: cfg}
}

func (s *AskService) resolveScope(req *model.AskRequest) string {
	scope := strings.TrimSpace(req.Scope)
	if scope == "" && req.Context != nil {
		scope = strings.TrimSpace(req.Context.Dapp)
	}
	if scope == "" {
		scope = s.cfg.DefaultScope
	}
	return strings.ToLower(scope)
}

func validateAsk(req *model.AskRequest) error {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return fmt.Errorf("query is required: %w", appErr.ErrInvalid)
	}
	if utf8.RuneCountInString(req.Query) > model.MaxQueryLength {
		return fmt.Errorf("query longer than %d characters: %w", model.MaxQueryLength, appErr.ErrInvalid)
	}
	if req.Amount != nil && *req.Amount <= 0 {
		return fmt.Errorf("amount must be positive: %w", appErr.ErrInvalid)
	}
	return nil
}

// mentionedProtocol returns the first foreign protocol named in query.
func mentionedProtocol(query, scope string) string {
	lower := strings.ToLower(query)
	for _, p := range foreignProtocols {
		if p != scope && strings.Contains(lower, p) {
			return p
		}
	}
	return ""
}

// Ask answers a question from the caches when possible and otherwise from
// retrieved documentation plus generation.
func (s *AskService) Ask(ctx context.Context, req *model.AskRequest) (*model.AskResponse, error) {
	if err := validateAsk(req); err != nil {
		return nil, err
	}
	scope := s.resolveScope(req)
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger := logutil.GetLogger(ctx).With(zap.String("scope", scope), zap.String("session_id", sessionID))

	if p := mentionedProtocol(req.Query, scope); p != "" {
		logger.Info("foreign protocol question refused", zap.String("protocol", p))
		metrics.IncAsk(string(model.QueryTypeGeneral), metrics.OutcomeRefusal)
		confidence := 1.0
		return &model.AskResponse{
			Answer:     ai.RefusalAnswer(scope),
			QueryType:  model.QueryTypeGeneral,
			Confidence: &confidence,
			SessionID:  sessionID,
			Scope:      scope,
		}, nil
	}

	var (
		resp *model.AskResponse
		err  error
	)
	if s.cfg.CoalesceInflight {
		key := scope + "\x00" + strings.ToLower(strings.TrimSpace(req.Query))
		// followers share the leader's call, so it must outlive the leader's request
		shared := context.WithoutCancel(ctx)
		v, doErr, isShared := s.group.Do(key, func() (interface{}, error) {
			return s.answer(shared, req, scope)
		})
		if doErr != nil {
			return nil, doErr
		}
		if isShared {
			logger.Debug("in-flight answer shared")
		}
		cp := *v.(*model.AskResponse)
		resp = &cp
	} else {
		resp, err = s.answer(ctx, req, scope)
		if err != nil {
			return nil, err
		}
	}
	resp.SessionID = sessionID
	return resp, nil
}

func (s *AskService) answer(ctx context.Context, req *model.AskRequest, scope string) (*model.AskResponse, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("scope", scope))
	cls := classifier.Classify(req.Query, req.PoolID)

	if resp, ok := s.fromCache(ctx, req.Query, scope); ok {
		metrics.IncAsk(string(cls.Type), metrics.OutcomeHit)
		return resp, nil
	}

	poolID := firstNonEmpty(cls.PoolID, req.PoolID)
	amount := cls.Amount
	if amount == nil {
		amount = req.Amount
	}
	currency := firstNonEmpty(cls.Currency, req.Currency)

	start := time.Now()
	contextText, chunks, err := s.index.RetrieveContext(ctx, req.Query, scope, s.cfg.TopK, s.cfg.RetrievalFloor, s.cfg.MaxContextLength)
	if err != nil {
		logger.Warn("retrieval failed, answering without context", zap.Error(err))
		contextText, chunks = "", nil
	}
	metrics.ObserveRetrieval(start, len(chunks))

	var pool *model.PoolSnapshot
	if cls.RequiresGroundingData && poolID != "" && s.pools != nil {
		pool, err = s.pools.PoolAPR(ctx, poolID)
		if err != nil {
			logger.Warn("fetch pool data failed", zap.String("pool_id", poolID), zap.Error(err))
			pool = nil
		}
	}
	if pool != nil {
		contextText = joinContext(poolContext(pool), contextText)
	}

	start = time.Now()
	gen, err := s.answerer.Answer(ctx, ai.AnswerRequest{
		Query:     req.Query,
		Context:   contextText,
		QueryType: cls.Type,
		Scope:     scope,
	})
	if err != nil {
		metrics.IncAsk(string(cls.Type), metrics.OutcomeError)
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	metrics.ObserveGeneration(gen.Provider, start)

	resp := &model.AskResponse{
		Answer:    gen.Content,
		QueryType: cls.Type,
		Pool:      pool,
		Sources:   topSources(chunks, maxSources),
		Scope:     scope,
	}
	if pool != nil {
		resp.Sources = append([]model.Source{{Title: pool.PoolName + " Pool", URL: pool.URL}}, resp.Sources...)
	}
	if cls.Type == model.QueryTypeEarnings && (poolID != "" || amount != nil) {
		resp.Assumptions = &model.QueryAssumptions{Pool: poolID, Amount: amount, Currency: currency}
	}
	if !ai.IsRefusal(gen.Content) && s.cfg.FollowupCount > 0 {
		followups, err := s.answerer.Followups(ctx, req.Query, gen.Content, s.cfg.FollowupCount)
		if err != nil {
			logger.Warn("generate followups failed", zap.Error(err))
		} else if len(followups) > 0 {
			resp.Followups = followups
		}
	}
	confidence := blendConfidence(cls.Confidence, chunks)
	rounded := math.Round(confidence*100) / 100
	resp.Confidence = &rounded

	s.remember(ctx, req, scope, resp, semcache.StoreParams{
		Query:      req.Query,
		Scope:      scope,
		QueryType:  cls.Type,
		PoolID:     poolID,
		Amount:     amount,
		Currency:   currency,
		ClientID:   req.ClientID,
		Provider:   gen.Provider,
		Model:      gen.Model,
		Confidence: &confidence,
	})
	metrics.IncAsk(string(cls.Type), metrics.OutcomeMiss)
	return resp, nil
}

// fromCache consults the exact tier and then the semantic tier. Failures of
// either tier count as a miss.
func (s *AskService) fromCache(ctx context.Context, query, scope string) (*model.AskResponse, bool) {
	logger := logutil.GetLogger(ctx)
	if payload, ok := s.exact.Get(ctx, query, scope); ok {
		resp := &model.AskResponse{}
		if err := json.Unmarshal(payload, resp); err == nil {
			metrics.IncCacheLookup(metrics.TierExact, metrics.OutcomeHit)
			resp.Cached = true
			resp.CacheSimilarity = 1
			return resp, true
		}
		logger.Warn("drop undecodable exact cache payload")
	}
	metrics.IncCacheLookup(metrics.TierExact, metrics.OutcomeMiss)

	hit, err := s.semantic.Lookup(ctx, query, scope, s.cfg.SimilarityFloor, s.cfg.MaxAge)
	if err != nil {
		metrics.IncCacheLookup(metrics.TierSemantic, metrics.OutcomeError)
		logger.Warn("semantic cache lookup failed", zap.Error(err))
		return nil, false
	}
	if hit == nil {
		metrics.IncCacheLookup(metrics.TierSemantic, metrics.OutcomeMiss)
		return nil, false
	}
	resp := &model.AskResponse{}
	if err := json.Unmarshal(hit.Payload, resp); err != nil {
		metrics.IncCacheLookup(metrics.TierSemantic, metrics.OutcomeError)
		logger.Warn("decode semantic cache payload failed", zap.String("id", hit.Entry.ID), zap.Error(err))
		return nil, false
	}
	metrics.IncCacheLookup(metrics.TierSemantic, metrics.OutcomeHit)
	metrics.ObserveSemanticHit(hit.Similarity)
	logger.Debug("semantic cache hit", zap.String("id", hit.Entry.ID), zap.Float64("similarity", hit.Similarity))
	return resp, true
}

// remember writes the fresh answer to both tiers. Writes run on a context
// detached from the request so they finish when the client goes away.
func (s *AskService) remember(ctx context.Context, req *model.AskRequest, scope string, resp *model.AskResponse, params semcache.StoreParams) {
	stored := *resp
	stored.SessionID = ""
	payload, err := json.Marshal(&stored)
	if err != nil {
		logutil.GetLogger(ctx).Error("encode answer for cache failed", zap.Error(err))
		return
	}
	params.Payload = payload

	detached := context.WithoutCancel(ctx)
	sctx, cancel := context.WithTimeout(detached, storeTimeout)
	defer cancel()
	if _, err := s.semantic.Store(sctx, params); err != nil {
		logutil.GetLogger(ctx).Warn("store semantic cache entry failed", zap.Error(err))
	}
	s.exact.SetAsync(detached, req.Query, scope, payload)
}

func blendConfidence(base float64, chunks []model.RetrievedChunk) float64 {
	if len(chunks) == 0 {
		return base
	}
	var sum float64
	for _, c := range chunks {
		sum += c.Similarity
	}
	blended := (base + sum/float64(len(chunks))) / 2
	if blended > 1 {
		return 1
	}
	return blended
}

// poolContext renders pool rates as a context block the model can cite.
func poolContext(p *model.PoolSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s Pool]\n", p.PoolName)
	fmt.Fprintf(&b, "Supply APR: %.2f%%\n", p.APR*100)
	if p.APY > 0 {
		fmt.Fprintf(&b, "Supply APY: %.2f%%\n", p.APY*100)
	}
	if p.TVL > 0 {
		fmt.Fprintf(&b, "TVL: %.0f\n", p.TVL)
	}
	fmt.Fprintf(&b, "Updated: %s", p.UpdatedAt.UTC().Format(time.RFC3339))
	if p.URL != "" {
		fmt.Fprintf(&b, "\nSource: %s", p.URL)
	}
	return b.String()
}

func joinContext(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}

func topSources(chunks []model.RetrievedChunk, n int) []model.Source {
	if len(chunks) == 0 {
		return nil
	}
	out := make([]model.Source, 0, n)
	for _, c := range chunks {
		if len(out) >= n {
			break
		}
		out = append(out, model.Source{Title: c.Title, URL: c.URL})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
