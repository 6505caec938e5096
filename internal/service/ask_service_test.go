package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/chewie/internal/ai"
	"github.com/xxxsen/chewie/internal/model"
	appErr "github.com/xxxsen/chewie/internal/pkg/errors"
	"github.com/xxxsen/chewie/internal/semcache"
)

type fakeExact struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
}

func newFakeExact() *fakeExact {
	return &fakeExact{data: map[string]json.RawMessage{}}
}

func (f *fakeExact) key(query, scope string) string {
	return scope + "|" + strings.ToLower(strings.TrimSpace(query))
}

func (f *fakeExact) Get(_ context.Context, query, scope string) (json.RawMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[f.key(query, scope)]
	return v, ok
}

func (f *fakeExact) SetAsync(_ context.Context, query, scope string, payload json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[f.key(query, scope)] = payload
}

type fakeSemantic struct {
	mu      sync.Mutex
	hit     *model.CacheHit
	err     error
	stored  []semcache.StoreParams
	lookups int
}

func (f *fakeSemantic) Lookup(_ context.Context, _, _ string, _ float64, _ *time.Duration) (*model.CacheHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.hit, f.err
}

func (f *fakeSemantic) Store(_ context.Context, p semcache.StoreParams) (*model.CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, p)
	return &model.CacheEntry{ID: "e1"}, nil
}

type fakeRetriever struct {
	chunks []model.RetrievedChunk
	err    error
}

func (f *fakeRetriever) RetrieveContext(_ context.Context, _, _ string, _ int, _ float64, _ int) (string, []model.RetrievedChunk, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	parts := make([]string, 0, len(f.chunks))
	for _, c := range f.chunks {
		parts = append(parts, c.Content)
	}
	return strings.Join(parts, "\n\n"), f.chunks, nil
}

type fakeAnswerer struct {
	answer    string
	err       error
	calls     int32
	followups []string
	delay     time.Duration
	lastReq   ai.AnswerRequest
}

func (f *fakeAnswerer) Answer(ctx context.Context, req ai.AnswerRequest) (*ai.GenerateResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	f.lastReq = req
	return &ai.GenerateResult{Content: f.answer, Provider: "mock", Model: "mock-llm"}, nil
}

func (f *fakeAnswerer) Followups(_ context.Context, _, _ string, count int) ([]string, error) {
	if len(f.followups) > count {
		return f.followups[:count], nil
	}
	return f.followups, nil
}

type fakePools struct {
	mu    sync.Mutex
	snaps map[string]*model.PoolSnapshot
	err   error
	asked []string
}

func (f *fakePools) PoolAPR(_ context.Context, poolID string) (*model.PoolSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, poolID)
	if f.err != nil {
		return nil, f.err
	}
	return f.snaps[poolID], nil
}

func chunk(title, url string, sim float64) model.RetrievedChunk {
	return model.RetrievedChunk{
		DocumentChunk: model.DocumentChunk{Title: title, URL: url, Content: title + " body"},
		Similarity:    sim,
	}
}

type askFixture struct {
	exact    *fakeExact
	semantic *fakeSemantic
	index    *fakeRetriever
	answerer *fakeAnswerer
	pools    *fakePools
	svc      *AskService
}

func newAskFixture(cfg AskConfig) *askFixture {
	f := &askFixture{
		exact:    newFakeExact(),
		semantic: &fakeSemantic{},
		index: &fakeRetriever{chunks: []model.RetrievedChunk{
			chunk("Lending", "https://docs.example/lending", 0.9),
			chunk("Vaults", "https://docs.example/vaults", 0.8),
			chunk("Risks", "https://docs.example/risks", 0.7),
		}},
		answerer: &fakeAnswerer{
			answer:    "Lending lets you earn interest.",
			followups: []string{"What is the APY?", "How do I withdraw?", "Is it safe?", "extra"},
		},
		pools: &fakePools{snaps: map[string]*model.PoolSnapshot{}},
	}
	f.svc = NewAskService(f.exact, f.semantic, f.index, f.answerer, f.pools, cfg)
	return f
}

func TestAskValidation(t *testing.T) {
	f := newAskFixture(AskConfig{})
	ctx := context.Background()
	neg := -5.0
	cases := []*model.AskRequest{
		{Query: "   "},
		{Query: strings.Repeat("a", model.MaxQueryLength+1)},
		{Query: "earn?", Amount: &neg},
	}
	for _, req := range cases {
		_, err := f.svc.Ask(ctx, req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, appErr.ErrInvalid))
	}
	assert.Equal(t, int32(0), f.answerer.calls)
}

func TestAskFreshAnswer(t *testing.T) {
	f := newAskFixture(AskConfig{})
	resp, err := f.svc.Ask(context.Background(), &model.AskRequest{Query: "How much would I earn with $1,000 in Allez USDC?"})
	require.NoError(t, err)

	assert.Equal(t, "Lending lets you earn interest.", resp.Answer)
	assert.Equal(t, model.QueryTypeEarnings, resp.QueryType)
	assert.Equal(t, DefaultScope, resp.Scope)
	assert.NotEmpty(t, resp.SessionID)
	assert.False(t, resp.Cached)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "Lending", resp.Sources[0].Title)
	assert.Equal(t, []string{"What is the APY?", "How do I withdraw?", "Is it safe?"}, resp.Followups)

	require.NotNil(t, resp.Assumptions)
	assert.Equal(t, "allez-usdc", resp.Assumptions.Pool)
	require.NotNil(t, resp.Assumptions.Amount)
	assert.Equal(t, 1000.0, *resp.Assumptions.Amount)
	assert.Equal(t, "USDC", resp.Assumptions.Currency)

	// (0.9 + mean(0.9, 0.8, 0.7)) / 2
	require.NotNil(t, resp.Confidence)
	assert.InDelta(t, 0.85, *resp.Confidence, 1e-9)

	require.Len(t, f.semantic.stored, 1)
	stored := f.semantic.stored[0]
	assert.Equal(t, DefaultScope, stored.Scope)
	assert.Equal(t, "mock", stored.Provider)
	var payload model.AskResponse
	require.NoError(t, json.Unmarshal(stored.Payload, &payload))
	assert.Empty(t, payload.SessionID)

	_, ok := f.exact.Get(context.Background(), "How much would I earn with $1,000 in Allez USDC?", DefaultScope)
	assert.True(t, ok)
}

func TestAskExactHit(t *testing.T) {
	f := newAskFixture(AskConfig{})
	ctx := context.Background()
	first, err := f.svc.Ask(ctx, &model.AskRequest{Query: "What is Kamino lending?"})
	require.NoError(t, err)

	second, err := f.svc.Ask(ctx, &model.AskRequest{Query: "  what is kamino lending?  ", SessionID: "s-2"})
	require.NoError(t, err)
	assert.Equal(t, first.Answer, second.Answer)
	assert.True(t, second.Cached)
	assert.Equal(t, 1.0, second.CacheSimilarity)
	assert.Equal(t, "s-2", second.SessionID)
	assert.Equal(t, int32(1), f.answerer.calls)
	assert.Equal(t, 1, f.semantic.lookups)
}

func TestAskSemanticHit(t *testing.T) {
	f := newAskFixture(AskConfig{})
	f.semantic.hit = &model.CacheHit{
		Entry:      &model.CacheEntry{ID: "e9"},
		Similarity: 0.97,
		Payload:    json.RawMessage(`{"answer":"cached answer","session_id":"","scope":"kamino","_cached":true,"_cache_similarity":0.97}`),
	}
	resp, err := f.svc.Ask(context.Background(), &model.AskRequest{Query: "Tell me about lending"})
	require.NoError(t, err)
	assert.Equal(t, "cached answer", resp.Answer)
	assert.True(t, resp.Cached)
	assert.InDelta(t, 0.97, resp.CacheSimilarity, 1e-9)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, int32(0), f.answerer.calls)
	assert.Empty(t, f.semantic.stored)
}

func TestAskDegradesOnCacheAndRetrievalErrors(t *testing.T) {
	f := newAskFixture(AskConfig{})
	f.semantic.err = errors.New("db down")
	f.index.err = errors.New("db down")
	resp, err := f.svc.Ask(context.Background(), &model.AskRequest{Query: "What is Kamino?"})
	require.NoError(t, err)
	assert.Equal(t, "Lending lets you earn interest.", resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.Empty(t, f.answerer.lastReq.Context)
	require.NotNil(t, resp.Confidence)
	assert.InDelta(t, 0.5, *resp.Confidence, 1e-9)
}

func TestAskGenerationFailure(t *testing.T) {
	f := newAskFixture(AskConfig{})
	f.answerer.err = ai.ErrUnavailable
	_, err := f.svc.Ask(context.Background(), &model.AskRequest{Query: "What is Kamino?"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErr.ErrUnavailable))
	assert.Empty(t, f.semantic.stored)
}

func TestAskForeignProtocolRefusal(t *testing.T) {
	f := newAskFixture(AskConfig{})
	resp, err := f.svc.Ask(context.Background(), &model.AskRequest{Query: "What is the APY on Aave?"})
	require.NoError(t, err)
	assert.Equal(t, ai.RefusalAnswer(DefaultScope), resp.Answer)
	require.NotNil(t, resp.Confidence)
	assert.Equal(t, 1.0, *resp.Confidence)
	assert.Equal(t, int32(0), f.answerer.calls)
	assert.Equal(t, 0, f.semantic.lookups)
	assert.Empty(t, f.semantic.stored)
}

func TestAskOwnProtocolNotRefused(t *testing.T) {
	f := newAskFixture(AskConfig{})
	resp, err := f.svc.Ask(context.Background(), &model.AskRequest{Query: "How do aave vaults work?", Scope: "aave"})
	require.NoError(t, err)
	assert.Equal(t, "aave", resp.Scope)
	assert.Equal(t, int32(1), f.answerer.calls)
}

func TestAskRefusalSkipsFollowups(t *testing.T) {
	f := newAskFixture(AskConfig{})
	f.answerer.answer = ai.RefusalAnswer(DefaultScope)
	resp, err := f.svc.Ask(context.Background(), &model.AskRequest{Query: "What's the weather?"})
	require.NoError(t, err)
	assert.Empty(t, resp.Followups)
}

func TestAskScopeResolution(t *testing.T) {
	f := newAskFixture(AskConfig{DefaultScope: "drift"})
	ctx := context.Background()

	resp, err := f.svc.Ask(ctx, &model.AskRequest{Query: "q1"})
	require.NoError(t, err)
	assert.Equal(t, "drift", resp.Scope)

	resp, err = f.svc.Ask(ctx, &model.AskRequest{Query: "q2", Context: &model.QueryContext{Dapp: "Jupiter"}})
	require.NoError(t, err)
	assert.Equal(t, "jupiter", resp.Scope)

	resp, err = f.svc.Ask(ctx, &model.AskRequest{Query: "q3", Scope: "kamino", Context: &model.QueryContext{Dapp: "jupiter"}})
	require.NoError(t, err)
	assert.Equal(t, "kamino", resp.Scope)
}

func TestAskCoalescesInflight(t *testing.T) {
	f := newAskFixture(AskConfig{CoalesceInflight: true})
	f.answerer.delay = 100 * time.Millisecond
	ctx := context.Background()

	var wg sync.WaitGroup
	sessions := make([]string, 4)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.svc.Ask(ctx, &model.AskRequest{Query: "What is Kamino lending?"})
			if assert.NoError(t, err) {
				sessions[i] = resp.SessionID
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&f.answerer.calls), int32(2))
	seen := map[string]bool{}
	for _, s := range sessions {
		assert.NotEmpty(t, s)
		assert.False(t, seen[s])
		seen[s] = true
	}
}

func TestAskCoalescedFollowerSurvivesLeaderCancel(t *testing.T) {
	f := newAskFixture(AskConfig{CoalesceInflight: true})
	f.answerer.delay = 300 * time.Millisecond

	leaderCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	leaderErr := make(chan error, 1)
	go func() {
		_, err := f.svc.Ask(leaderCtx, &model.AskRequest{Query: "What is Kamino lending?"})
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&f.answerer.calls) == 1 }, time.Second, 5*time.Millisecond)

	followerErr := make(chan error, 1)
	var follower *model.AskResponse
	go func() {
		resp, err := f.svc.Ask(context.Background(), &model.AskRequest{Query: "what is kamino lending?"})
		follower = resp
		followerErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	require.NoError(t, <-followerErr)
	require.NoError(t, <-leaderErr)
	assert.Equal(t, "Lending lets you earn interest.", follower.Answer)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.answerer.calls))
}

func TestAskGroundsEarningsWithPoolData(t *testing.T) {
	f := newAskFixture(AskConfig{})
	f.pools.snaps["allez-usdc"] = &model.PoolSnapshot{
		PoolID:    "allez-usdc",
		PoolName:  "Allez USDC",
		APR:       0.124,
		APY:       0.132,
		TVL:       5420000,
		URL:       "https://kamino.finance/lend/allez-usdc",
		UpdatedAt: time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC),
	}
	resp, err := f.svc.Ask(context.Background(), &model.AskRequest{Query: "How much would I earn with $1,000 in Allez USDC?"})
	require.NoError(t, err)

	assert.Equal(t, []string{"allez-usdc"}, f.pools.asked)
	require.NotNil(t, resp.Pool)
	assert.InDelta(t, 0.124, resp.Pool.APR, 1e-9)
	require.Len(t, resp.Sources, 3)
	assert.Equal(t, model.Source{Title: "Allez USDC Pool", URL: "https://kamino.finance/lend/allez-usdc"}, resp.Sources[0])
	assert.Equal(t, "Lending", resp.Sources[1].Title)

	ctxText := f.answerer.lastReq.Context
	assert.True(t, strings.HasPrefix(ctxText, "[Allez USDC Pool]\nSupply APR: 12.40%\nSupply APY: 13.20%\nTVL: 5420000\n"))
	assert.Contains(t, ctxText, "Source: https://kamino.finance/lend/allez-usdc\n\nLending body")
}

func TestAskPoolDataOnlyForEarnings(t *testing.T) {
	f := newAskFixture(AskConfig{})
	_, err := f.svc.Ask(context.Background(), &model.AskRequest{Query: "What is Kamino lending?", PoolID: "allez-usdc"})
	require.NoError(t, err)
	assert.Empty(t, f.pools.asked)

	_, err = f.svc.Ask(context.Background(), &model.AskRequest{Query: "How much can I earn on Kamino?"})
	require.NoError(t, err)
	assert.Empty(t, f.pools.asked)
}

func TestAskPoolDataErrorDegrades(t *testing.T) {
	f := newAskFixture(AskConfig{})
	f.pools.err = errors.New("api down")
	resp, err := f.svc.Ask(context.Background(), &model.AskRequest{Query: "How much would I earn with $1,000 in Allez USDC?"})
	require.NoError(t, err)
	assert.Nil(t, resp.Pool)
	assert.Len(t, resp.Sources, 2)
	assert.Equal(t, []string{"allez-usdc"}, f.pools.asked)
}

func TestBlendConfidence(t *testing.T) {
	assert.Equal(t, 0.6, blendConfidence(0.6, nil))
	assert.Equal(t, 1.0, blendConfidence(1.0, []model.RetrievedChunk{chunk("a", "", 1.2)}))
	assert.InDelta(t, 0.75, blendConfidence(0.7, []model.RetrievedChunk{chunk("a", "", 0.8)}), 1e-9)
}
