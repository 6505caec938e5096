package pooldata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockSourceKnownPools(t *testing.T) {
	now := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	src := NewMockSource("")
	src.now = func() time.Time { return now }

	snap, err := src.PoolAPR(context.Background(), "Allez-USDC")
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Equal(t, "allez-usdc", snap.PoolID)
	require.Equal(t, "Allez USDC", snap.PoolName)
	require.InDelta(t, 0.124, snap.APR, 1e-9)
	require.Equal(t, "https://kamino.finance/lend/allez-usdc", snap.URL)
	require.Equal(t, now.Add(-2*time.Hour), snap.UpdatedAt)

	snap, err = src.PoolAPR(context.Background(), "unknown-pool")
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestNewSelectsProvider(t *testing.T) {
	src, err := New(Config{})
	require.NoError(t, err)
	require.Equal(t, SourceMock, src.Name())

	src, err = New(Config{Provider: "Kamino", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	require.Equal(t, SourceKamino, src.Name())

	_, err = New(Config{Provider: "aave"})
	require.Error(t, err)
}

func newMarketServer(t *testing.T, calls *int32, body string, status int) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/kamino-market", r.URL.Path)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestKaminoSourceMatchesMarket(t *testing.T) {
	var calls int32
	srv := newMarketServer(t, &calls, `[
		{"address":"addr-1","symbol":"MAIN-USDC","supplyApr":"0.05","supplyApy":0.051,"borrowApr":0.08,"totalSupply":"1000","utilizationRate":0.6},
		{"address":"addr-2","symbol":"JITOSOL","supplyApr":0.02}
	]`, http.StatusOK)
	src := NewKaminoSource(KaminoConfig{BaseURL: srv.URL, LendURL: "https://app/lend"}, NewMockSource(""))

	snap, err := src.PoolAPR(context.Background(), "main-usdc")
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Equal(t, "MAIN-USDC", snap.PoolName)
	require.Equal(t, "addr-1", snap.Address)
	require.InDelta(t, 0.05, snap.APR, 1e-9)
	require.InDelta(t, 1000, snap.TVL, 1e-9)
	require.Equal(t, "https://app/lend/main-usdc", snap.URL)

	snap, err = src.PoolAPR(context.Background(), "addr-2")
	require.NoError(t, err)
	require.Equal(t, "JITOSOL", snap.PoolName)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestKaminoSourceFallsBack(t *testing.T) {
	var calls int32
	srv := newMarketServer(t, &calls, `[{"address":"addr-1","symbol":"PYUSD"}]`, http.StatusOK)
	src := NewKaminoSource(KaminoConfig{BaseURL: srv.URL}, NewMockSource(""))
	snap, err := src.PoolAPR(context.Background(), "jito-sol")
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Equal(t, "JitoSOL", snap.PoolName)

	var failed int32
	broken := newMarketServer(t, &failed, `oops`, http.StatusBadGateway)
	src = NewKaminoSource(KaminoConfig{BaseURL: broken.URL}, NewMockSource(""))
	snap, err = src.PoolAPR(context.Background(), "usdt-main")
	require.NoError(t, err)
	require.Equal(t, "USDT Main", snap.PoolName)

	src = NewKaminoSource(KaminoConfig{BaseURL: broken.URL}, nil)
	snap, err = src.PoolAPR(context.Background(), "usdt-main")
	require.NoError(t, err)
	require.Nil(t, snap)
}
