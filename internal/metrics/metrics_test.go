package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCounters(t *testing.T) {
	IncCacheLookup(TierExact, OutcomeHit)
	IncAsk("general", OutcomeMiss)
	ObserveRetrieval(time.Now(), 2)
	AddInvalidated(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `chewie_cache_lookups_total{outcome="hit",tier="exact"}`)
	require.Contains(t, body, "chewie_cache_invalidated_total 3")
}
