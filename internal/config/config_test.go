package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"port":8080,"database":{"host":"localhost"}}`))
	require.NoError(t, err)
	require.Equal(t, 5432, cfg.Database.Port)
	require.Equal(t, "kamino", cfg.DefaultScope)
	require.Equal(t, "memory", cfg.Cache.ExactBackend)
	require.Equal(t, 0.95, cfg.Cache.SimilarityThreshold)
	require.Equal(t, 30, cfg.Cache.MaxAgeSeconds)
	require.Equal(t, 3, cfg.Retrieval.TopK)
	require.Equal(t, 0.7, cfg.Retrieval.SimilarityThreshold)
	require.Equal(t, 2000, cfg.Retrieval.MaxContextLength)
	require.Equal(t, 1000, cfg.Retrieval.ChunkSize)
	require.Equal(t, 200, cfg.Retrieval.ChunkOverlap)
	require.Equal(t, 1536, cfg.Embedding.Dimension)
	require.Equal(t, "openai", cfg.LLM.Provider)
	require.Equal(t, 3, cfg.LLM.FollowupCount)
	require.Equal(t, 60, cfg.Security.RateLimitPerMinute)
	require.Equal(t, "info", cfg.LogConfig.Level)
	require.Equal(t, "mock", cfg.PoolData.Provider)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CHEWIE_DB_DSN", "postgres://u:p@db/chewie")
	t.Setenv("CHEWIE_REDIS_ADDR", "redis:6379")
	t.Setenv("CHEWIE_API_KEYS", "a, b,,c")
	t.Setenv("CHEWIE_PORT", "9090")
	t.Setenv("CHEWIE_POOL_DATA_PROVIDER", "Kamino")
	cfg, err := Load(writeConfig(t, `{"port":8080,"llm":{"provider":"gemini","model":"gemini-2.0-flash","fallbacks":[{"provider":"mock"}]}}`))
	require.NoError(t, err)
	require.Equal(t, "postgres://u:p@db/chewie", cfg.Database.DSN)
	require.Equal(t, "redis", cfg.Cache.ExactBackend)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, []string{"a", "b", "c"}, cfg.Security.APIKeys)
	require.Equal(t, "gemini", cfg.LLM.Provider)
	require.Len(t, cfg.LLM.Fallbacks, 1)
	require.Equal(t, "kamino", cfg.PoolData.Provider)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing port", `{"database":{"host":"h"}}`},
		{"missing database", `{"port":1}`},
		{"redis without addr", `{"port":1,"database":{"host":"h"},"cache":{"exact_backend":"redis"}}`},
		{"unknown backend", `{"port":1,"database":{"host":"h"},"cache":{"exact_backend":"disk"}}`},
		{"bad threshold", `{"port":1,"database":{"host":"h"},"cache":{"similarity_threshold":1.5}}`},
		{"unknown pool data provider", `{"port":1,"database":{"host":"h"},"pool_data":{"provider":"defillama"}}`},
		{"bad json", `{"port":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}
