package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMigrationsSubstitutesDimension(t *testing.T) {
	queries, err := loadMigrations(384)
	require.NoError(t, err)
	require.NotEmpty(t, queries)
	var tables int
	for _, q := range queries {
		require.NotContains(t, q.sql, dimPlaceholder)
		if strings.HasPrefix(q.sql, "CREATE TABLE") {
			tables++
		}
	}
	require.Equal(t, 3, tables)
	require.Contains(t, queries[1].sql, "vector(384)")
}

func TestBuildDSN(t *testing.T) {
	require.Equal(t, "postgres://x", BuildDSN(Config{DSN: "postgres://x"}))
	require.Equal(t,
		"host=localhost port=5432 user=u password=p dbname=chewie sslmode=disable",
		BuildDSN(Config{Host: "localhost", Port: 5432, User: "u", Password: "p", DBName: "chewie"}))
}
