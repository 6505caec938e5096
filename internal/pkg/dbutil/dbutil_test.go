package dbutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFinalizeRewritesMysqlLimit(t *testing.T) {
	query, args := Finalize("SELECT id FROM query_cache WHERE (scope=?) ORDER BY use_count desc LIMIT ?,?", []interface{}{"kamino", 0, 5})
	require.Equal(t, "SELECT id FROM query_cache WHERE (scope=$1) ORDER BY use_count desc LIMIT $2 OFFSET $3", query)
	require.Equal(t, []interface{}{"kamino", 5, 0}, args)
}

func TestFinalizeWithoutLimit(t *testing.T) {
	query, args := Finalize("DELETE FROM query_cache WHERE (pool_id=? AND scope=?)", []interface{}{"allez-usdc", "kamino"})
	require.Equal(t, "DELETE FROM query_cache WHERE (pool_id=$1 AND scope=$2)", query)
	require.Len(t, args, 2)
}

func TestNullableHelpers(t *testing.T) {
	require.Nil(t, NullableString(""))
	require.Equal(t, "x", NullableString("x"))
	require.Nil(t, NullableFloat(nil))
	v := 1.5
	require.Equal(t, 1.5, NullableFloat(&v))
	require.Equal(t, "", StringOf(sql.NullString{}))
	require.Nil(t, FloatOf(sql.NullFloat64{}))
	require.Equal(t, 2.0, *FloatOf(sql.NullFloat64{Float64: 2, Valid: true}))
}
