package retrieval

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestChunkShortContent(t *testing.T) {
	require.Equal(t, []string{"short text"}, Chunk(" short text ", 1000, 200))
	require.Equal(t, []string{"Kamino lends USDC."}, Chunk("\n  Kamino lends USDC.  \n", 1000, 200))
	require.Nil(t, Chunk("", 1000, 200))
	require.Nil(t, Chunk(" \n\t ", 1000, 200))
}

func TestChunkWithoutBreakPoints(t *testing.T) {
	content := strings.Repeat("a", 2500)
	chunks := Chunk(content, 1000, 200)
	require.Len(t, chunks, 3)
	require.Len(t, chunks[0], 1000)
	require.Len(t, chunks[1], 1000)
	require.Len(t, chunks[2], 900)
}

func TestChunkBreaksAfterSentencePastMidpoint(t *testing.T) {
	content := strings.Repeat("x", 700) + "." + strings.Repeat("y", 600)
	chunks := Chunk(content, 1000, 200)
	require.Len(t, chunks, 2)
	require.Equal(t, strings.Repeat("x", 700)+".", chunks[0])
	require.Equal(t, strings.Repeat("x", 199)+"."+strings.Repeat("y", 600), chunks[1])
}

func TestChunkIgnoresEarlyBreakPoint(t *testing.T) {
	content := strings.Repeat("x", 300) + "." + strings.Repeat("y", 1000)
	chunks := Chunk(content, 1000, 200)
	require.Len(t, chunks, 2)
	require.Len(t, chunks[0], 1000)
	require.True(t, strings.HasSuffix(content, chunks[1]))
}

func TestChunkAlwaysTerminates(t *testing.T) {
	content := strings.Repeat("ab. ", 50)
	chunks := Chunk(content, 10, 50)
	require.NotEmpty(t, chunks)
	require.Less(t, len(chunks), len(content))
	for _, c := range chunks {
		require.NotEmpty(t, c)
		require.LessOrEqual(t, utf8.RuneCountInString(c), 10)
	}
}

func TestChunkCountsRunes(t *testing.T) {
	content := strings.Repeat("é", 1500)
	chunks := Chunk(content, 1000, 200)
	require.Len(t, chunks, 2)
	require.Equal(t, 1000, utf8.RuneCountInString(chunks[0]))
	require.Equal(t, 700, utf8.RuneCountInString(chunks[1]))
}

func TestPartTitle(t *testing.T) {
	require.Equal(t, "Guide", PartTitle("Guide", 0, 1))
	require.Equal(t, "Guide (Part 2/3)", PartTitle("Guide", 1, 3))
}
