package ai

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// hashEmbedder is a local feature hashing embedder. Word unigrams and
// bigrams are hashed into dim buckets with a sign bit and the result is
// L2 normalized. It needs no network and is stable across processes.
type hashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) IEmbedder {
	return &hashEmbedder{dim: dim}
}

func (e *hashEmbedder) ModelName() string {
	return fmt.Sprintf("hash-%d", e.dim)
}

func (e *hashEmbedder) Dimension() int {
	return e.dim
}

func (e *hashEmbedder) Encode(_ context.Context, text string) ([]float32, error) {
	return e.encode(text), nil
}

func (e *hashEmbedder) EncodeBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, e.encode(t))
	}
	return out, nil
}

func (e *hashEmbedder) encode(text string) []float32 {
	vec := make([]float64, e.dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, tok := range tokens {
		e.add(vec, tok)
		if i > 0 {
			e.add(vec, tokens[i-1]+" "+tok)
		}
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, e.dim)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (e *hashEmbedder) add(vec []float64, feature string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dim))
	if sum>>63 == 1 {
		vec[idx]--
		return
	}
	vec[idx]++
}
