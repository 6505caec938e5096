package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func buildCacheKey(modelName, text string) (string, string, string) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(hash[:])
	return "embed:" + modelName + ":" + contentHash, contentHash, modelName
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}

// encodeMissing fills the holes of out by encoding the texts at the missing
// indexes in a single batch call.
func encodeMissing(out [][]float32, texts []string, missing []int, encode func([]string) ([][]float32, error)) ([][]float32, error) {
	if len(missing) == 0 {
		return nil, nil
	}
	batch := make([]string, 0, len(missing))
	for _, idx := range missing {
		batch = append(batch, texts[idx])
	}
	res, err := encode(batch)
	if err != nil {
		return nil, err
	}
	for i, idx := range missing {
		out[idx] = res[i]
	}
	return res, nil
}
