package retrieval

import (
	"strconv"
	"strings"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunk splits content into windows of at most chunkSize runes that overlap
// by overlap runes. A window that does not reach the end of content is cut
// after its last sentence terminator or newline when that lies past the
// window midpoint.
func Chunk(content string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	runes := []rune(content)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= chunkSize {
		if trimmed := strings.TrimSpace(content); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else if bp := lastBreak(runes[start:end]); bp > chunkSize/2 {
			end = start + bp + 1
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func lastBreak(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		switch window[i] {
		case '.', '!', '?', '\n':
			return i
		}
	}
	return -1
}

// PartTitle names chunk i (zero based) of n.
func PartTitle(title string, i, n int) string {
	if n <= 1 {
		return title
	}
	return title + " (Part " + strconv.Itoa(i+1) + "/" + strconv.Itoa(n) + ")"
}
