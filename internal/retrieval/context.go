package retrieval

import (
	"strings"

	"github.com/xxxsen/chewie/internal/model"
)

const (
	DefaultMaxContextLength = 2000
	TruncationMarker        = "..."

	blockSeparator  = "\n\n"
	minTruncateRoom = 100
)

func formatBlock(c model.RetrievedChunk) string {
	return "[" + c.Title + "]\n" + c.Content + "\nSource: " + c.URL
}

// BuildContext joins chunk blocks in rank order while they fit in
// maxLength runes, separators included. The first block that does not fit
// is cut to the remaining room and marked with "..." when more than 100
// runes remain; nothing follows it.
func BuildContext(chunks []model.RetrievedChunk, maxLength int) string {
	if len(chunks) == 0 || maxLength <= 0 {
		return ""
	}
	var (
		sb   strings.Builder
		used int
	)
	for i, c := range chunks {
		block := []rune(formatBlock(c))
		sep := 0
		if i > 0 {
			sep = len(blockSeparator)
		}
		if used+sep+len(block) <= maxLength {
			if sep > 0 {
				sb.WriteString(blockSeparator)
			}
			sb.WriteString(string(block))
			used += sep + len(block)
			continue
		}
		remaining := maxLength - used - sep
		if remaining > minTruncateRoom {
			if sep > 0 {
				sb.WriteString(blockSeparator)
			}
			sb.WriteString(string(block[:remaining]))
			sb.WriteString(TruncationMarker)
		}
		break
	}
	return sb.String()
}
