package docsource

import (
	"path"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// Extracted is the plain text view of a markdown document.
type Extracted struct {
	Title   string
	Content string
}

// ExtractMarkdown flattens markdown into plain text paragraphs. The first
// heading becomes the title, falling back to the file name.
func ExtractMarkdown(key string, src []byte) Extracted {
	md := goldmark.New()
	reader := text.NewReader(src)
	doc := md.Parser().Parse(reader)
	source := reader.Source()

	var (
		title  string
		blocks []string
	)
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			txt := blockText(n, source)
			if txt == "" {
				continue
			}
			if title == "" {
				title = txt
				continue
			}
			blocks = append(blocks, txt)
		case *ast.FencedCodeBlock:
			if code := linesText(n.Lines(), source); code != "" {
				blocks = append(blocks, code)
			}
		case *ast.CodeBlock:
			if code := linesText(n.Lines(), source); code != "" {
				blocks = append(blocks, code)
			}
		case *ast.HTMLBlock, *ast.ThematicBreak:
			continue
		default:
			if txt := blockText(n, source); txt != "" {
				blocks = append(blocks, txt)
			}
		}
	}
	if title == "" {
		title = titleFromKey(key)
	}
	content := blankLines.ReplaceAllString(strings.Join(blocks, "\n\n"), "\n\n")
	return Extracted{Title: title, Content: strings.TrimSpace(content)}
}

func blockText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch node.Kind() {
			case ast.KindParagraph, ast.KindTextBlock, ast.KindListItem:
				sb.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			sb.Write(v.Segment.Value(source))
			if v.HardLineBreak() {
				sb.WriteByte('\n')
			} else if v.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	lines := strings.Split(sb.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func linesText(lines *text.Segments, source []byte) string {
	var sb strings.Builder
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		sb.Write(line.Value(source))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func titleFromKey(key string) string {
	base := path.Base(key)
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return strings.TrimSpace(base)
}
