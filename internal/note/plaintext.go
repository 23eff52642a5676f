package note

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	mdParser     = goldmark.New().Parser()
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// PlainText renders markdown as its visible text: emphasis markers, link
// syntax and heading marks are dropped, paragraphs stay separated.
func PlainText(markdown string) string {
	src := []byte(markdown)
	doc := mdParser.Parse(text.NewReader(src))
	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch {
			case n.Kind() == ast.KindListItem:
			case n.Kind() == ast.KindTextBlock:
				buf.WriteByte('\n')
			case n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument:
				buf.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.Text:
			buf.Write(v.Segment.Value(src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(v.Value)
		case *ast.AutoLink:
			buf.Write(v.Label(src))
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	out := strings.ReplaceAll(buf.String(), "\r\n", "\n")
	out = blankLinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
