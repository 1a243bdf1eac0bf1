// Package markdown переводит описания партнёров из ограниченного markdown
// в HTML: ссылки и переносы строк. Сырой HTML не пропускается.
package markdown

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var (
	mdInstance goldmark.Markdown
	mdOnce     sync.Once
)

func md() goldmark.Markdown {
	mdOnce.Do(func() {
		mdInstance = goldmark.New(
			goldmark.WithParserOptions(
				parser.WithASTTransformers(util.Prioritized(externalLinks{}, 100)),
			),
			// одиночный перевод строки → <br>
			goldmark.WithRendererOptions(html.WithHardWraps()),
		)
	})
	return mdInstance
}

// Render возвращает HTML для описания. Пустой ввод даёт пустую строку.
func Render(src string) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := md().Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// externalLinks открывает ссылки http(s) в новой вкладке.
type externalLinks struct{}

func (externalLinks) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		var dest []byte
		switch link := n.(type) {
		case *ast.Link:
			dest = link.Destination
		case *ast.AutoLink:
			dest = link.URL(source)
		default:
			return ast.WalkContinue, nil
		}
		if isExternal(dest) {
			n.SetAttributeString("target", []byte("_blank"))
			n.SetAttributeString("rel", []byte("noopener noreferrer"))
		}
		return ast.WalkContinue, nil
	})
}

func isExternal(dest []byte) bool {
	d := strings.ToLower(string(dest))
	return strings.HasPrefix(d, "http://") || strings.HasPrefix(d, "https://")
}
