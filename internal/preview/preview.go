// Package preview renders item markup to HTML with goldmark. Tag references
// become links into the tag browser.
package preview

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/starford/stickies/internal/markup"
	"github.com/starford/stickies/internal/tagpath"
)

// DefaultTagBase is the URL prefix tag links point under.
const DefaultTagBase = "/tags"

// KindTag is the AST kind of a tag reference.
var KindTag = ast.NewNodeKind("Tag")

// Tag is an inline tag reference.
type Tag struct {
	ast.BaseInline
	Path tagpath.Path
}

// Kind implements ast.Node.
func (n *Tag) Kind() ast.NodeKind { return KindTag }

// Dump implements ast.Node.
func (n *Tag) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Path": n.Path.String()}, nil)
}

// Renderer converts markup to HTML.
type Renderer struct {
	md goldmark.Markdown
}

// New returns a renderer whose tag links start with tagBase.
func New(tagBase string) *Renderer {
	if tagBase == "" {
		tagBase = DefaultTagBase
	}
	return &Renderer{md: goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough),
		goldmark.WithExtensions(&tagExtension{base: strings.TrimRight(tagBase, "/")}),
	)}
}

// Render returns the HTML for src. Raw HTML in src is omitted.
func (r *Renderer) Render(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("preview: render: %w", err)
	}
	return buf.String(), nil
}

type tagExtension struct {
	base string
}

func (e *tagExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithInlineParsers(
		util.Prioritized(&tagParser{}, 500),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&tagHTMLRenderer{base: e.base}, 500),
	))
}

type tagParser struct{}

func (p *tagParser) Trigger() []byte { return []byte{'#'} }

func (p *tagParser) Parse(_ ast.Node, block text.Reader, _ parser.Context) ast.Node {
	if !markup.IsTagBoundary(block.PrecendingCharacter()) {
		return nil
	}
	line, _ := block.PeekLine()
	if len(line) < 2 {
		return nil
	}
	path, n, ok := markup.ScanTagRef(string(line[1:]))
	if !ok {
		return nil
	}
	block.Advance(1 + n)
	return &Tag{Path: path}
}

type tagHTMLRenderer struct {
	base string
}

func (r *tagHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindTag, r.renderTag)
}

func (r *tagHTMLRenderer) renderTag(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*Tag)
	_, _ = w.WriteString(`<a class="tag" href="`)
	_, _ = w.WriteString(html.EscapeString(r.href(n.Path)))
	_, _ = w.WriteString(`">#`)
	_, _ = w.WriteString(html.EscapeString(n.Path.String()))
	_, _ = w.WriteString(`</a>`)
	return ast.WalkContinue, nil
}

func (r *tagHTMLRenderer) href(p tagpath.Path) string {
	segs := p.Segments()
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return r.base + "/" + strings.Join(segs, "/")
}
