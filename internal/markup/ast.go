// Package markup converts between stored markup text and structured content.
//
// It handles a fixed subset of Markdown: ATX headings up to level 3, bullet
// and ordered lists, blockquotes, fenced code, horizontal rules, images, and
// the inline constructs listed in SpanKind. Inline "#tag" references are
// first-class spans carrying a parsed tag path.
package markup

import "github.com/starford/stickies/internal/tagpath"

// BlockKind identifies a block node.
type BlockKind string

// Block kinds.
const (
	BlockParagraph   BlockKind = "paragraph"
	BlockHeading     BlockKind = "heading"
	BlockBulletList  BlockKind = "bullet_list"
	BlockOrderedList BlockKind = "ordered_list"
	BlockQuote       BlockKind = "blockquote"
	BlockCode        BlockKind = "code_block"
	BlockRule        BlockKind = "horizontal_rule"
	BlockImage       BlockKind = "image"
)

// SpanKind identifies an inline span.
type SpanKind string

// Span kinds.
const (
	SpanText       SpanKind = "text"
	SpanBold       SpanKind = "bold"
	SpanItalic     SpanKind = "italic"
	SpanBoldItalic SpanKind = "bold_italic"
	SpanStrike     SpanKind = "strike"
	SpanCode       SpanKind = "code"
	SpanLink       SpanKind = "link"
	SpanImage      SpanKind = "image"
	SpanTag        SpanKind = "tag"
)

// Span is a run of inline content. Text holds the visible text (alt text for
// images); URL is set for links and images; Tag for tag references.
type Span struct {
	Kind SpanKind     `json:"kind"`
	Text string       `json:"text,omitempty"`
	URL  string       `json:"url,omitempty"`
	Tag  tagpath.Path `json:"tag,omitzero"`
}

// Block is a block-level node. Which fields are meaningful depends on Kind:
//   - paragraph, blockquote: Spans
//   - heading: Level (1..3), Spans
//   - bullet_list, ordered_list: Items; ordered lists also Start
//   - code_block: Lang, Code
//   - image: Image
type Block struct {
	Kind  BlockKind `json:"kind"`
	Level int       `json:"level,omitempty"`
	Spans []Span    `json:"spans,omitempty"`
	Items [][]Span  `json:"items,omitempty"`
	Start int       `json:"start,omitempty"`
	Lang  string    `json:"lang,omitempty"`
	Code  string    `json:"code,omitempty"`
	Image *Span     `json:"image,omitempty"`
}

// Document is decoded structured content.
type Document struct {
	Blocks []Block `json:"blocks"`
}

// Text returns a plain-text span.
func Text(s string) Span { return Span{Kind: SpanText, Text: s} }

// TagRef returns a tag-reference span.
func TagRef(p tagpath.Path) Span { return Span{Kind: SpanTag, Tag: p} }

// Tags returns every tag referenced in the document, in order of first use.
func (d Document) Tags() []tagpath.Path {
	var (
		out  []tagpath.Path
		seen = make(map[tagpath.Path]struct{})
	)
	add := func(spans []Span) {
		for _, s := range spans {
			if s.Kind != SpanTag {
				continue
			}
			if _, ok := seen[s.Tag]; ok {
				continue
			}
			seen[s.Tag] = struct{}{}
			out = append(out, s.Tag)
		}
	}
	for _, b := range d.Blocks {
		add(b.Spans)
		for _, item := range b.Items {
			add(item)
		}
	}
	return out
}

// PlainText flattens spans to their visible text. Tag references render as "#path".
func PlainText(spans []Span) string {
	var n int
	for _, s := range spans {
		n += len(s.Text) + len(s.Tag.String()) + 1
	}
	buf := make([]byte, 0, n)
	for _, s := range spans {
		if s.Kind == SpanTag {
			buf = append(buf, '#')
			buf = append(buf, s.Tag.String()...)
			continue
		}
		buf = append(buf, s.Text...)
	}
	return string(buf)
}
