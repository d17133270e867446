package markup

import (
	"strconv"
	"strings"
)

// lineKind is the block classification of a single line.
type lineKind int

const (
	lineParagraph lineKind = iota
	lineFence
	lineHeading
	lineBullet
	lineOrdered
	lineQuote
	lineRule
	lineBlank
)

// classified is a line with its block prefix removed.
type classified struct {
	kind    lineKind
	level   int    // heading level
	number  int    // ordered item number
	content string // text after the block prefix
	fence   int    // backtick count of a fence line
}

// classify applies the block precedence: fence > heading > bullet >
// ordered > blockquote > rule > blank > paragraph.
func classify(line string) classified {
	t := strings.TrimSpace(line)
	switch {
	case isFence(t):
		n := runLength(t, '`')
		return classified{kind: lineFence, fence: n, content: strings.TrimSpace(t[n:])}
	case headingLevel(t) > 0:
		lvl := headingLevel(t)
		return classified{kind: lineHeading, level: lvl, content: strings.TrimSpace(t[lvl+1:])}
	case strings.HasPrefix(t, "- ") || strings.HasPrefix(t, "* "):
		return classified{kind: lineBullet, content: strings.TrimSpace(t[2:])}
	case t == "-":
		return classified{kind: lineBullet}
	}
	if n, rest, ok := orderedPrefix(t); ok {
		return classified{kind: lineOrdered, number: n, content: rest}
	}
	switch {
	case strings.HasPrefix(t, "> "):
		return classified{kind: lineQuote, content: strings.TrimSpace(t[2:])}
	case isRule(t):
		return classified{kind: lineRule}
	case t == "":
		return classified{kind: lineBlank}
	}
	return classified{kind: lineParagraph, content: t}
}

// headingLevel returns 1..3 for "# x", "## x", "### x", else 0.
func headingLevel(t string) int {
	n := runLength(t, '#')
	if n < 1 || n > 3 || len(t) <= n+1 || t[n] != ' ' {
		return 0
	}
	if strings.TrimSpace(t[n+1:]) == "" {
		return 0
	}
	return n
}

func orderedPrefix(t string) (int, string, bool) {
	i := 0
	for i < len(t) && i < 9 && t[i] >= '0' && t[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(t) || t[i] != '.' {
		return 0, "", false
	}
	if i+1 >= len(t) || t[i+1] != ' ' {
		return 0, "", false
	}
	n, err := strconv.Atoi(t[:i])
	if err != nil {
		return 0, "", false
	}
	return n, strings.TrimSpace(t[i+1:]), true
}

// isFence reports a line of three or more backticks followed by an info
// string without backticks. "```a``b```" is an inline code span.
func isFence(t string) bool {
	n := runLength(t, '`')
	return n >= 3 && !strings.Contains(t[n:], "`")
}

// isRule reports three or more of the same '-', '*' or '_' alone on the line.
func isRule(t string) bool {
	if len(t) < 3 {
		return false
	}
	c := t[0]
	if c != '-' && c != '*' && c != '_' {
		return false
	}
	return runLength(t, c) == len(t)
}

// decoder carries the state that spans lines.
type decoder struct {
	doc Document

	list     *Block
	inFence  bool
	fenceLen int
	fenceBuf []string
	lang     string
}

// Decode parses markup into structured content.
func Decode(markup string) Document {
	d := &decoder{}
	markup = strings.ReplaceAll(markup, "\r\n", "\n")
	for _, line := range strings.Split(markup, "\n") {
		d.line(line)
	}
	d.finish()
	if d.doc.Blocks == nil {
		d.doc.Blocks = []Block{}
	}
	return d.doc
}

func (d *decoder) line(line string) {
	if d.inFence {
		c := classify(line)
		if c.kind == lineFence && c.fence >= d.fenceLen && c.content == "" {
			d.closeFence()
			return
		}
		d.fenceBuf = append(d.fenceBuf, line)
		return
	}

	c := classify(line)
	if d.list != nil && !d.continuesList(c.kind) {
		d.closeList()
	}

	switch c.kind {
	case lineFence:
		d.inFence = true
		d.fenceLen = c.fence
		d.lang = c.content
		d.fenceBuf = nil
	case lineHeading:
		d.emit(Block{Kind: BlockHeading, Level: c.level, Spans: ParseInline(c.content)})
	case lineBullet:
		d.listItem(BlockBulletList, 0, c.content)
	case lineOrdered:
		d.listItem(BlockOrderedList, c.number, c.content)
	case lineQuote:
		d.emit(Block{Kind: BlockQuote, Spans: ParseInline(c.content)})
	case lineRule:
		d.emit(Block{Kind: BlockRule})
	case lineBlank:
	default:
		spans := ParseInline(c.content)
		if len(spans) == 1 && spans[0].Kind == SpanImage {
			img := spans[0]
			d.emit(Block{Kind: BlockImage, Image: &img})
			return
		}
		if len(spans) > 0 {
			d.emit(Block{Kind: BlockParagraph, Spans: spans})
		}
	}
}

func (d *decoder) continuesList(k lineKind) bool {
	switch d.list.Kind {
	case BlockBulletList:
		return k == lineBullet
	case BlockOrderedList:
		return k == lineOrdered
	}
	return false
}

func (d *decoder) listItem(kind BlockKind, number int, content string) {
	if d.list == nil {
		d.list = &Block{Kind: kind}
		if kind == BlockOrderedList {
			d.list.Start = number
		}
	}
	spans := ParseInline(content)
	if spans == nil {
		spans = []Span{}
	}
	d.list.Items = append(d.list.Items, spans)
}

func (d *decoder) closeList() {
	d.doc.Blocks = append(d.doc.Blocks, *d.list)
	d.list = nil
}

func (d *decoder) closeFence() {
	d.doc.Blocks = append(d.doc.Blocks, Block{
		Kind: BlockCode,
		Lang: d.lang,
		Code: strings.Join(d.fenceBuf, "\n"),
	})
	d.inFence = false
	d.fenceBuf = nil
	d.lang = ""
}

func (d *decoder) emit(b Block) {
	d.doc.Blocks = append(d.doc.Blocks, b)
}

// finish closes whatever is still open at end of input. An unterminated
// fence keeps its accumulated lines.
func (d *decoder) finish() {
	if d.list != nil {
		d.closeList()
	}
	if d.inFence {
		d.closeFence()
	}
}
