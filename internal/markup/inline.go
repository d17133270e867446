package markup

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/stickies/internal/tagpath"
)

// tagTrailingPunct is stripped from the end of a "#tag" token.
const tagTrailingPunct = ".,;:!?)"

// scanner walks one line of inline markup left to right. At every position
// the longest construct that can start there wins; anything unmatched is
// literal text.
type scanner struct {
	src   string
	pos   int
	text  strings.Builder
	spans []Span
}

// ParseInline splits a single line of markup into spans.
func ParseInline(line string) []Span {
	s := &scanner{src: line}
	s.run()
	return s.spans
}

func (s *scanner) run() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\\' && s.pos+1 < len(s.src) && isASCIIPunct(s.src[s.pos+1]):
			s.text.WriteByte(s.src[s.pos+1])
			s.pos += 2
		case c == '`':
			if !s.codeSpan() {
				s.literalRun('`')
			}
		case c == '!' && strings.HasPrefix(s.src[s.pos:], "!["):
			if !s.linkOrImage(true) {
				s.literal(1)
			}
		case c == '[':
			if !s.linkOrImage(false) {
				s.literal(1)
			}
		case c == '*' || c == '_':
			if !s.emphasis(c) {
				s.literalRun(c)
			}
		case c == '~' && strings.HasPrefix(s.src[s.pos:], "~~"):
			if !s.delimited("~~", SpanStrike) {
				s.literal(2)
			}
		case c == '#':
			if !s.tagRef() {
				s.literal(1)
			}
		default:
			_, size := utf8.DecodeRuneInString(s.src[s.pos:])
			s.literal(size)
		}
	}
	s.flush()
}

func (s *scanner) literal(n int) {
	s.text.WriteString(s.src[s.pos : s.pos+n])
	s.pos += n
}

// literalRun consumes a whole run of c so that an unmatched "**" is not
// retried as two single delimiters.
func (s *scanner) literalRun(c byte) {
	n := runLength(s.src[s.pos:], c)
	s.literal(n)
}

func (s *scanner) flush() {
	if s.text.Len() == 0 {
		return
	}
	s.spans = append(s.spans, Text(s.text.String()))
	s.text.Reset()
}

func (s *scanner) emit(sp Span) {
	s.flush()
	s.spans = append(s.spans, sp)
}

func (s *scanner) prevRune() rune {
	if s.pos == 0 {
		return ' '
	}
	r, _ := utf8.DecodeLastRuneInString(s.src[:s.pos])
	return r
}

// emphasis tries "***", "**"/"__" and "*"/"_" in that order.
func (s *scanner) emphasis(c byte) bool {
	run := runLength(s.src[s.pos:], c)
	if c == '_' && isWordRune(s.prevRune()) {
		return false
	}
	d := string(c)
	if run >= 3 && s.delimited(d+d+d, SpanBoldItalic) {
		return true
	}
	if run >= 2 && s.delimited(d+d, SpanBold) {
		return true
	}
	return s.delimited(d, SpanItalic)
}

// delimited matches delim + content + delim where the content is non-empty
// and does not start or end with whitespace.
func (s *scanner) delimited(delim string, kind SpanKind) bool {
	start := s.pos + len(delim)
	if start >= len(s.src) || isSpaceByte(s.src[start]) {
		return false
	}
	end := findClosing(s.src, start, delim)
	if end < 0 {
		return false
	}
	if delim[0] == '_' {
		after := end + len(delim)
		if after < len(s.src) {
			r, _ := utf8.DecodeRuneInString(s.src[after:])
			if isWordRune(r) {
				return false
			}
		}
	}
	s.emit(Span{Kind: kind, Text: unescape(s.src[start:end])})
	s.pos = end + len(delim)
	return true
}

// findClosing returns the index of the first unescaped delimiter run after
// from that can close delim, or -1. Runs are consumed whole: a single "*"
// never closes on half of a "**".
func findClosing(src string, from int, delim string) int {
	for i := from; i < len(src); i++ {
		c := src[i]
		if c == '\\' {
			i++
			continue
		}
		if c != delim[0] {
			continue
		}
		run := runLength(src[i:], c)
		if i > from && !isSpaceByte(src[i-1]) && run >= len(delim) && (len(delim) > 1 || run == 1) {
			return i
		}
		i += run - 1
	}
	return -1
}

func (s *scanner) codeSpan() bool {
	n := runLength(s.src[s.pos:], '`')
	fence := strings.Repeat("`", n)
	start := s.pos + n
	for i := start; i < len(s.src); {
		j := strings.Index(s.src[i:], fence)
		if j < 0 {
			return false
		}
		j += i
		if runLength(s.src[j:], '`') != n {
			i = j + runLength(s.src[j:], '`')
			continue
		}
		content := s.src[start:j]
		if len(content) >= 2 && content[0] == ' ' && content[len(content)-1] == ' ' && strings.TrimSpace(content) != "" {
			content = content[1 : len(content)-1]
		}
		s.emit(Span{Kind: SpanCode, Text: content})
		s.pos = j + n
		return true
	}
	return false
}

// linkOrImage matches "[text](url)" or "![alt](url)".
func (s *scanner) linkOrImage(image bool) bool {
	open := s.pos + 1
	if image {
		open++
	}
	closeText := indexUnescaped(s.src, open, ']')
	if closeText < 0 || closeText+1 >= len(s.src) || s.src[closeText+1] != '(' {
		return false
	}
	closeURL := strings.IndexByte(s.src[closeText+2:], ')')
	if closeURL < 0 {
		return false
	}
	closeURL += closeText + 2
	url := strings.TrimSpace(s.src[closeText+2 : closeURL])
	if url == "" || strings.ContainsFunc(url, unicode.IsSpace) {
		return false
	}
	text := unescape(s.src[open:closeText])
	kind := SpanLink
	if image {
		kind = SpanImage
	} else if text == "" {
		return false
	}
	s.emit(Span{Kind: kind, Text: text, URL: url})
	s.pos = closeURL + 1
	return true
}

// tagRef matches "#" + non-space, non-"#" characters at a token boundary.
// A token that does not parse as a tag path is left as text.
func (s *scanner) tagRef() bool {
	if !isTagBoundary(s.prevRune()) {
		return false
	}
	start := s.pos + 1
	p, n, ok := ScanTagRef(s.src[start:])
	if !ok {
		return false
	}
	s.emit(TagRef(p))
	s.pos = start + n
	// The separator space belongs to the reference.
	if s.pos < len(s.src) && s.src[s.pos] == ' ' {
		s.pos++
	}
	return true
}

// ScanTagRef reads the tag path at the start of src, which is the text that
// follows a "#". It returns the path and the number of bytes it spans;
// trailing sentence punctuation is not part of the path.
func ScanTagRef(src string) (tagpath.Path, int, bool) {
	end := 0
	for end < len(src) {
		r, size := utf8.DecodeRuneInString(src[end:])
		if unicode.IsSpace(r) || r == '#' {
			break
		}
		end += size
	}
	token := strings.TrimRight(src[:end], tagTrailingPunct)
	if token == "" {
		return tagpath.Path{}, 0, false
	}
	p, err := tagpath.Parse(token)
	if err != nil {
		return tagpath.Path{}, 0, false
	}
	return p, len(token), true
}

// IsTagBoundary reports whether a tag reference may follow r.
func IsTagBoundary(r rune) bool { return isTagBoundary(r) }

func isTagBoundary(r rune) bool {
	return unicode.IsSpace(r) || r == '('
}

func indexUnescaped(src string, from int, c byte) int {
	for i := from; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case c:
			return i
		}
	}
	return -1
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && isASCIIPunct(s[i+1]) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func runLength(s string, c byte) int {
	n := 0
	for n < len(s) && s[n] == c {
		n++
	}
	return n
}

func isASCIIPunct(c byte) bool {
	return strings.IndexByte("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", c) >= 0
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t'
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
