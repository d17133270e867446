package markup

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Encode serializes structured content back to markup. Blocks are separated
// by a blank line. Output is canonical: Encode(Decode(Encode(d))) equals
// Encode(d), but whitespace from a decoded source is not reproduced.
func Encode(doc Document) string {
	var parts []string
	for _, b := range doc.Blocks {
		if s := encodeBlock(b); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func encodeBlock(b Block) string {
	switch b.Kind {
	case BlockHeading:
		lvl := min(max(b.Level, 1), 3)
		body := inlineBody(b.Spans)
		if body == "" {
			return ""
		}
		return strings.Repeat("#", lvl) + " " + body
	case BlockBulletList:
		lines := make([]string, 0, len(b.Items))
		for _, item := range b.Items {
			lines = append(lines, trimLine("- "+inlineBody(item)))
		}
		return strings.Join(lines, "\n")
	case BlockOrderedList:
		n := b.Start
		if n < 1 {
			n = 1
		}
		// "1." alone is not a list item, so empty items are dropped.
		lines := make([]string, 0, len(b.Items))
		for _, item := range b.Items {
			body := inlineBody(item)
			if body == "" {
				continue
			}
			lines = append(lines, strconv.Itoa(n+len(lines))+". "+body)
		}
		return strings.Join(lines, "\n")
	case BlockQuote:
		body := inlineBody(b.Spans)
		if body == "" {
			return ""
		}
		return "> " + body
	case BlockCode:
		fence := strings.Repeat("`", max(3, longestFenceRun(b.Code)+1))
		lang := strings.Join(strings.Fields(strings.ReplaceAll(b.Lang, "`", "")), " ")
		return fence + lang + "\n" + b.Code + "\n" + fence
	case BlockRule:
		return "---"
	case BlockImage:
		if b.Image == nil {
			return ""
		}
		return encodeSpan(*b.Image)
	default:
		return encodeParagraph(b.Spans)
	}
}

// encodeParagraph escapes a leading marker that would otherwise turn the
// line into a different block.
func encodeParagraph(spans []Span) string {
	line := inlineBody(spans)
	if line == "" {
		return ""
	}
	if classify(line).kind == lineParagraph {
		return line
	}
	if line[0] >= '0' && line[0] <= '9' {
		if i := strings.IndexByte(line, '.'); i > 0 {
			return line[:i] + `\` + line[i:]
		}
	}
	return `\` + line
}

// inlineBody encodes spans without surrounding whitespace, which block
// classification would drop anyway.
func inlineBody(spans []Span) string {
	return strings.TrimSpace(EncodeInline(spans))
}

// EncodeInline serializes spans to a single line of markup. Adjacent text
// spans are merged first, so text is always escaped with its real neighbours
// in view.
func EncodeInline(spans []Span) string {
	var parts []string
	for {
		spans = normalizeSpans(spans)
		parts = make([]string, len(spans))
		for i, s := range spans {
			if s.Kind != SpanText {
				parts[i] = encodeSpan(s)
			}
		}
		if !separateEmphasis(spans, parts) {
			break
		}
	}

	var b strings.Builder
	for i, s := range spans {
		switch s.Kind {
		case SpanText:
			next := ""
			if i+1 < len(parts) {
				next = parts[i+1]
			}
			b.WriteString(escapeText(s.Text, b.String(), next))
		case SpanTag:
			// A reference only parses at a token boundary.
			if out := b.String(); out != "" && !isTagBoundaryBefore(out, len(out)) {
				b.WriteByte(' ')
			}
			b.WriteString(parts[i])
		default:
			b.WriteString(parts[i])
		}
	}
	return b.String()
}

// normalizeSpans returns a copy of spans with newlines flattened, spans that
// encode to nothing dropped, emphasis without visible content turned into
// text, and adjacent text or code merged.
func normalizeSpans(spans []Span) []Span {
	out := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.Kind != SpanTag {
			s.Text = flattenNewlines(s.Text)
		}
		switch s.Kind {
		case SpanBold, SpanItalic, SpanBoldItalic, SpanStrike:
			if strings.TrimSpace(s.Text) == "" {
				s = Text(s.Text)
			}
		case SpanCode:
			if s.Text == "" {
				continue
			}
			// Two code spans in a row would share a backtick run.
			if n := len(out); n > 0 && out[n-1].Kind == SpanCode {
				out[n-1].Text += s.Text
				continue
			}
		case SpanTag:
			if s.Tag.IsZero() {
				continue
			}
		case SpanLink, SpanImage:
			switch {
			case strings.TrimSpace(s.URL) == "":
				s = Text(s.Text)
			case s.Kind == SpanLink && s.Text == "":
				s.Text = s.URL
			}
		default:
			s = Text(s.Text)
		}
		if s.Kind == SpanText {
			if s.Text == "" {
				continue
			}
			if n := len(out); n > 0 && out[n-1].Kind == SpanText {
				out[n-1].Text += s.Text
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// separateEmphasis keeps an italic "*x*" from fusing with a following part
// that opens with "*". The italic switches to "_x_" when an underscore can
// open there; otherwise the following emphasis takes underscores. When
// neither fits, the italic is turned into plain text and separateEmphasis
// reports true so that the parts are rebuilt.
func separateEmphasis(spans []Span, parts []string) bool {
	for i := 0; i+1 < len(spans); i++ {
		if spans[i].Kind != SpanItalic || !strings.HasSuffix(parts[i], "*") || !strings.HasPrefix(parts[i+1], "*") {
			continue
		}
		// Leading whitespace already separates the opener from a word.
		prev := lastRune(spans, parts, i-1)
		if !strings.HasPrefix(parts[i], "*") || (!isWordRune(prev) && prev != '_') {
			parts[i] = wrap("_", spans[i].Text)
			continue
		}
		if strings.HasSuffix(parts[i+1], "*") && isWordRune(firstRune(spans, parts, i+2)) {
			spans[i] = Text(spans[i].Text)
			return true
		}
		next := spans[i+1]
		var d string
		switch next.Kind {
		case SpanBold:
			d = "__"
		case SpanBoldItalic:
			d = "___"
		default:
			d = "_"
		}
		parts[i+1] = wrap(d, next.Text)
	}
	return false
}

// lastRune is the final character of part i as it will be written, or a
// space at line start. Escaping never changes the last character of text.
func lastRune(spans []Span, parts []string, i int) rune {
	if i < 0 {
		return ' '
	}
	s := parts[i]
	if spans[i].Kind == SpanText {
		s = spans[i].Text
	}
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}

// firstRune is the first unescaped character of part i, or a space past the
// end of the line. An escaped character is punctuation either way.
func firstRune(spans []Span, parts []string, i int) rune {
	if i >= len(spans) {
		return ' '
	}
	s := parts[i]
	if spans[i].Kind == SpanText {
		s = spans[i].Text
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

func encodeSpan(s Span) string {
	text := flattenNewlines(s.Text)
	switch s.Kind {
	case SpanBold:
		return wrap("**", text)
	case SpanItalic:
		return wrap("*", text)
	case SpanBoldItalic:
		return wrap("***", text)
	case SpanStrike:
		return wrap("~~", text)
	case SpanCode:
		return encodeCode(text)
	case SpanLink:
		return "[" + escapeAll(text) + "](" + encodeURL(s.URL) + ")"
	case SpanImage:
		return "![" + escapeAll(text) + "](" + encodeURL(s.URL) + ")"
	case SpanTag:
		if s.Tag.IsZero() {
			return ""
		}
		return "#" + s.Tag.String() + " "
	default:
		return escapeText(text, "", "")
	}
}

// wrap emits delimited emphasis. Empty content cannot be represented and is
// dropped; surrounding whitespace moves outside the delimiters.
func wrap(delim, text string) string {
	inner := strings.TrimSpace(text)
	if inner == "" {
		return escapeText(text, "", "")
	}
	lead := text[:strings.Index(text, inner)]
	trail := text[len(lead)+len(inner):]
	return lead + delim + escapeAll(inner) + delim + trail
}

func encodeCode(text string) string {
	if text == "" {
		return ""
	}
	fence := strings.Repeat("`", longestRun(text, '`')+1)
	// Decode strips one space from each side unless the content is all spaces.
	padded := text[0] == ' ' && text[len(text)-1] == ' ' && strings.TrimSpace(text) != ""
	if text[0] == '`' || text[len(text)-1] == '`' || padded {
		text = " " + text + " "
	}
	return fence + text + fence
}

// escapeAll backslash-escapes every markup character. Used inside
// delimited spans where content is always literal.
func escapeAll(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '*', '_', '~', '`', '[', ']':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// escapeText escapes plain text so that it decodes back to itself. before
// is the markup already written on the line and after the markup that
// follows the text. Underscores inside words and "#" that cannot start a tag
// stay bare.
func escapeText(s, before, after string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\', '*', '`', '[', ']', '~':
			b.WriteByte('\\')
		case '_':
			if !(isWordBefore(s, i) && isWordAfter(s, i+1)) {
				b.WriteByte('\\')
			}
		case '#':
			if hashOpensTag(s, i, before, after) {
				b.WriteByte('\\')
			}
		case '!':
			// "!" directly before a link would turn it into an image.
			if i == len(s)-1 && strings.HasPrefix(after, "[") {
				b.WriteByte('\\')
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// hashOpensTag reports whether the "#" at s[i] sits at a token boundary and
// is followed by something a tag could be read from.
func hashOpensTag(s string, i int, before, after string) bool {
	prev := ' '
	switch {
	case i > 0:
		prev, _ = utf8.DecodeLastRuneInString(s[:i])
	case before != "":
		prev, _ = utf8.DecodeLastRuneInString(before)
	}
	if !isTagBoundary(prev) {
		return false
	}
	rest := s[i+1:]
	if rest == "" {
		rest = after
	}
	if rest == "" {
		return false
	}
	next, _ := utf8.DecodeRuneInString(rest)
	return !unicode.IsSpace(next) && next != '#'
}

func isTagBoundaryBefore(s string, i int) bool {
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return isTagBoundary(r)
}

func isWordBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return isWordRune(r)
}

func isWordAfter(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return isWordRune(r)
}

func encodeURL(u string) string {
	u = strings.ReplaceAll(u, " ", "%20")
	return strings.ReplaceAll(u, ")", "%29")
}

func flattenNewlines(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.Join(strings.Fields(strings.NewReplacer("\r", " ", "\n", " ").Replace(s)), " ")
}

func trimLine(s string) string {
	return strings.TrimRight(s, " \t")
}

func longestRun(s string, c byte) int {
	best, cur := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			cur++
			best = max(best, cur)
		} else {
			cur = 0
		}
	}
	return best
}

// longestFenceRun returns the longest backtick run that opens a code line.
func longestFenceRun(code string) int {
	best := 0
	for _, line := range strings.Split(code, "\n") {
		best = max(best, runLength(strings.TrimSpace(line), '`'))
	}
	return best
}
