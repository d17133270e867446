package markup

import "github.com/starford/stickies/internal/tagpath"

// TagMapper returns the replacement for a tag reference, or keep=false to
// drop the reference.
type TagMapper func(p tagpath.Path) (next tagpath.Path, keep bool)

// RewriteTags applies fn to every tag reference in doc. A dropped reference
// becomes the plain text "#path ", which encodes escaped so that it no longer
// parses as a tag. The result shares nothing with doc; changed reports
// whether any reference was replaced or dropped.
func RewriteTags(doc Document, fn TagMapper) (Document, bool) {
	out := Document{Blocks: make([]Block, len(doc.Blocks))}
	changed := false
	rewrite := func(spans []Span) []Span {
		if spans == nil {
			return nil
		}
		next := make([]Span, 0, len(spans))
		for _, s := range spans {
			if s.Kind == SpanTag {
				p, keep := fn(s.Tag)
				switch {
				case !keep:
					s = Text("#" + s.Tag.String() + " ")
					changed = true
				case p != s.Tag:
					s = TagRef(p)
					changed = true
				}
			}
			if n := len(next); n > 0 && s.Kind == SpanText && next[n-1].Kind == SpanText {
				next[n-1].Text += s.Text
				continue
			}
			next = append(next, s)
		}
		return next
	}
	for i, b := range doc.Blocks {
		b.Spans = rewrite(b.Spans)
		if b.Items != nil {
			items := make([][]Span, len(b.Items))
			for j, item := range b.Items {
				items[j] = rewrite(item)
			}
			b.Items = items
		}
		if b.Image != nil {
			img := *b.Image
			b.Image = &img
		}
		out.Blocks[i] = b
	}
	return out, changed
}
