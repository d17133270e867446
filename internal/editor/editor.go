// Package editor is the editing surface for an item body: a markup text
// buffer with a cursor, live tag completion and image paste.
//
// Every edit re-derives the stored markup as Encode(Decode(text)) and reports
// it through the change callback. Positions are byte offsets.
package editor

import (
	"log/slog"
	"sync"

	"github.com/starford/stickies/internal/completion"
	"github.com/starford/stickies/internal/markup"
	"github.com/starford/stickies/internal/tagpath"
)

// Option configures a Surface.
type Option func(*Surface)

// WithUploader sets the collaborator used by PasteImage.
func WithUploader(u Uploader) Option {
	return func(s *Surface) { s.uploader = u }
}

// WithOnChange sets the callback that receives the markup after every edit.
// It is called without the surface lock held.
func WithOnChange(fn func(markup string)) Option {
	return func(s *Surface) { s.onChange = fn }
}

// WithKnownTags seeds tag completion.
func WithKnownTags(paths []tagpath.Path) Option {
	return func(s *Surface) { s.completion.SetKnown(paths) }
}

// WithTags sets the item's current tag set.
func WithTags(tags tagpath.Set) Option {
	return func(s *Surface) { s.tags = tags.Clone() }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Surface) { s.logger = l }
}

// Surface is safe for concurrent use; uploads resolve on their own goroutines.
type Surface struct {
	mu         sync.Mutex
	text       string
	cursor     int
	doc        markup.Document
	markup     string
	tags       tagpath.Set
	completion *completion.Engine
	anchors    []*anchor
	closed     bool

	uploader Uploader
	onChange func(string)
	logger   *slog.Logger
}

// anchor is a buffer position that follows edits made around it.
type anchor struct {
	pos int
}

// New opens a surface on stored markup with the cursor at the end.
func New(body string, opts ...Option) *Surface {
	s := &Surface{
		text:       body,
		cursor:     len(body),
		completion: completion.New(nil),
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.rederive()
	return s
}

// Text returns the buffer as typed.
func (s *Surface) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Markup returns the canonical markup of the buffer.
func (s *Surface) Markup() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markup
}

// Document returns the decoded buffer.
func (s *Surface) Document() markup.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Cursor returns the cursor offset.
func (s *Surface) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Tags returns the item's tag set: tags it started with, tags accepted from
// completion, and tags currently referenced in the text.
func (s *Surface) Tags() tagpath.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.tags.Clone()
	for _, p := range s.doc.Tags() {
		out.Add(p)
	}
	return out
}

// Completion returns the current completion session.
func (s *Surface) Completion() completion.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completion.Session()
}

// SetCursor moves the cursor, clamped to the buffer.
func (s *Surface) SetCursor(pos int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = min(max(pos, 0), len(s.text))
	s.completion.CursorMoved(s.text, s.cursor)
}

// Blur is a click outside the surface. It closes any completion session.
func (s *Surface) Blur() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completion.Dismiss()
}

// Insert types text at the cursor.
func (s *Surface) Insert(text string) {
	s.edit(func() {
		s.replace(s.cursor, s.cursor, text, false)
	})
}

// Backspace deletes the rune before the cursor.
func (s *Surface) Backspace() {
	s.edit(func() {
		if s.cursor == 0 {
			return
		}
		start := s.cursor - 1
		for start > 0 && !isRuneStart(s.text[start]) {
			start--
		}
		s.replace(start, s.cursor, "", false)
	})
}

// Replace is a programmatic edit of text[start:end]. The cursor moves to the
// end of the inserted text.
func (s *Surface) Replace(start, end int, text string) {
	s.edit(func() {
		start = min(max(start, 0), len(s.text))
		end = min(max(end, start), len(s.text))
		s.cursor = start
		s.replace(start, end, text, false)
	})
}

// KeyPress routes a special key. Completion consumes it first when a session
// with candidates is active; otherwise Enter inserts a newline, Tab inserts
// a tab and the remaining keys do nothing.
func (s *Surface) KeyPress(k completion.Key) {
	s.edit(func() {
		ed, handled := s.completion.HandleKey(k)
		if handled {
			if ed != nil {
				s.cursor = ed.End
				s.replace(ed.Start, ed.End, ed.Insert, false)
				s.tags.Add(ed.Tag)
			}
			return
		}
		switch k {
		case completion.KeyEnter:
			s.replace(s.cursor, s.cursor, "\n", false)
		case completion.KeyTab:
			s.replace(s.cursor, s.cursor, "\t", false)
		}
	})
}

// AcceptCompletion accepts candidate i of the active session.
func (s *Surface) AcceptCompletion(i int) bool {
	var ok bool
	s.edit(func() {
		var ed *completion.Edit
		if ed, ok = s.completion.Accept(i); ok {
			s.cursor = ed.End
			s.replace(ed.Start, ed.End, ed.Insert, false)
			s.tags.Add(ed.Tag)
		}
	})
	return ok
}

// edit runs fn under the lock and reports the markup if the buffer changed.
func (s *Surface) edit(fn func()) {
	s.mu.Lock()
	before := s.text
	fn()
	changed := s.text != before
	if changed {
		s.rederive()
		s.completion.TextChanged(s.text, s.cursor)
	}
	out, cb := s.markup, s.onChange
	s.mu.Unlock()

	if changed && cb != nil {
		cb(out)
	}
}

// replace rewrites text[start:end] and shifts the cursor and anchors.
// An anchor exactly at start stays before the insertion unless
// shiftEqual is set. Callers hold the lock.
func (s *Surface) replace(start, end int, ins string, shiftEqual bool) {
	s.text = s.text[:start] + ins + s.text[end:]
	delta := len(ins) - (end - start)

	shift := func(pos int, equal bool) int {
		switch {
		case pos < start || (pos == start && !equal):
			return pos
		case pos >= end:
			return pos + delta
		default:
			return start + len(ins)
		}
	}
	s.cursor = shift(s.cursor, true)
	for _, a := range s.anchors {
		a.pos = shift(a.pos, shiftEqual)
	}
}

func (s *Surface) rederive() {
	s.doc = markup.Decode(s.text)
	s.markup = markup.Encode(s.doc)
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
