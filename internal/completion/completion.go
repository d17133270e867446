// Package completion tracks in-progress "#tag" tokens while editing and
// offers known tag paths to complete them.
//
// Positions are byte offsets into the editor text.
package completion

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/starford/stickies/internal/tagpath"
)

// Key is an editing key the engine may consume.
type Key int

// Keys handled while a session is active.
const (
	KeyDown Key = iota + 1
	KeyUp
	KeyEnter
	KeyTab
	KeyEscape
)

// Session is the state of one completion attempt.
type Session struct {
	Active     bool           `json:"active"`
	Query      string         `json:"query"`
	Candidates []tagpath.Path `json:"candidates"`
	Selected   int            `json:"selected"`
	// Anchor is the offset of the "#" that opened the session.
	Anchor int `json:"anchor"`
}

// Edit replaces Text[Start:End] with Insert. The cursor lands at
// Start+len(Insert). Tag is the accepted path, for the caller to register.
type Edit struct {
	Start  int
	End    int
	Insert string
	Tag    tagpath.Path
}

// Engine is the completion state machine for one editing surface. It is not
// safe for concurrent use.
type Engine struct {
	known   []tagpath.Path
	session Session
	cursor  int
}

// New returns an engine offering the given tags, in the given order.
func New(known []tagpath.Path) *Engine {
	e := &Engine{}
	e.SetKnown(known)
	return e
}

// SetKnown replaces the known tag list. An active session re-filters.
func (e *Engine) SetKnown(known []tagpath.Path) {
	e.known = append(e.known[:0:0], known...)
	if e.session.Active {
		e.session.Candidates = Match(e.known, e.session.Query)
		e.session.Selected = 0
	}
}

// Register adds a tag to the known list if it is not already there.
func (e *Engine) Register(p tagpath.Path) {
	for _, k := range e.known {
		if k == p {
			return
		}
	}
	e.known = append(e.known, p)
}

// Known returns the known tag list.
func (e *Engine) Known() []tagpath.Path {
	return append([]tagpath.Path(nil), e.known...)
}

// Session returns a copy of the current session.
func (e *Engine) Session() Session {
	s := e.session
	s.Candidates = append([]tagpath.Path(nil), s.Candidates...)
	return s
}

// TextChanged re-evaluates the session after an edit. The session is active
// iff the text of the current line up to the cursor ends in a "#" token.
func (e *Engine) TextChanged(text string, cursor int) Session {
	e.cursor = cursor
	anchor, query, ok := QueryAt(text, cursor)
	if !ok {
		e.session = Session{}
		return e.Session()
	}
	if !e.session.Active || e.session.Anchor != anchor || e.session.Query != query {
		e.session = Session{
			Active:     true,
			Query:      query,
			Candidates: Match(e.known, query),
			Anchor:     anchor,
		}
	}
	return e.Session()
}

// CursorMoved deactivates the session when the cursor leaves the token.
// Moving never opens a session.
func (e *Engine) CursorMoved(text string, cursor int) Session {
	e.cursor = cursor
	if !e.session.Active {
		return e.Session()
	}
	anchor, query, ok := QueryAt(text, cursor)
	if !ok || anchor != e.session.Anchor {
		e.session = Session{}
		return e.Session()
	}
	if query != e.session.Query {
		e.session.Query = query
		e.session.Candidates = Match(e.known, query)
		e.session.Selected = 0
	}
	return e.Session()
}

// Dismiss deactivates the session without editing text.
func (e *Engine) Dismiss() {
	e.session = Session{}
}

// HandleKey applies k to an active session. handled is false when the key
// should fall through to the editor: no session, or no candidates.
// edit is non-nil only when a candidate was accepted.
func (e *Engine) HandleKey(k Key) (edit *Edit, handled bool) {
	s := &e.session
	if !s.Active {
		return nil, false
	}
	if k == KeyEscape {
		e.Dismiss()
		return nil, true
	}
	n := len(s.Candidates)
	if n == 0 {
		return nil, false
	}
	switch k {
	case KeyDown:
		s.Selected = (s.Selected + 1) % n
	case KeyUp:
		s.Selected = (s.Selected - 1 + n) % n
	case KeyEnter, KeyTab:
		ed, _ := e.Accept(s.Selected)
		return ed, true
	default:
		return nil, false
	}
	return nil, true
}

// Accept replaces the typed token with candidate i followed by a space and
// deactivates the session. It returns nil if i is out of range.
func (e *Engine) Accept(i int) (*Edit, bool) {
	s := e.session
	if !s.Active || i < 0 || i >= len(s.Candidates) {
		return nil, false
	}
	p := s.Candidates[i]
	ed := &Edit{
		Start:  s.Anchor,
		End:    e.cursor,
		Insert: "#" + p.String() + " ",
		Tag:    p,
	}
	e.Register(p)
	e.Dismiss()
	return ed, true
}

// QueryAt finds a "#" token ending at cursor on the cursor's line. The "#"
// must start the line or follow whitespace or "(", and the characters after
// it up to the cursor must not be whitespace or "#".
func QueryAt(text string, cursor int) (anchor int, query string, ok bool) {
	if cursor < 0 || cursor > len(text) {
		return 0, "", false
	}
	lineStart := strings.LastIndexByte(text[:cursor], '\n') + 1
	line := text[lineStart:cursor]
	hash := strings.LastIndexByte(line, '#')
	if hash < 0 {
		return 0, "", false
	}
	query = line[hash+1:]
	if strings.ContainsFunc(query, unicode.IsSpace) {
		return 0, "", false
	}
	if hash > 0 {
		r, _ := utf8.DecodeLastRuneInString(line[:hash])
		if !unicode.IsSpace(r) && r != '(' {
			return 0, "", false
		}
	}
	return lineStart + hash, query, true
}

// Match returns the paths containing query under Unicode case folding, in
// the order of known. An empty query matches everything.
func Match(known []tagpath.Path, query string) []tagpath.Path {
	fold := cases.Fold()
	q := fold.String(query)
	out := make([]tagpath.Path, 0, len(known))
	for _, p := range known {
		if strings.Contains(fold.String(p.String()), q) {
			out = append(out, p)
		}
	}
	return out
}
