// Package tagpath implements hierarchical, slash-delimited tag paths.
package tagpath

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Separator joins the segments of a path.
const Separator = "/"

// ErrInvalidPath is returned for malformed tag strings.
var ErrInvalidPath = errors.New("invalid tag path")

// Path is an ordered, non-empty sequence of non-empty segments.
// The zero value is not a valid path; use Parse or MustParse.
type Path struct {
	s string
}

// segmentRules are applied to every segment of a path.
var segmentRules = []validation.Rule{
	validation.Required,
	validation.By(func(v any) error {
		s, _ := v.(string)
		if strings.Contains(s, Separator) {
			return errors.New("must not contain a separator")
		}
		if strings.ContainsFunc(s, unicode.IsSpace) {
			return errors.New("must not contain whitespace")
		}
		if strings.Contains(s, "#") {
			return errors.New("must not contain '#'")
		}
		return nil
	}),
}

// ValidateSegment reports whether name is usable as a single path segment.
func ValidateSegment(name string) error {
	if err := validation.Validate(name, segmentRules...); err != nil {
		return fmt.Errorf("%w: segment %q: %v", ErrInvalidPath, name, err)
	}
	return nil
}

// Parse splits s on "/" and validates every segment.
func Parse(s string) (Path, error) {
	if s == "" {
		return Path{}, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for _, seg := range strings.Split(s, Separator) {
		if err := validation.Validate(seg, segmentRules...); err != nil {
			return Path{}, fmt.Errorf("%w: %q: %v", ErrInvalidPath, s, err)
		}
	}
	return Path{s: s}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and literals.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the "/"-joined form.
func (p Path) String() string { return p.s }

// IsZero reports whether p is the zero value.
func (p Path) IsZero() bool { return p.s == "" }

// Segments returns the individual name segments.
func (p Path) Segments() []string {
	if p.s == "" {
		return nil
	}
	return strings.Split(p.s, Separator)
}

// Depth returns the number of segments.
func (p Path) Depth() int {
	if p.s == "" {
		return 0
	}
	return strings.Count(p.s, Separator) + 1
}

// LastSegment returns the final name segment.
func (p Path) LastSegment() string {
	if i := strings.LastIndex(p.s, Separator); i >= 0 {
		return p.s[i+1:]
	}
	return p.s
}

// Parent returns the path without its last segment. ok is false for
// single-segment paths.
func (p Path) Parent() (parent Path, ok bool) {
	i := strings.LastIndex(p.s, Separator)
	if i < 0 {
		return Path{}, false
	}
	return Path{s: p.s[:i]}, true
}

// Child appends one segment to p. A zero p yields a root path.
func (p Path) Child(name string) (Path, error) {
	if err := ValidateSegment(name); err != nil {
		return Path{}, err
	}
	if p.s == "" {
		return Path{s: name}, nil
	}
	return Path{s: p.s + Separator + name}, nil
}

// IsDescendantOrSelf reports whether b equals a or lies beneath it.
// The comparison is segment-aware: "work" is not an ancestor of "workshop".
func IsDescendantOrSelf(a, b Path) bool {
	if a.s == "" || b.s == "" {
		return false
	}
	if a.s == b.s {
		return true
	}
	return strings.HasPrefix(b.s, a.s+Separator)
}

// IsStrictDescendant reports whether b lies beneath a and differs from it.
func IsStrictDescendant(a, b Path) bool {
	return a.s != b.s && IsDescendantOrSelf(a, b)
}

// Rebase replaces the oldPrefix part of path with newPrefix.
// The caller must ensure IsDescendantOrSelf(oldPrefix, path).
func Rebase(path, oldPrefix, newPrefix Path) Path {
	if !IsDescendantOrSelf(oldPrefix, path) {
		panic(fmt.Sprintf("tagpath: %q is not under %q", path.s, oldPrefix.s))
	}
	return Path{s: newPrefix.s + path.s[len(oldPrefix.s):]}
}

// Ancestors returns every proper prefix of p, shortest first.
func (p Path) Ancestors() []Path {
	segs := p.Segments()
	if len(segs) < 2 {
		return nil
	}
	out := make([]Path, 0, len(segs)-1)
	for i := 1; i < len(segs); i++ {
		out = append(out, Path{s: strings.Join(segs[:i], Separator)})
	}
	return out
}

// Compare orders paths lexicographically by their string form.
func Compare(a, b Path) int {
	return strings.Compare(a.s, b.s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Path) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
