package tagpath

import (
	"encoding/json"
	"slices"
)

// Set is a unique, order-insignificant collection of paths. Its methods keep
// the backing slice sorted so that equal sets compare equal element-wise.
type Set struct {
	paths []Path
}

// NewSet builds a set from paths, dropping duplicates.
func NewSet(paths ...Path) Set {
	var s Set
	for _, p := range paths {
		s.Add(p)
	}
	return s
}

// ParseSet parses each string; the first invalid one aborts with ErrInvalidPath.
func ParseSet(raw []string) (Set, error) {
	var s Set
	for _, r := range raw {
		p, err := Parse(r)
		if err != nil {
			return Set{}, err
		}
		s.Add(p)
	}
	return s, nil
}

// ParseSetLenient parses each string and returns the rejected inputs
// separately instead of failing.
func ParseSetLenient(raw []string) (Set, []string) {
	var (
		s       Set
		invalid []string
	)
	for _, r := range raw {
		p, err := Parse(r)
		if err != nil {
			invalid = append(invalid, r)
			continue
		}
		s.Add(p)
	}
	return s, invalid
}

func (s *Set) search(p Path) (int, bool) {
	return slices.BinarySearchFunc(s.paths, p, Compare)
}

// Add inserts p and reports whether it was absent.
func (s *Set) Add(p Path) bool {
	if p.IsZero() {
		return false
	}
	i, found := s.search(p)
	if found {
		return false
	}
	s.paths = slices.Insert(s.paths, i, p)
	return true
}

// Remove deletes p and reports whether it was present.
func (s *Set) Remove(p Path) bool {
	i, found := s.search(p)
	if !found {
		return false
	}
	s.paths = slices.Delete(s.paths, i, i+1)
	return true
}

// Contains reports membership.
func (s Set) Contains(p Path) bool {
	_, found := s.search(p)
	return found
}

// Len returns the number of paths.
func (s Set) Len() int { return len(s.paths) }

// Paths returns a sorted copy of the members.
func (s Set) Paths() []Path { return slices.Clone(s.paths) }

// Strings returns the sorted string forms, never nil.
func (s Set) Strings() []string {
	out := make([]string, len(s.paths))
	for i, p := range s.paths {
		out[i] = p.String()
	}
	return out
}

// Clone returns an independent copy.
func (s Set) Clone() Set { return Set{paths: slices.Clone(s.paths)} }

// Equal reports whether both sets hold the same paths.
func (s Set) Equal(o Set) bool { return slices.Equal(s.paths, o.paths) }

// AnyUnder reports whether some member equals prefix or descends from it.
func (s Set) AnyUnder(prefix Path) bool {
	for _, p := range s.paths {
		if IsDescendantOrSelf(prefix, p) {
			return true
		}
	}
	return false
}

// Union returns a new set holding the members of both.
func (s Set) Union(o Set) Set {
	out := s.Clone()
	for _, p := range o.paths {
		out.Add(p)
	}
	return out
}

// MarshalJSON encodes the set as a sorted array of strings.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON decodes an array of path strings, rejecting invalid ones.
func (s *Set) UnmarshalJSON(b []byte) error {
	var raw []string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseSet(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
