// Package tagtree derives a navigable tree from a flat set of tag paths.
//
// The tree is a view: it is rebuilt from item tag sets whenever they change
// and is never mutated in place.
package tagtree

import (
	"slices"
	"strings"

	"github.com/starford/stickies/internal/models"
	"github.com/starford/stickies/internal/tagpath"
)

// Node is one segment of the tag namespace.
type Node struct {
	Name     string       `json:"name"`
	FullPath tagpath.Path `json:"full_path"`
	// Count is the number of items tagged with exactly FullPath. Structural
	// nodes (prefixes no item references directly) have Count 0.
	Count    int     `json:"count"`
	Tagged   bool    `json:"tagged"`
	Children []*Node `json:"children"`
}

// Build groups paths by shared prefixes. Children are ordered by name and
// identical inputs always produce identical trees.
func Build(paths []tagpath.Path) []*Node {
	return build(paths, nil)
}

// BuildFromItems builds the tree over the union of all item tags and fills
// in per-node item counts.
func BuildFromItems(items []models.Item) []*Node {
	counts := make(map[string]int)
	var paths []tagpath.Path
	for _, it := range items {
		for _, p := range it.Tags.Paths() {
			if counts[p.String()] == 0 {
				paths = append(paths, p)
			}
			counts[p.String()]++
		}
	}
	return build(paths, counts)
}

func build(paths []tagpath.Path, counts map[string]int) []*Node {
	sorted := slices.Clone(paths)
	slices.SortFunc(sorted, tagpath.Compare)
	sorted = slices.Compact(sorted)

	var roots []*Node
	byPrefix := make(map[string]*Node)

	for _, p := range sorted {
		segs := p.Segments()
		var parent *Node
		for i := range segs {
			key := strings.Join(segs[:i+1], tagpath.Separator)
			node, ok := byPrefix[key]
			if !ok {
				node = &Node{
					Name:     segs[i],
					FullPath: tagpath.MustParse(key),
					Children: []*Node{},
				}
				byPrefix[key] = node
				if parent == nil {
					roots = append(roots, node)
				} else {
					parent.Children = append(parent.Children, node)
				}
			}
			parent = node
		}
		parent.Tagged = true
		parent.Count = counts[p.String()]
	}

	sortNodes(roots)
	return roots
}

// sortNodes orders siblings by name. Lexicographic order of full paths does
// not imply sibling order by name ("a-b" sorts before "a/b" but "a" < "a-b").
func sortNodes(nodes []*Node) {
	slices.SortFunc(nodes, func(a, b *Node) int { return strings.Compare(a.Name, b.Name) })
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// ExpandedAncestors returns every proper prefix of path, shortest first.
// A UI expands these to reveal the node for path.
func ExpandedAncestors(path tagpath.Path) []tagpath.Path {
	return path.Ancestors()
}

// Find returns the node for path, or nil.
func Find(roots []*Node, path tagpath.Path) *Node {
	level := roots
	var found *Node
	for _, seg := range path.Segments() {
		found = nil
		for _, n := range level {
			if n.Name == seg {
				found = n
				break
			}
		}
		if found == nil {
			return nil
		}
		level = found.Children
	}
	return found
}

// Walk visits nodes depth-first in display order. Returning false from fn
// skips the node's children.
func Walk(roots []*Node, fn func(n *Node, depth int) bool) {
	var visit func(nodes []*Node, depth int)
	visit = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			if fn(n, depth) {
				visit(n.Children, depth+1)
			}
		}
	}
	visit(roots, 0)
}

// Paths returns all node paths, structural ones included, in display order.
func Paths(roots []*Node) []tagpath.Path {
	var out []tagpath.Path
	Walk(roots, func(n *Node, _ int) bool {
		out = append(out, n.FullPath)
		return true
	})
	return out
}
