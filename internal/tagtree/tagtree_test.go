package tagtree

import (
	"reflect"
	"testing"

	"github.com/starford/stickies/internal/models"
	"github.com/starford/stickies/internal/tagpath"
)

func paths(ss ...string) []tagpath.Path {
	out := make([]tagpath.Path, len(ss))
	for i, s := range ss {
		out[i] = tagpath.MustParse(s)
	}
	return out
}

func TestBuild_Chain(t *testing.T) {
	roots := Build(paths("a", "a/b", "a/b/c"))
	if len(roots) != 1 || roots[0].Name != "a" {
		t.Fatalf("roots = %+v", roots)
	}
	b := roots[0].Children
	if len(b) != 1 || b[0].Name != "b" {
		t.Fatalf("a children = %+v", b)
	}
	c := b[0].Children
	if len(c) != 1 || c[0].Name != "c" || c[0].FullPath.String() != "a/b/c" {
		t.Fatalf("b children = %+v", c)
	}
	if len(c[0].Children) != 0 {
		t.Error("leaf should have no children")
	}
}

func TestBuild_StructuralNodes(t *testing.T) {
	roots := Build(paths("a/b/c"))
	n := Find(roots, tagpath.MustParse("a/b"))
	if n == nil {
		t.Fatal("structural node a/b missing")
	}
	if n.Tagged || n.Count != 0 {
		t.Errorf("a/b should be structural, got tagged=%v count=%d", n.Tagged, n.Count)
	}
	if leaf := Find(roots, tagpath.MustParse("a/b/c")); leaf == nil || !leaf.Tagged {
		t.Error("a/b/c should be tagged")
	}
}

func TestBuild_Deterministic(t *testing.T) {
	one := Build(paths("z", "a-b", "a/b", "a", "m/x", "m/a"))
	two := Build(paths("m/a", "a", "a/b", "m/x", "z", "a-b", "a"))
	if !reflect.DeepEqual(Paths(one), Paths(two)) {
		t.Errorf("different shapes:\n%v\n%v", Paths(one), Paths(two))
	}
	var names []string
	for _, r := range one {
		names = append(names, r.Name)
	}
	want := []string{"a", "a-b", "m", "z"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("root order = %v, want %v", names, want)
	}
}

func TestBuild_Empty(t *testing.T) {
	if roots := Build(nil); len(roots) != 0 {
		t.Errorf("expected no roots, got %d", len(roots))
	}
}

func TestBuildFromItems_Counts(t *testing.T) {
	items := []models.Item{
		{ID: "1", Tags: tagpath.NewSet(paths("work/a", "home")...)},
		{ID: "2", Tags: tagpath.NewSet(paths("work/a")...)},
		{ID: "3"},
	}
	roots := BuildFromItems(items)
	if n := Find(roots, tagpath.MustParse("work/a")); n == nil || n.Count != 2 {
		t.Errorf("work/a count = %+v", n)
	}
	if n := Find(roots, tagpath.MustParse("work")); n == nil || n.Count != 0 {
		t.Errorf("work count = %+v", n)
	}
	if n := Find(roots, tagpath.MustParse("home")); n == nil || n.Count != 1 {
		t.Errorf("home count = %+v", n)
	}
}

func TestExpandedAncestors(t *testing.T) {
	got := ExpandedAncestors(tagpath.MustParse("a/b/c"))
	want := paths("a", "a/b")
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ancestors = %v, want %v", got, want)
	}
	if got := ExpandedAncestors(tagpath.MustParse("a")); len(got) != 0 {
		t.Errorf("root ancestors = %v", got)
	}
}

func TestWalk_SkipChildren(t *testing.T) {
	roots := Build(paths("a/b", "c"))
	var seen []string
	Walk(roots, func(n *Node, _ int) bool {
		seen = append(seen, n.FullPath.String())
		return n.Name != "a"
	})
	want := []string{"a", "c"}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("seen = %v, want %v", seen, want)
	}
}
