package vault

import (
	"reflect"
	"testing"

	"github.com/starford/stickies/internal/models"
	"github.com/starford/stickies/internal/tagpath"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\nid: n1\ntitle: Hello\nkind: task\ndone: true\ntags:\n  - go\n  - work/plans\n---\n# Heading\nBody #inline/tag text.\n")
	f, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ID != "n1" || f.Title != "Hello" || f.Kind != models.KindTask || !f.Done {
		t.Errorf("file = %+v", f)
	}
	if want := []string{"go", "inline/tag", "work/plans"}; !reflect.DeepEqual(f.Tags.Strings(), want) {
		t.Errorf("tags = %v, want %v", f.Tags.Strings(), want)
	}
	if f.Body != "# Heading\nBody #inline/tag text." {
		t.Errorf("body = %q", f.Body)
	}
	if !f.HasFrontmatter {
		t.Error("HasFrontmatter = false")
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	f, err := Parse([]byte("# Just a heading\nSome text.\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.HasFrontmatter {
		t.Error("expected no frontmatter")
	}
	if f.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", f.Title, "Just a heading")
	}
	if f.Kind != models.KindNote {
		t.Errorf("kind = %q", f.Kind)
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	f, err := Parse([]byte("---\n: invalid: yaml: {{{\n---\nBody\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.HasFrontmatter {
		t.Errorf("expected no frontmatter on invalid YAML")
	}
}

func TestParse_InvalidTagsReported(t *testing.T) {
	f, err := Parse([]byte("---\ntags: [ok, \"bad//x\", \"\"]\n---\nbody"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(f.Tags.Strings(), []string{"ok"}) {
		t.Errorf("tags = %v", f.Tags.Strings())
	}
	if len(f.InvalidTags) != 2 {
		t.Errorf("invalid = %v", f.InvalidTags)
	}
}

func TestParse_UnknownKind(t *testing.T) {
	if _, err := Parse([]byte("---\nkind: habit\n---\nx")); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestRender_RoundTrip(t *testing.T) {
	it := models.Item{
		ID:    "abc",
		Kind:  models.KindTask,
		Title: "Ship",
		Body:  "- [x] done #proj/a",
		Tags:  tagpath.NewSet(tagpath.MustParse("proj/a"), tagpath.MustParse("home")),
		Done:  true,
	}
	data, err := Render(it)
	if err != nil {
		t.Fatal(err)
	}
	f, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if f.ID != it.ID || f.Title != it.Title || f.Kind != it.Kind || f.Done != it.Done || f.Body != it.Body {
		t.Errorf("parsed = %+v", f)
	}
	if !f.Tags.Equal(it.Tags) {
		t.Errorf("tags = %v, want %v", f.Tags.Strings(), it.Tags.Strings())
	}
}
