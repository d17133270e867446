package itemservice

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/starford/stickies/internal/apperr"
	"github.com/starford/stickies/internal/models"
	"github.com/starford/stickies/internal/tagpath"
	"github.com/starford/stickies/internal/tagtree"
	"github.com/starford/stickies/internal/taxonomy"
	"github.com/starford/stickies/internal/testutil"
)

type recorder struct {
	mu    sync.Mutex
	items []string
	tags  int
}

func (r *recorder) PublishItemEvent(kind, owner, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, kind+":"+id)
}

func (r *recorder) PublishTagsChanged(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags++
}

type fakeFiles struct {
	mu      sync.Mutex
	written map[string]models.Item
	deleted []string
}

func (f *fakeFiles) WriteBack(it models.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if it.Source == "" {
		return nil
	}
	f.written[it.Source] = it
	return nil
}

func (f *fakeFiles) DeleteFile(it models.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if it.Source != "" {
		f.deleted = append(f.deleted, it.Source)
	}
	return nil
}

func setup(t *testing.T) (*Service, *recorder, *fakeFiles) {
	t.Helper()
	rec := &recorder{}
	files := &fakeFiles{written: map[string]models.Item{}}
	svc := New(testutil.TestStore(t), 1,
		WithNotifier(rec), WithFileSync(files), WithLogger(testutil.QuietLogger()))
	return svc, rec, files
}

func TestCreateItem_MergesInlineTags(t *testing.T) {
	svc, rec, _ := setup(t)
	ctx := context.Background()

	it, err := svc.CreateItem(ctx, "u1", ItemInput{
		Title: "Plan",
		Body:  "# Plan\nship #proj/a   \n",
		Tags:  []string{"work"},
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if got, want := it.Tags.Strings(), []string{"proj/a", "work"}; !equal(got, want) {
		t.Errorf("tags = %v, want %v", got, want)
	}
	if it.Body != "# Plan\n\nship #proj/a" {
		t.Errorf("body not canonical: %q", it.Body)
	}
	if it.Kind != models.KindNote {
		t.Errorf("kind = %q", it.Kind)
	}
	if len(rec.items) != 1 || rec.items[0] != "created:"+it.ID {
		t.Errorf("events = %v", rec.items)
	}
}

func TestCreateItem_RejectsInvalidInput(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.CreateItem(ctx, "u1", ItemInput{Tags: []string{"a//b"}}); !errors.Is(err, tagpath.ErrInvalidPath) {
		t.Errorf("bad tag err = %v", err)
	}
	if _, err := svc.CreateItem(ctx, "u1", ItemInput{Kind: "event"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("bad kind err = %v", err)
	}
}

func TestGetItem_OtherOwnerIsNotFound(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	it, err := svc.CreateItem(ctx, "u1", ItemInput{Body: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetItem(ctx, "u2", it.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateItem_IfMatch(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	it, err := svc.CreateItem(ctx, "u1", ItemInput{Body: "v1"})
	if err != nil {
		t.Fatal(err)
	}

	up, err := svc.UpdateItem(ctx, "u1", it.ID, ItemInput{Body: "v2 #new"}, it.Checksum)
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if !up.Tags.Contains(tagpath.MustParse("new")) {
		t.Errorf("inline tag not merged: %v", up.Tags.Strings())
	}

	if _, err := svc.UpdateItem(ctx, "u1", it.ID, ItemInput{Body: "v3"}, it.Checksum); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale ifMatch err = %v, want ErrConflict", err)
	}
}

func TestRenameTag_CascadesAndNotifies(t *testing.T) {
	svc, rec, files := setup(t)
	ctx := context.Background()

	for _, in := range []ItemInput{
		{Body: "a", Tags: []string{"proj/a"}},
		{Body: "b", Tags: []string{"proj/b", "misc"}},
		{Body: "c", Tags: []string{"other"}},
	} {
		if _, err := svc.CreateItem(ctx, "u1", in); err != nil {
			t.Fatal(err)
		}
	}

	res, err := svc.RenameTag(ctx, "u1", "proj", "work/proj")
	if err != nil {
		t.Fatalf("RenameTag: %v", err)
	}
	if res.Affected != 2 {
		t.Errorf("affected = %d, want 2", res.Affected)
	}
	if rec.tags != 1 {
		t.Errorf("tags events = %d, want 1", rec.tags)
	}
	if len(files.written) != 0 {
		t.Errorf("items without a source were written back: %v", files.written)
	}

	tags, err := svc.KnownTags(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"misc", "other", "work/proj/a", "work/proj/b"}
	if got := pathStrings(tags); !equal(got, want) {
		t.Errorf("tags = %v, want %v", got, want)
	}

	if _, err := svc.RenameTag(ctx, "u1", "work", "work/x"); !errors.Is(err, taxonomy.ErrCyclicRename) {
		t.Errorf("cyclic err = %v", err)
	}
}

func TestRenameTag_ResaveKeepsNewTag(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	it, err := svc.CreateItem(ctx, "u1", ItemInput{Body: "ship #work/a now"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RenameTag(ctx, "u1", "work", "job"); err != nil {
		t.Fatal(err)
	}

	cur, err := svc.GetItem(ctx, "u1", it.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Body != "ship #job/a now" {
		t.Errorf("body = %q", cur.Body)
	}
	up, err := svc.UpdateItem(ctx, "u1", it.ID, ItemInput{Body: cur.Body, Tags: cur.Tags.Strings()}, cur.Checksum)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := up.Tags.Strings(), []string{"job/a"}; !equal(got, want) {
		t.Errorf("tags after re-save = %v, want %v", got, want)
	}
}

func TestMoveAndDeleteTag(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	if _, err := svc.CreateItem(ctx, "u1", ItemInput{Tags: []string{"a/b/c", "x"}}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.MoveTag(ctx, "u1", "a/b", ""); err != nil {
		t.Fatalf("MoveTag: %v", err)
	}
	if _, err := svc.DeleteTag(ctx, "u1", "x"); err != nil {
		t.Fatalf("DeleteTag: %v", err)
	}

	roots, err := svc.TagTree(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := pathStrings(tagtree.Paths(roots)), []string{"b", "b/c"}; !equal(got, want) {
		t.Errorf("tree paths = %v, want %v", got, want)
	}
}

func TestAddChildTag(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	it, err := svc.CreateItem(ctx, "u1", ItemInput{Tags: []string{"proj"}})
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.AddChildTag(ctx, "u1", "proj", "new", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Path.String() != "proj/new" || res.Persisted {
		t.Errorf("transient result = %+v", res)
	}
	if known, _ := svc.KnownTags(ctx, "u1"); len(known) != 1 {
		t.Errorf("transient child was persisted: %v", pathStrings(known))
	}

	res, err = svc.AddChildTag(ctx, "u1", "proj", "new", it.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Persisted {
		t.Error("child with item id should be persisted")
	}
	got, _ := svc.GetItem(ctx, "u1", it.ID)
	if !got.Tags.Contains(tagpath.MustParse("proj/new")) {
		t.Errorf("tags = %v", got.Tags.Strings())
	}

	if _, err := svc.AddChildTag(ctx, "u1", "proj", "a/b", ""); !errors.Is(err, tagpath.ErrInvalidPath) {
		t.Errorf("slash in name err = %v", err)
	}
}

func TestSuggest(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	if _, err := svc.CreateItem(ctx, "u1", ItemInput{Tags: []string{"Project/x", "proactive", "home"}}); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Suggest(ctx, "u1", "#pro")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Project/x", "proactive"}; !equal(pathStrings(got), want) {
		t.Errorf("suggest = %v, want %v", pathStrings(got), want)
	}
}

func TestDeleteItem_RemovesSourceFile(t *testing.T) {
	svc, rec, files := setup(t)
	ctx := context.Background()
	it, err := svc.CreateItem(ctx, "u1", ItemInput{Body: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteItem(ctx, "u1", it.ID); err != nil {
		t.Fatal(err)
	}
	if len(files.deleted) != 0 {
		t.Errorf("deleted = %v, item had no source", files.deleted)
	}
	if last := rec.items[len(rec.items)-1]; last != "deleted:"+it.ID {
		t.Errorf("last event = %q", last)
	}
	if err := svc.DeleteItem(ctx, "u1", it.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func pathStrings(ps []tagpath.Path) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
