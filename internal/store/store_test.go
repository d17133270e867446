package store

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"

	"github.com/starford/stickies/internal/apperr"
	"github.com/starford/stickies/internal/models"
	"github.com/starford/stickies/internal/tagpath"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	f, err := os.CreateTemp("", "stickies-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	s, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newItem(owner, title, body string, tags ...string) models.Item {
	set, err := tagpath.ParseSet(tags)
	if err != nil {
		panic(err)
	}
	return models.Item{OwnerID: owner, Title: title, Body: body, Tags: set}
}

func TestSchemaCreation(t *testing.T) {
	s := testStore(t)
	var count int
	if err := s.conn.QueryRow(`SELECT count(*) FROM items`).Scan(&count); err != nil {
		t.Fatalf("items table missing: %v", err)
	}
	if err := s.conn.QueryRow(`SELECT count(*) FROM item_tags`).Scan(&count); err != nil {
		t.Fatalf("item_tags table missing: %v", err)
	}
}

func TestSaveAndGetItem(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	saved, err := s.SaveItem(ctx, newItem("u", "Hello", "a #go note", "go", "lang/go"))
	if err != nil {
		t.Fatalf("SaveItem: %v", err)
	}
	if saved.ID == "" || saved.Checksum == "" || saved.Kind != models.KindNote {
		t.Errorf("saved = %+v", saved)
	}

	got, err := s.GetItem(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Title != "Hello" || got.Body != "a #go note" || got.OwnerID != "u" {
		t.Errorf("got = %+v", got)
	}
	if want := []string{"go", "lang/go"}; !reflect.DeepEqual(got.Tags.Strings(), want) {
		t.Errorf("tags = %v, want %v", got.Tags.Strings(), want)
	}
	if got.Checksum != saved.Checksum {
		t.Errorf("checksum = %q, want %q", got.Checksum, saved.Checksum)
	}
}

func TestGetItem_NotFound(t *testing.T) {
	s := testStore(t)
	if _, err := s.GetItem(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateItem_AlreadyExists(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	it := newItem("u", "a", "")
	it.ID = "fixed"
	if _, err := s.CreateItem(ctx, it); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateItem(ctx, it); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestUpdateItem_IfMatch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	saved, _ := s.SaveItem(ctx, newItem("u", "v1", ""))

	saved.Title = "v2"
	updated, err := s.UpdateItem(ctx, saved, saved.Checksum)
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	saved.Title = "v3"
	if _, err := s.UpdateItem(ctx, saved, saved.Checksum); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale update err = %v, want ErrConflict", err)
	}
	if _, err := s.UpdateItem(ctx, saved, updated.Checksum); err != nil {
		t.Errorf("fresh update: %v", err)
	}
	saved.ID = "missing"
	if _, err := s.UpdateItem(ctx, saved, ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing update err = %v", err)
	}
}

func TestListItems_OwnerScoped(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, _ = s.SaveItem(ctx, newItem("alice", "a", ""))
	_, _ = s.SaveItem(ctx, newItem("bob", "b", ""))

	items, err := s.ListItems(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Title != "a" {
		t.Errorf("items = %+v", items)
	}
}

func TestListAllTags(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, _ = s.SaveItem(ctx, newItem("u", "1", "", "work/a", "home"))
	_, _ = s.SaveItem(ctx, newItem("u", "2", "", "work/a", "work/b"))
	_, _ = s.SaveItem(ctx, newItem("other", "3", "", "secret"))

	paths, err := s.ListAllTags(ctx, "u")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, p := range paths {
		got = append(got, p.String())
	}
	if want := []string{"home", "work/a", "work/b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("tags = %v, want %v", got, want)
	}
}

func TestListItemsByTag_SegmentAware(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, _ = s.SaveItem(ctx, newItem("u", "work", "", "work"))
	_, _ = s.SaveItem(ctx, newItem("u", "sub", "", "work/x"))
	_, _ = s.SaveItem(ctx, newItem("u", "shop", "", "workshop"))

	items, err := s.ListItemsByTag(ctx, "u", tagpath.MustParse("work"))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Errorf("items = %+v, want work and work/x only", items)
	}
}

func TestSaveItem_ReplacesTagRows(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	it, _ := s.SaveItem(ctx, newItem("u", "t", "", "old"))
	it.Tags = tagpath.NewSet(tagpath.MustParse("new"))
	if _, err := s.SaveItem(ctx, it); err != nil {
		t.Fatal(err)
	}
	paths, _ := s.ListAllTags(ctx, "u")
	if len(paths) != 1 || paths[0].String() != "new" {
		t.Errorf("tags = %v", paths)
	}
}

func TestInvalidStoredTagIsDropped(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	it, _ := s.SaveItem(ctx, newItem("u", "t", "", "ok"))
	if _, err := s.conn.Exec(`UPDATE items SET tags = '["ok","bad//x"]' WHERE id = ?`, it.ID); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetItem(ctx, it.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Tags.Strings(), []string{"ok"}) {
		t.Errorf("tags = %v", got.Tags.Strings())
	}
}

func TestDeleteItem(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	it, _ := s.SaveItem(ctx, newItem("u", "gone", "", "x"))

	if err := s.DeleteItem(ctx, it.ID); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if _, err := s.GetItem(ctx, it.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("deleted item still readable: %v", err)
	}
	if paths, _ := s.ListAllTags(ctx, "u"); len(paths) != 0 {
		t.Errorf("tag rows left behind: %v", paths)
	}
	if err := s.DeleteItem(ctx, it.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestSources(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	it := newItem("u", "f", "")
	it.Source = "notes/f.md"
	saved, _ := s.SaveItem(ctx, it)
	_, _ = s.SaveItem(ctx, newItem("u", "api", ""))

	src, err := s.Sources(ctx, "u")
	if err != nil {
		t.Fatal(err)
	}
	if len(src) != 1 || src["notes/f.md"].ID != saved.ID {
		t.Errorf("sources = %+v", src)
	}
}

func TestSearch_Basic(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	it, _ := s.SaveItem(ctx, newItem("u", "Search Me", "uniqueword appears here"))
	_, _ = s.SaveItem(ctx, newItem("other", "Hidden", "uniqueword again"))

	results, err := s.Search(ctx, "u", "uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != it.ID {
		t.Errorf("search results = %+v, want 1 hit", results)
	}
}
