package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/starford/stickies/internal/apperr"
)

func tempRoot(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func mustWrite(t *testing.T, s *FS, path, content string) {
	t.Helper()
	if err := s.Write(path, []byte(content)); err != nil {
		t.Fatalf("Write(%q): %v", path, err)
	}
}

func TestWriteAndRead(t *testing.T) {
	s := tempRoot(t)
	mustWrite(t, s, "a/b/item.md", "# Hello\n#work/q3\n")

	got, err := s.Read("a/b/item.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "# Hello\n#work/q3\n" {
		t.Errorf("content = %q", got)
	}
}

func TestWrite_Overwrites(t *testing.T) {
	s := tempRoot(t)
	mustWrite(t, s, "n.md", "first")
	mustWrite(t, s, "n.md", "second")

	got, _ := s.Read("n.md")
	if string(got) != "second" {
		t.Errorf("content = %q, want %q", got, "second")
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), tempPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestReadAndDelete_MissingIsNotFound(t *testing.T) {
	s := tempRoot(t)
	if _, err := s.Read("nope.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Read err = %v, want ErrNotFound", err)
	}
	if err := s.Delete("nope.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Delete err = %v, want ErrNotFound", err)
	}

	mustWrite(t, s, "del.md", "bye")
	if err := s.Delete("del.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("read after delete err = %v", err)
	}
}

func TestList(t *testing.T) {
	s := tempRoot(t)
	mustWrite(t, s, "a.md", "a")
	mustWrite(t, s, "sub/b.MD", "b")
	mustWrite(t, s, "readme.txt", "not md")
	mustWrite(t, s, ".hidden.md", "skip")
	mustWrite(t, s, ".obsidian/workspace.md", "skip")

	items, err := s.List("", ".md")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var paths []string
	for _, it := range items {
		paths = append(paths, it.Path)
		if it.Path == "sub/b.MD" && (it.Size != 1 || it.Checksum == "") {
			t.Errorf("info = %+v", it)
		}
	}
	sort.Strings(paths)
	if len(paths) != 2 || paths[0] != "a.md" || paths[1] != "sub/b.MD" {
		t.Errorf("paths = %v, want [a.md sub/b.MD]", paths)
	}

	all, err := s.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("unfiltered len = %d, want 3", len(all))
	}

	sub, err := s.List("sub")
	if err != nil {
		t.Fatal(err)
	}
	if len(sub) != 1 || sub[0].Path != "sub/b.MD" {
		t.Errorf("sub = %+v", sub)
	}
}

func TestOutsideRootRejected(t *testing.T) {
	s := tempRoot(t)

	for _, p := range []string{"../../etc/passwd", "../outside.md", "/etc/shadow", "a/../../x.md"} {
		if _, err := s.Read(p); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("Read(%q) err = %v, want ErrOutsideRoot", p, err)
		}
		if err := s.Write(p, []byte("x")); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("Write(%q) err = %v, want ErrOutsideRoot", p, err)
		}
		if err := s.Delete(p); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("Delete(%q) err = %v, want ErrInvalidInput", p, err)
		}
	}
	if err := s.Write("", []byte("x")); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("Write(\"\") err = %v", err)
	}
}

func TestEnsureFS_CreatesRoot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads", "images")
	s, err := EnsureFS(dir)
	if err != nil {
		t.Fatalf("EnsureFS: %v", err)
	}
	if s.Root() != dir {
		t.Errorf("root = %q, want %q", s.Root(), dir)
	}
}

func TestNewFS_Rejects(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for non-existent dir")
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFS(file); err == nil {
		t.Error("expected error when root is a file")
	}
}
