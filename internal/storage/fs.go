package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/stickies/internal/apperr"
	"github.com/starford/stickies/internal/checksum"
)

// ErrOutsideRoot is returned for paths that are absolute or resolve outside
// the provider root.
var ErrOutsideRoot = fmt.Errorf("storage: path outside root: %w", apperr.ErrInvalidInput)

const tempPrefix = ".stickies-tmp-"

// FS implements Provider on a local directory.
type FS struct {
	root string
}

var _ Provider = (*FS)(nil)

// NewFS returns a provider rooted at an existing directory; see EnsureFS.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// EnsureFS creates root if needed and returns a provider for it.
func EnsureFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return NewFS(root)
}

// Root returns the absolute root directory.
func (f *FS) Root() string { return f.root }

// resolve maps a slash-separated relative path to an absolute one under root.
func (f *FS) resolve(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	abs := filepath.Join(f.root, filepath.FromSlash(rel))
	if abs != f.root && !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return abs, nil
}

// List walks dir and describes every file whose name ends in one of exts
// (case-insensitive). Hidden files and directories are skipped, which also
// hides in-flight temp files and tool folders such as .git.
func (f *FS) List(dir string, exts ...string) ([]FileInfo, error) {
	base, err := f.resolve(dir)
	if err != nil {
		return nil, err
	}
	var out []FileInfo
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		hidden := strings.HasPrefix(d.Name(), ".") && p != base
		if d.IsDir() {
			if hidden {
				return fs.SkipDir
			}
			return nil
		}
		if hidden || !hasExt(d.Name(), exts) {
			return nil
		}
		fi, err := f.describe(p, d)
		if err != nil {
			return err
		}
		out = append(out, fi)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", dir, err)
	}
	return out, nil
}

func (f *FS) describe(abs string, d fs.DirEntry) (FileInfo, error) {
	info, err := d.Info()
	if err != nil {
		return FileInfo{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return FileInfo{}, err
	}
	rel, err := filepath.Rel(f.root, abs)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Path:      filepath.ToSlash(rel),
		Size:      info.Size(),
		Checksum:  checksum.Sum(data),
		UpdatedAt: info.ModTime(),
	}, nil
}

// Read returns the content of path. A missing file yields apperr.ErrNotFound.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, wrapMissing("read", path, err)
	}
	return data, nil
}

// Write replaces path with content via a synced temp file and a rename, so
// readers see either the old or the new content.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.resolve(path)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("%w: empty path", ErrOutsideRoot)
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	tmpName, err := writeTemp(dir, content)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, abs); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

func writeTemp(dir string, content []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp: %w", err)
	}
	name := tmp.Name()
	fail := func(op string, err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("storage: %s: %w", op, err)
	}
	if _, err := tmp.Write(content); err != nil {
		return fail("write temp", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("fsync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("storage: close temp: %w", err)
	}
	return name, nil
}

// Delete removes path. A missing file yields apperr.ErrNotFound.
func (f *FS) Delete(path string) error {
	abs, err := f.resolve(path)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("%w: empty path", ErrOutsideRoot)
	}
	if err := os.Remove(abs); err != nil {
		return wrapMissing("delete", path, err)
	}
	return nil
}

func wrapMissing(op, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: %s %s: %w", op, path, apperr.ErrNotFound)
	}
	return fmt.Errorf("storage: %s %s: %w", op, path, err)
}

func hasExt(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, e := range exts {
		if strings.HasSuffix(lower, strings.ToLower(e)) {
			return true
		}
	}
	return false
}
