// Package storage is a rooted file-system abstraction shared by the markdown
// vault and the image upload store.
package storage

import "time"

// FileInfo describes one file under a provider root.
type FileInfo struct {
	Path      string // slash-separated, relative to the root
	Size      int64
	Checksum  string
	UpdatedAt time.Time
}

// Provider is a set of file operations confined to one root. Paths are
// slash-separated and relative to the root.
type Provider interface {
	List(dir string, exts ...string) ([]FileInfo, error)
	Read(path string) ([]byte, error)
	Write(path string, content []byte) error
	Delete(path string) error
	// Root returns the absolute root directory.
	Root() string
}
