// Package uploads stores pasted and imported images and hands back the URL
// they are served under.
package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/stickies/internal/apperr"
	"github.com/starford/stickies/internal/storage"
)

// DefaultMaxBytes caps an image when no limit is configured.
const DefaultMaxBytes = 10 << 20 // 10 MB

var (
	ErrTooLarge        = fmt.Errorf("uploads: image too large: %w", apperr.ErrInvalidInput)
	ErrUnsupportedType = fmt.Errorf("uploads: unsupported image type: %w", apperr.ErrInvalidInput)
	ErrContentMismatch = fmt.Errorf("uploads: content does not match type: %w", apperr.ErrInvalidInput)
)

var (
	mimeToExt = map[string]string{
		"image/png":     ".png",
		"image/jpeg":    ".jpg",
		"image/gif":     ".gif",
		"image/webp":    ".webp",
		"image/svg+xml": ".svg",
	}

	safeNameRe = regexp.MustCompile(`^[a-zA-Z0-9-]+\.(png|jpg|gif|webp|svg)$`)
)

// Store writes images through a storage provider.
type Store struct {
	files        storage.Provider
	maxBytes     int64
	publicPrefix string
}

// New returns a store over files. URLs are publicPrefix + "/" + name.
func New(files storage.Provider, maxBytes int64, publicPrefix string) *Store {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Store{
		files:        files,
		maxBytes:     maxBytes,
		publicPrefix: strings.TrimRight(publicPrefix, "/"),
	}
}

// MaxBytes returns the size limit for one image.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// UploadImage validates data against contentType, stores it under a fresh
// name and returns its URL.
func (s *Store) UploadImage(_ context.Context, data []byte, contentType string) (string, error) {
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), s.maxBytes)
	}
	mime := strings.TrimSpace(strings.Split(contentType, ";")[0])
	ext, ok := mimeToExt[mime]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	if err := validateMagicBytes(data, ext); err != nil {
		return "", err
	}

	name := uuid.NewString() + ext
	if err := s.files.Write(name, data); err != nil {
		return "", fmt.Errorf("uploads: save %s: %w", name, err)
	}
	return s.publicPrefix + "/" + name, nil
}

// Open returns the bytes and content type of a stored image. Only names
// produced by UploadImage are accepted.
func (s *Store) Open(name string) ([]byte, string, error) {
	if !safeNameRe.MatchString(name) {
		return nil, "", fmt.Errorf("uploads: invalid name %q: %w", name, apperr.ErrInvalidInput)
	}
	data, err := s.files.Read(name)
	if err != nil {
		return nil, "", fmt.Errorf("uploads: open: %w", err)
	}
	ct := "application/octet-stream"
	for mime, ext := range mimeToExt {
		if path.Ext(name) == ext {
			ct = mime
		}
	}
	return data, ct, nil
}

// validateMagicBytes verifies file content matches the declared extension.
func validateMagicBytes(data []byte, ext string) error {
	if ext == ".svg" {
		prefix := data
		if len(prefix) > 1024 {
			prefix = prefix[:1024]
		}
		if !bytes.Contains(prefix, []byte("<svg")) {
			return fmt.Errorf("%w: missing <svg tag", ErrContentMismatch)
		}
		return nil
	}

	detected := http.DetectContentType(data)
	if mimeToExt[strings.Split(detected, ";")[0]] != ext {
		return fmt.Errorf("%w: %s (detected: %s)", ErrContentMismatch, ext, detected)
	}
	return nil
}

// IsClientError reports whether err was caused by the upload itself rather
// than by storage.
func IsClientError(err error) bool {
	return errors.Is(err, apperr.ErrInvalidInput)
}
