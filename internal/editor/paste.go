package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/starford/stickies/internal/markup"
)

// ErrUpload matches every failed image upload.
var ErrUpload = errors.New("editor: image upload failed")

// ErrNoUploader is returned by PasteImage when no uploader is configured.
var ErrNoUploader = errors.New("editor: no uploader configured")

// Uploader stores image bytes and returns the URL to reference them by.
type Uploader interface {
	UploadImage(ctx context.Context, data []byte, contentType string) (string, error)
}

// UploadError reports a failed paste. The paste stays pending and can be
// retried.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("editor: image upload failed: %v", e.Err)
}

func (e *UploadError) Unwrap() []error { return []error{ErrUpload, e.Err} }

// Pending is an image paste waiting for its upload.
type Pending struct {
	s           *Surface
	anchor      *anchor
	data        []byte
	contentType string

	mu   sync.Mutex
	done chan struct{}
	url  string
	err  error
}

// PasteImage starts uploading data and returns immediately. The image is
// inserted at the cursor position of the paste, adjusted for any edits made
// while the upload runs. The surface keeps accepting edits meanwhile.
func (s *Surface) PasteImage(ctx context.Context, data []byte, contentType string) (*Pending, error) {
	s.mu.Lock()
	if s.uploader == nil {
		s.mu.Unlock()
		return nil, ErrNoUploader
	}
	a := &anchor{pos: s.cursor}
	s.anchors = append(s.anchors, a)
	s.mu.Unlock()

	p := &Pending{s: s, anchor: a, data: data, contentType: contentType, done: make(chan struct{})}
	p.launch(ctx, p.done)
	return p, nil
}

// Close discards the results of uploads that have not resolved yet. In-flight
// uploads are not cancelled.
func (s *Surface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.anchors = nil
}

func (p *Pending) launch(ctx context.Context, done chan struct{}) {
	go func() {
		defer close(done)
		url, err := p.s.uploader.UploadImage(ctx, p.data, p.contentType)
		if err != nil {
			err = &UploadError{Err: err}
			p.s.logger.Error("image upload failed", slog.String("error", err.Error()))
		} else {
			p.s.insertImage(p.anchor, url)
		}
		p.mu.Lock()
		p.url, p.err = url, err
		p.mu.Unlock()
	}()
}

// Wait blocks until the current attempt resolves and returns the image URL.
func (p *Pending) Wait(ctx context.Context) (string, error) {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, p.err
}

// Err returns the error of the last resolved attempt, or nil.
func (p *Pending) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Retry starts a new upload attempt after a failure. The image still lands
// at the original paste position.
func (p *Pending) Retry(ctx context.Context) error {
	p.mu.Lock()
	select {
	case <-p.done:
	default:
		p.mu.Unlock()
		return errors.New("editor: upload still in progress")
	}
	if p.err == nil {
		p.mu.Unlock()
		return errors.New("editor: upload already succeeded")
	}
	done := make(chan struct{})
	p.done, p.err = done, nil
	p.mu.Unlock()

	p.launch(ctx, done)
	return nil
}

// Discard abandons the paste.
func (p *Pending) Discard() {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.dropAnchor(p.anchor)
}

// insertImage places an inline image at a. It is a no-op once the surface
// is closed or the paste was discarded.
func (s *Surface) insertImage(a *anchor, url string) {
	s.edit(func() {
		if s.closed || !slices.Contains(s.anchors, a) {
			return
		}
		pos := min(a.pos, len(s.text))
		s.dropAnchor(a)
		s.replace(pos, pos, markup.EncodeInline([]markup.Span{{Kind: markup.SpanImage, URL: url}}), true)
	})
}

// dropAnchor forgets a. Callers hold the lock.
func (s *Surface) dropAnchor(a *anchor) {
	s.anchors = slices.DeleteFunc(s.anchors, func(x *anchor) bool { return x == a })
}
