package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/stickies/internal/apperr"
	"github.com/starford/stickies/internal/uploads"
)

// ImageStore stores uploaded images. *uploads.Store satisfies it.
type ImageStore interface {
	UploadImage(ctx context.Context, data []byte, contentType string) (string, error)
	Open(name string) ([]byte, string, error)
	MaxBytes() int64
}

var _ ImageStore = (*uploads.Store)(nil)

// UploadHandler serves and accepts images.
type UploadHandler struct {
	store ImageStore
}

// NewUploadHandler creates a handler over store.
func NewUploadHandler(store ImageStore) *UploadHandler {
	return &UploadHandler{store: store}
}

// ServeFile handles GET /uploads/{name}.
func (h *UploadHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	data, ct, err := h.store.Open(chi.URLParam(r, "name"))
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if ct == "image/svg+xml" {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	}
	_, _ = w.Write(data)
}

// Upload handles POST /api/uploads (multipart/form-data, field "file").
//
//	@Summary		Upload an image
//	@Tags			uploads
//	@Accept			mpfd
//	@Produce		json
//	@Param			file	formData	file	true	"Image"
//	@Success		201		{object}	UploadResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/uploads [post]
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	limit := h.store.MaxBytes() + 1<<20 // room for multipart framing
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	ct := header.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}

	url, err := h.store.UploadImage(r.Context(), data, ct)
	if err != nil {
		if uploads.IsClientError(err) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		slog.Error("upload failed", slog.String("filename", header.Filename), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("upload failed"))
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{URL: url, Size: len(data)})
}
