package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/stickies/internal/apperr"
	"github.com/starford/stickies/internal/tagpath"
	"github.com/starford/stickies/internal/taxonomy"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error    string `json:"error" validate:"required"`
	Affected *int   `json:"affected,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps domain errors to status codes. Unexpected errors are logged
// under op and reported as 500.
func writeError(w http.ResponseWriter, op string, err error) {
	var pe *taxonomy.PersistError
	switch {
	// A failed cascade save may wrap a store sentinel; the partial count
	// matters more than the cause.
	case errors.As(err, &pe):
		slog.Error(op+" failed", slog.String("item", pe.ItemID), slog.String("error", err.Error()))
		body := errorBody("item persist failed; retry the operation")
		body.Affected = &pe.Affected
		writeJSON(w, http.StatusInternalServerError, body)
	case errors.Is(err, tagpath.ErrInvalidPath), errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, taxonomy.ErrCyclicRename):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// decodeJSON reads a request body of at most 10 MB into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}
