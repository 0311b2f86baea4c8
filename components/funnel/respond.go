package funnel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/sportcrm/internal/board"
	"github.com/yanizio/sportcrm/internal/listcache"
	"github.com/yanizio/sportcrm/internal/logger"
	"github.com/yanizio/sportcrm/internal/transition"
	"github.com/yanizio/sportcrm/internal/trial"
)

// maxBody caps JSON request bodies.
const maxBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP codes.  Anything unrecognised is a
// failed write or read against the store.
func statusFor(err error) int {
	switch {
	case errors.Is(err, transition.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, trial.ErrNotFound), errors.Is(err, board.ErrUnknownInteraction):
		return http.StatusNotFound
	case errors.Is(err, transition.ErrUnchanged),
		errors.Is(err, board.ErrSameColumn),
		errors.Is(err, board.ErrNoPending),
		errors.Is(err, board.ErrBusy),
		errors.Is(err, board.ErrStaleSource),
		errors.Is(err, board.ErrAlreadyPending):
		return http.StatusConflict
	case errors.Is(err, listcache.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusBadGateway
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	body := errorBody{Error: err.Error()}
	var ve *transition.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	if code >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Warnw("funnel request failed",
			"path", r.URL.Path, "code", code, "err", err)
	}
	writeJSON(w, code, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// decode reads a JSON body into dst.  An empty body leaves dst untouched.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}
