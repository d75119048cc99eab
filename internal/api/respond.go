package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mizuha/annoset/internal/errs"
)

type responder struct {
	logger zerolog.Logger
}

func (rd responder) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	jsonData, err := json.Marshal(data)
	if err != nil {
		rd.logger.Error().Err(err).Msg("error marshaling response data")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(jsonData); err != nil {
		rd.logger.Error().Err(err).Msg("error writing response")
	}
}

// writeError maps kinded errors to their status; anything unkinded is
// logged and reported as a generic internal error.
func (rd responder) writeError(w http.ResponseWriter, err error) {
	var kinded *errs.Error
	if !errors.As(err, &kinded) {
		rd.logger.Error().Err(err).Msg("unexpected error")
		rd.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "internal",
			"message": "an unexpected error occurred",
		})
		return
	}

	rd.writeJSON(w, errs.StatusCode(kinded), map[string]any{
		"error":   string(kinded.Kind),
		"message": kinded.Detail,
	})
}
