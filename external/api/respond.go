package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/foxseedlab/kikitori/internal/serviceerr"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// statusForError maps a collaborator failure onto an HTTP status.
func statusForError(err error) int {
	switch {
	case errors.Is(err, serviceerr.ErrDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, serviceerr.ErrRemoteService):
		return http.StatusBadGateway
	case errors.Is(err, serviceerr.ErrTransport):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	slog.Error("request failed", "error", err, "path", r.URL.Path, "status", status)
	writeError(w, status, err.Error())
}
