package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/markdave123-py/pawls/internal/services"
)

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encode response", "error", err)
	}
}

type errorBody struct {
	Detail string `json:"detail"`
}

// writeError maps service errors onto status codes. Only the messages of
// client errors are echoed back.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error, notFound string) {
	switch {
	case errors.Is(err, services.ErrForbidden):
		writeJSON(w, logger, http.StatusForbidden, errorBody{Detail: "Forbidden"})
	case errors.Is(err, services.ErrNotFound):
		if notFound == "" {
			notFound = "Not found"
		}
		writeJSON(w, logger, http.StatusNotFound, errorBody{Detail: notFound})
	case errors.Is(err, services.ErrInvalidIdentifier), errors.Is(err, services.ErrInvalidRequest):
		writeJSON(w, logger, http.StatusBadRequest, errorBody{Detail: err.Error()})
	case errors.Is(err, services.ErrProcessingFailed):
		writeJSON(w, logger, http.StatusInternalServerError, errorBody{Detail: "Error processing PDF"})
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, logger, http.StatusInternalServerError, errorBody{Detail: "Internal server error"})
	}
}
