package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AdamBeresnev/bracket-battles/internal/service"
)

type errorResponse struct {
	Error    string     `json:"error"`
	Boundary *time.Time `json:"boundary,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func InternalServerError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
}

func BadRequest(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		slog.Warn("bad request", "message", msg, "error", err)
	} else {
		slog.Warn("bad request", "message", msg)
	}
	WriteJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func NotFound(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		slog.Warn("not found", "message", msg, "error", err)
	} else {
		slog.Warn("not found", "message", msg)
	}
	WriteJSON(w, http.StatusNotFound, errorResponse{Error: msg})
}

// Error writes err with the status code of its domain error. Anything else is a 500.
func Error(w http.ResponseWriter, msg string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		InternalServerError(w, msg, err)
		return
	}

	slog.Warn("request rejected", "message", msg, "status", status, "error", err)

	resp := errorResponse{Error: err.Error()}
	var windowErr *service.RoundWindowError
	if errors.As(err, &windowErr) {
		resp.Boundary = &windowErr.Boundary
	}
	WriteJSON(w, status, resp)
}

func StatusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidEntry),
		errors.Is(err, service.ErrInvalidBracketSize),
		errors.Is(err, service.ErrInvalidSchedule),
		errors.Is(err, service.ErrInvalidCompetition),
		errors.Is(err, service.ErrEmptySelection),
		errors.Is(err, service.ErrInvalidImage):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrInsufficientEntries),
		errors.Is(err, service.ErrDuplicateEntry),
		errors.Is(err, service.ErrDeadlinePassed),
		errors.Is(err, service.ErrNotAcceptingEntries),
		errors.Is(err, service.ErrMatchNotVotable),
		errors.Is(err, service.ErrMatchNotReady),
		errors.Is(err, service.ErrRoundNotStarted),
		errors.Is(err, service.ErrRoundEnded),
		errors.Is(err, service.ErrNoEligibleHosts):
		return http.StatusConflict
	case errors.Is(err, service.ErrUploadsDisabled):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}
