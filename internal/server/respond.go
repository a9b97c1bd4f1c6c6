package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/searchandrescuegg/firstaid/internal/emergency"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to write response", slog.String("error", err.Error()))
	}
}

func writeValidation(w http.ResponseWriter, r *http.Request, detail string) {
	slog.Info("rejected request", slog.String("path", r.URL.Path), slog.String("detail", detail), slog.String("request_id", middleware.GetReqID(r.Context())))
	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: detail})
}

// writeError logs err and answers with a fixed detail so adapter text never
// reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, err error, detail string) {
	kind := emergency.KindOf(err)

	attrs := []any{
		slog.String("error", err.Error()),
		slog.String("kind", kind.String()),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	}

	if kind == emergency.KindValidation {
		slog.Info("rejected request", attrs...)
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: detail})
		return
	}

	slog.Error("request failed", attrs...)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: detail})
}
