// Package ingest recebe entradas de log de clientes autenticados e as grava
// num arquivo (uma linha JSON por entrada).
package ingest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"access-gateway/middleware/authz"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const maxBodyBytes = 64 << 10

// Entry é o payload aceito.
type Entry struct {
	// Timestamp é o horário do cliente, em qualquer formato; só é repassado.
	Timestamp string         `json:"timestamp" validate:"required,max=64"`
	Level     string         `json:"level" validate:"required,oneof=debug info warn error fatal"`
	Message   string         `json:"message" validate:"required,max=4096"`
	Service   string         `json:"service,omitempty" validate:"max=128"`
	Data      map[string]any `json:"data,omitempty"`
}

type Handler struct {
	sink     *slog.Logger
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler grava as entradas em w. logger recebe os erros do próprio handler.
func NewHandler(w io.Writer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	sink := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return &Handler{sink: sink, logger: logger, validate: validator.New(validator.WithRequiredStructEnabled())}
}

type response struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, response{Message: "Unauthorized"})
		return
	}

	var e Entry
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&e); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "Invalid log entry"})
		return
	}
	e.Level = strings.ToLower(strings.TrimSpace(e.Level))
	e.Timestamp = strings.TrimSpace(e.Timestamp)
	if err := h.validate.Struct(e); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "Invalid log entry"})
		return
	}

	id := uuid.NewString()
	attrs := []slog.Attr{
		slog.String("entry_id", id),
		slog.String("client_time", e.Timestamp),
		slog.String("subject", p.Subject),
	}
	if e.Service != "" {
		attrs = append(attrs, slog.String("service", e.Service))
	}
	if len(e.Data) > 0 {
		attrs = append(attrs, slog.Any("data", e.Data))
	}
	h.sink.LogAttrs(r.Context(), levelOf(e.Level), e.Message, attrs...)

	writeJSON(w, http.StatusOK, response{Message: "Log entry ingested successfully", ID: id})
}

func levelOf(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "fatal":
		return slog.LevelError + 4
	default:
		return slog.LevelInfo
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
