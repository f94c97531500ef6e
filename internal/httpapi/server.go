package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/chesskite/chesskite-relay/internal/intent"
)

var ErrInvalidConfig = errors.New("httpapi: invalid config")

type Config struct {
	CORSOrigin string

	Now func() time.Time
}

// Handler serves the operational HTTP surface: health plus a queue-row
// lookup for operators.
type Handler struct {
	cfg   Config
	queue intent.Store
	log   *slog.Logger
}

func NewHandler(cfg Config, queue intent.Store, log *slog.Logger) (*Handler, error) {
	if queue == nil {
		return nil, fmt.Errorf("%w: nil queue", ErrInvalidConfig)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Handler{cfg: cfg, queue: queue, log: log}, nil
}

// Router builds the chi mux.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origin := h.cfg.CORSOrigin
	if origin == "" {
		origin = "*"
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{origin},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", h.health)
	r.Get("/queue/{id}", h.queueRow)
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": h.cfg.Now().UTC().Format(time.RFC3339),
	})
}

type queueRowResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Actor       string `json:"actor,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	Retries     int    `json:"retries"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	ProcessedAt string `json:"processed_at,omitempty"`
}

func (h *Handler) queueRow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	it, err := h.queue.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, intent.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		h.log.Error("queue row lookup", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	resp := queueRowResponse{
		ID:        it.ID,
		Kind:      string(it.Kind),
		Actor:     it.Actor,
		Status:    string(it.Status),
		Error:     it.Error,
		Retries:   it.Retries,
		CreatedAt: it.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: it.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if !it.ProcessedAt.IsZero() {
		resp.ProcessedAt = it.ProcessedAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
