package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kirychukyurii/domain-search/internal/model"
	"github.com/kirychukyurii/domain-search/internal/service"
	"github.com/kirychukyurii/domain-search/pkg/api"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// Options configures the HTTP handler
type Options struct {
	BasePath    string
	KeepAlive   time.Duration // interval of SSE keep-alive comments
	CreateRate  float64       // job creations per second per client, 0 disables
	CreateBurst int
	Metrics     http.Handler // served on /metrics when set
}

// Handler holds the HTTP handlers and dependencies
type Handler struct {
	orchestrator service.Orchestrator
	logger       *slog.Logger
	opts         Options
	limiter      *createLimiter
}

// NewHandler creates a new HTTP handler
func NewHandler(orchestrator service.Orchestrator, opts Options, logger *slog.Logger) *Handler {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 15 * time.Second
	}
	return &Handler{
		orchestrator: orchestrator,
		logger:       logger,
		opts:         opts,
		limiter:      newCreateLimiter(opts.CreateRate, opts.CreateBurst),
	}
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.loggingMiddleware)
	r.Use(middleware.Recoverer)

	routesHandler := h.createRoutes()

	// If base path is configured, mount routes on that path
	if h.opts.BasePath != "" {
		r.Mount(h.opts.BasePath, routesHandler)
	} else {
		r.Mount("/", routesHandler)
	}

	return r
}

func (h *Handler) createRoutes() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", h.Health)

		r.Route("/jobs", func(r chi.Router) {
			r.With(h.limiter.middleware).Post("/", h.CreateJob)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetJob)
				r.Get("/results", h.GetResults)
				r.Get("/events", h.StreamEvents)
				r.Get("/followup", h.GetFollowup)
				r.Post("/resume", h.Resume)
				r.Post("/cancel", h.Cancel)
			})
		})
	})

	if h.opts.Metrics != nil {
		r.Handle("/metrics", h.opts.Metrics)
	}

	return r
}

// loggingMiddleware logs HTTP requests
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr),
		)
		next.ServeHTTP(w, r)
	})
}

// respondJSON writes a JSON response
func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response",
			slog.String("error", err.Error()),
		)
	}
}

// respondError writes an error response
func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, api.ErrorResponse{Error: message})
}

// respondServiceError maps orchestrator errors to HTTP statuses
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("op", op),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "failed to " + op
	}
	h.respondJSON(w, status, api.ErrorResponse{Error: message, Code: code})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrInvalidBrief):
		return http.StatusBadRequest, "invalid_brief"
	case errors.Is(err, model.ErrNotAwaiting):
		return http.StatusConflict, "not_awaiting"
	case errors.Is(err, model.ErrAlreadyTerminal):
		return http.StatusConflict, "already_terminal"
	case errors.Is(err, model.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, model.ErrBusy):
		return http.StatusServiceUnavailable, "busy"
	case errors.Is(err, model.ErrShuttingDown):
		return http.StatusServiceUnavailable, "shutting_down"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// decodeJSON reads a bounded JSON body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
