package webapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/spboyer/promptbench/internal/graders"
	"github.com/spboyer/promptbench/internal/models"
	"github.com/spboyer/promptbench/internal/orchestration"
	"github.com/spboyer/promptbench/internal/store"
)

// Version is set at build time or defaults to dev.
var Version = "0.1.0-dev"

// maxBodyBytes caps request bodies; prompts and schemas can be large.
const maxBodyBytes = 10 << 20

// Services are the components the API is served from.
type Services struct {
	Runs      RunService
	Validator RunValidator
	Catalog   ModelCatalog
	Logger    *slog.Logger

	// AllowedOrigins is also applied to websocket upgrades. When empty,
	// only same-origin upgrades are accepted.
	AllowedOrigins []string
}

// Handlers holds the HTTP handler methods for the web API.
type Handlers struct {
	runs      RunService
	validator RunValidator
	catalog   ModelCatalog
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

// NewHandlers creates a new Handlers from svc.
func NewHandlers(svc Services) *Handlers {
	logger := svc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handlers{
		runs:      svc.Runs,
		validator: svc.Validator,
		catalog:   svc.Catalog,
		logger:    logger,
	}

	if len(svc.AllowedOrigins) > 0 {
		allowed := originSet(svc.AllowedOrigins)
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		}
	}
	return h
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// HandleCreateRun persists a run, starts it and returns it with 201. The
// results are all pending; progress is observed through the stream
// endpoints.
func (h *Handlers) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req orchestration.CreateRunRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	run, err := h.runs.CreateRun(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// HandleRuns lists runs newest first, optionally filtered by promptId.
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.ListFilter{PromptID: r.URL.Query().Get("promptId")}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	runs, err := h.runs.ListRuns(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// HandleRunDetail returns the current stored snapshot of one run.
func (h *Handlers) HandleRunDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "run id is required")
		return
	}

	run, err := h.runs.GetRun(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HandleValidate grades completed results of a run.
func (h *Handlers) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req graders.ValidateRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, err := h.validator.Validate(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleModels lists the backend's models. ?refresh=true bypasses the cache.
func (h *Handlers) HandleModels(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("refresh") == "true"

	list, err := h.catalog.ListModels(r.Context(), force)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// RegisterRoutes registers all web API routes on the given mux. Run routes
// are served under both /api/runs and /api/run.
func RegisterRoutes(mux *http.ServeMux, svc Services) {
	h := NewHandlers(svc)
	mux.HandleFunc("GET /api/health", h.HandleHealth)

	for _, prefix := range []string{"/api/runs", "/api/run"} {
		mux.HandleFunc("POST "+prefix, h.HandleCreateRun)
		mux.HandleFunc("GET "+prefix, h.HandleRuns)
		mux.HandleFunc("GET "+prefix+"/{id}", h.HandleRunDetail)
		mux.HandleFunc("GET "+prefix+"/{id}/stream", h.HandleRunStream)
		mux.HandleFunc("GET "+prefix+"/{id}/ws", h.HandleRunSocket)
	}

	mux.HandleFunc("POST /api/validate", h.HandleValidate)
	mux.HandleFunc("GET /api/models", h.HandleModels)
}

// CORSMiddleware wraps a handler with CORS headers.
// If allowedOrigins is empty, no CORS header is set (same-origin only).
// Otherwise, the request Origin is checked against the allowed list; "*"
// allows any origin.
func CORSMiddleware(next http.Handler, allowedOrigins ...string) http.Handler {
	allowed := originSet(allowedOrigins)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowed[origin] || allowed["*"]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeServiceError maps domain errors onto HTTP status codes.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	var reqErr *models.RequestValidationError

	switch {
	case errors.As(err, &reqErr):
		writeError(w, http.StatusBadRequest, reqErr.Error())
	case errors.Is(err, store.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "run not found")
	default:
		h.logger.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func originSet(origins []string) map[string]bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return allowed
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code})
}
