package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/yndnr/rtcr-go/internal/core/domain"
	"github.com/yndnr/rtcr-go/internal/storage/snapshot"
	"github.com/yndnr/rtcr-go/internal/telemetry/logger"
)

const codeInternal = "RC-SYS-5000"

// SnapshotSource returns the last committed snapshot.
type SnapshotSource interface {
	Snapshot() (*domain.Snapshot, error)
}

// Archive lists archived snapshots and dumps the whole archive.
type Archive interface {
	List(ctx context.Context) ([]*snapshot.Info, error)
	Export(ctx context.Context, w io.Writer) error
}

// Config wires the status endpoints.
type Config struct {
	Engine  SnapshotSource
	Archive Archive
	Metrics http.Handler
	Logger  logger.Logger
}

// Handler serves the status endpoints.
type Handler struct {
	engine  SnapshotSource
	archive Archive
	logger  logger.Logger
	mux     *http.ServeMux
}

// NewHandler builds the routed handler wrapped in the middleware chain.
func NewHandler(cfg Config) http.Handler {
	l := cfg.Logger
	if l == nil {
		l = logger.Default()
	}
	h := &Handler{
		engine:  cfg.Engine,
		archive: cfg.Archive,
		logger:  l,
		mux:     http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)
	h.mux.HandleFunc("GET /snapshot", h.handleSnapshot)
	if h.archive != nil {
		h.mux.HandleFunc("GET /archive", h.handleArchive)
		h.mux.HandleFunc("GET /archive/export", h.handleExport)
	}
	if cfg.Metrics != nil {
		h.mux.Handle("GET /metrics", cfg.Metrics)
	}

	return Chain(h.mux, RequestID(), Trace(), AccessLog(l), Recover(l))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := h.engine.Snapshot(); err != nil {
		h.writeError(w, r, http.StatusServiceUnavailable, domain.CodeOf(err), "no committed snapshot yet")
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.Snapshot()
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, Summarize(s))
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	infos, err := h.archive.List(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, infos)
}

// handleExport streams the archive dump. Once streaming started, errors
// can only be logged.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="rtcr-archive.dump"`)
	if err := h.archive.Export(r.Context(), w); err != nil {
		h.logger.Error("archive export failed", "error", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	if err := writeEnvelope(w, status, NewResponse(GetRequestIDFromContext(r.Context()), data)); err != nil {
		h.logger.Warn("failed to encode response", "path", r.URL.Path, "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	_ = writeEnvelope(w, status, NewErrorResponse(GetRequestIDFromContext(r.Context()), code, message))
}

func writeEnvelope(w http.ResponseWriter, status int, resp *Response) error {
	w.Header().Set("Content-Type", "application/json")
	if status >= http.StatusBadRequest {
		w.Header().Set("X-Error-Code", resp.Code)
	}
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(resp)
}

// handleError maps an error to a status by its domain class. Internal
// errors are logged and answered without their message.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, snapshot.ErrNoSnapshots) || errors.Is(err, snapshot.ErrNotFound) {
		h.writeError(w, r, http.StatusNotFound, domain.ErrNoSnapshot.Code, err.Error())
		return
	}
	status := statusOf(domain.ClassOf(err))
	if status == http.StatusInternalServerError {
		code := domain.CodeOf(err)
		if code == "" {
			code = codeInternal
		}
		h.logger.Error("internal error", "path", r.URL.Path, "error", err)
		h.writeError(w, r, status, code, "internal server error")
		return
	}
	h.writeError(w, r, status, domain.CodeOf(err), err.Error())
}

func statusOf(c domain.ErrorClass) int {
	switch c {
	case domain.ClassInvalid:
		return http.StatusBadRequest
	case domain.ClassNotFound:
		return http.StatusNotFound
	case domain.ClassConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
