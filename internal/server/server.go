// Package server exposes health, status, metrics, entity inspection and the
// skipped-request log over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/rpattn/entityindexer/internal/domain"
	"github.com/rpattn/entityindexer/internal/metrics"
	"github.com/rpattn/entityindexer/internal/middleware"
	"github.com/rpattn/entityindexer/internal/repository"
)

// StatusSource reports the indexing checkpoint.
type StatusSource interface {
	LastIndexedBlock(ctx context.Context) (domain.IndexedBlock, bool, error)
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
}

type handler struct {
	status StatusSource
	store  repository.Store
	logger *zap.Logger
}

// NewRouter builds the ops HTTP handler.
func NewRouter(status StatusSource, store repository.Store, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{status: status, store: store, logger: logger.Named("ops")}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})

	r := chi.NewRouter()
	r.Use(corsHandler.Handler)
	r.Use(middleware.Logging(h.logger))

	r.Get("/healthz", h.handleHealth)
	r.Get("/status", h.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Metrics.Registry(), promhttp.HandlerOpts{}))
	r.Route("/entities/{entityType}/{entityID}", func(r chi.Router) {
		r.Get("/", h.handleEntity)
		r.Get("/diff", h.handleEntityDiff)
	})
	r.Get("/blocks/{blockNumber}/skipped", h.handleSkipped)
	return r
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Indexed     bool       `json:"indexed"`
	BlockNumber int64      `json:"block_number,omitempty"`
	BlockHash   string     `json:"block_hash,omitempty"`
	Accepted    int        `json:"accepted"`
	Skipped     int        `json:"skipped"`
	IndexedAt   *time.Time `json:"indexed_at,omitempty"`
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	block, found, err := h.status.LastIndexedBlock(r.Context())
	if err != nil {
		h.logger.Error("failed to read indexing status", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "status unavailable")
		return
	}
	resp := statusResponse{Indexed: found}
	if found {
		resp.BlockNumber = block.Number
		resp.BlockHash = block.Hash
		resp.Accepted = block.Accepted
		resp.Skipped = block.Skipped
		indexedAt := block.IndexedAt.UTC()
		resp.IndexedAt = &indexedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// inspect loads the entity named by the URL, writing an error response and
// returning false when it cannot.
func (h *handler) inspect(w http.ResponseWriter, r *http.Request) (repository.Inspection, bool) {
	entityType, err := domain.ParseEntityType(chi.URLParam(r, "entityType"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return repository.Inspection{}, false
	}
	entityID, err := strconv.ParseInt(chi.URLParam(r, "entityID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "entity id must be an integer")
		return repository.Inspection{}, false
	}

	inspection, err := repository.Inspect(r.Context(), h.store, entityType, entityID)
	if err != nil {
		h.logger.Error("failed to inspect entity", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "inspection failed")
		return repository.Inspection{}, false
	}
	if len(inspection.History) == 0 {
		writeError(w, http.StatusNotFound, "entity not found")
		return repository.Inspection{}, false
	}
	return inspection, true
}

func (h *handler) handleEntity(w http.ResponseWriter, r *http.Request) {
	if inspection, ok := h.inspect(w, r); ok {
		writeJSON(w, http.StatusOK, inspection)
	}
}

func (h *handler) handleEntityDiff(w http.ResponseWriter, r *http.Request) {
	inspection, ok := h.inspect(w, r)
	if !ok {
		return
	}
	diffs, err := inspection.History.Diffs()
	if err != nil {
		h.logger.Error("failed to diff entity history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "diff failed")
		return
	}
	w.Header().Set("Content-Type", "text/x-diff; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	for _, diff := range diffs {
		_, _ = w.Write([]byte(diff))
	}
}

func (h *handler) handleSkipped(w http.ResponseWriter, r *http.Request) {
	blockNumber, err := strconv.ParseInt(chi.URLParam(r, "blockNumber"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "block number must be an integer")
		return
	}

	var entries []domain.IngestionLogEntry
	err = h.store.WithDiscardedTx(r.Context(), func(tx repository.BlockTx) error {
		var readErr error
		entries, readErr = tx.IngestionLog(r.Context(), blockNumber)
		return readErr
	})
	if err != nil {
		h.logger.Error("failed to read ingestion log", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "ingestion log unavailable")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Server runs the ops handler until its context is cancelled.
type Server struct {
	http   *http.Server
	logger *zap.Logger
}

// New creates a server listening on addr.
func New(addr string, handler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		http: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.Named("ops"),
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("ops server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("ops server stopped")
	return nil
}
