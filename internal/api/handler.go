package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/paystream/internal/aggregate"
	"github.com/gyaneshwarpardhi/paystream/internal/config"
	"github.com/gyaneshwarpardhi/paystream/internal/eventlog"
	"github.com/gyaneshwarpardhi/paystream/internal/generator"
	"github.com/gyaneshwarpardhi/paystream/internal/ingest"
	"github.com/gyaneshwarpardhi/paystream/internal/pipeline"
	"github.com/gyaneshwarpardhi/paystream/internal/store"
	"github.com/gyaneshwarpardhi/paystream/internal/stream"
)

const (
	maxBatchSize = 100
	maxBodyBytes = 1 << 20
	maxPageSize  = 100
	maxRecent    = 1000
)

// Backlog reports how full the write-behind queue is.
type Backlog interface {
	Utilization() float64
}

// Deps are the collaborators the HTTP surface reads from and drives.
type Deps struct {
	Channel   *stream.Channel
	Hub       *pipeline.Hub
	Intake    *ingest.Intake
	Generator *generator.Generator
	Store     store.Store
	Loader    *config.Loader
	Backlog   Backlog
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	Deps
	mux *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(d Deps) http.Handler {
	h := &Handler{Deps: d, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/events", h.ingestEvent)
	h.mux.HandleFunc("POST /v1/events/batch", h.ingestBatch)
	h.mux.HandleFunc("POST /v1/seed", h.seed)
	h.mux.HandleFunc("POST /v1/reseed", h.reseed)
	h.mux.HandleFunc("GET /v1/payments/{tenantId}", h.recentPayments)

	h.mux.HandleFunc("GET /v1/pipelines", h.listPipelines)
	h.mux.HandleFunc("POST /v1/pipelines", h.createPipeline)
	h.mux.HandleFunc("DELETE /v1/pipelines/{id}", h.deletePipeline)
	h.mux.HandleFunc("POST /v1/pipelines/{id}/pause", h.pausePipeline)
	h.mux.HandleFunc("POST /v1/pipelines/{id}/resume", h.resumePipeline)
	h.mux.HandleFunc("GET /v1/pipelines/{id}/metrics", h.pipelineMetrics)
	h.mux.HandleFunc("GET /v1/pipelines/{id}/trends", h.pipelineTrends)
	h.mux.HandleFunc("GET /v1/pipelines/{id}/events", h.pipelineEvents)
	h.mux.HandleFunc("GET /v1/pipelines/{id}/export.csv", h.exportCSV)

	h.mux.HandleFunc("GET /v1/stream", h.stream)
	h.mux.HandleFunc("GET /v1/config", h.getConfig)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// tenant returns the tenantId query parameter or the configured default.
func (h *Handler) tenant(r *http.Request) string {
	if t := r.URL.Query().Get("tenantId"); t != "" {
		return t
	}
	return h.Loader.Config().Server.DefaultTenant
}

// POST /v1/events: validate, queue for persistence, broadcast.
func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %s", err))
		return
	}
	ev, err := h.Intake.AcceptJSON(body, "http")
	if err != nil {
		writeEventError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":     ev.ID,
		"type":   ev.Type(),
		"status": "accepted",
	})
}

type batchRejection struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// POST /v1/events/batch: up to 100 events, each validated on its own.
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var raw []json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one event")
		return
	}
	if len(raw) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(raw), maxBatchSize))
		return
	}

	rejected := []batchRejection{}
	for i, msg := range raw {
		if _, err := h.Intake.AcceptJSON(msg, "http"); err != nil {
			rejected = append(rejected, batchRejection{Index: i, Error: err.Error()})
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"total":    len(raw),
		"accepted": len(raw) - len(rejected),
		"rejected": rejected,
	})
}

// POST /v1/seed: idempotent bulk seed.
func (h *Handler) seed(w http.ResponseWriter, r *http.Request) {
	res, err := h.Generator.Seed(r.Context(), h.tenant(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/reseed: clears the tenant then seeds.
func (h *Handler) reseed(w http.ResponseWriter, r *http.Request) {
	res, err := h.Generator.Reseed(r.Context(), h.tenant(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /v1/payments/{tenantId}: most recent stored payments.
func (h *Handler) recentPayments(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", h.Loader.Config().Store.RecentLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit = max(1, min(limit, maxRecent))
	evs, err := h.Store.Recent(r.Context(), r.PathValue("tenantId"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": r.PathValue("tenantId"),
		"payments":  nonNil(evs),
	})
}

// GET /v1/pipelines
func (h *Handler) listPipelines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pipelines": h.Hub.List()})
}

type createPipelineRequest struct {
	ID     string `json:"id"`
	Filter string `json:"filter"`
}

// POST /v1/pipelines: create and subscribe a pipeline.
func (h *Handler) createPipeline(w http.ResponseWriter, r *http.Request) {
	var req createPipelineRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	p, err := h.Hub.Create(r.Context(), req.ID, req.Filter)
	switch {
	case errors.Is(err, pipeline.ErrExists):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p.Info())
}

// lookup resolves {id} or writes a 404.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*pipeline.Pipeline, bool) {
	p, err := h.Hub.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return p, true
}

// DELETE /v1/pipelines/{id}
func (h *Handler) deletePipeline(w http.ResponseWriter, r *http.Request) {
	if err := h.Hub.Remove(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /v1/pipelines/{id}/pause
func (h *Handler) pausePipeline(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	p.Pause()
	writeJSON(w, http.StatusOK, p.Info())
}

// POST /v1/pipelines/{id}/resume
func (h *Handler) resumePipeline(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	p.Resume()
	writeJSON(w, http.StatusOK, p.Info())
}

// GET /v1/pipelines/{id}/metrics?tenantId=
func (h *Handler) pipelineMetrics(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p.Metrics(h.tenant(r)))
}

// GET /v1/pipelines/{id}/trends?tenantId=&period=day|week|month
func (h *Handler) pipelineTrends(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	period, err := aggregate.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tenant := h.tenant(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": tenant,
		"period":    period,
		"buckets":   p.Trends(tenant, period),
	})
}

// GET /v1/pipelines/{id}/events?tenantId=&page=&size=
func (h *Handler) pipelineEvents(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	page, err := intQuery(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	size, err := intQuery(r, "size", h.Loader.Config().Pipeline.PageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	size = max(1, min(size, maxPageSize))

	tenant := h.tenant(r)
	entries, total := p.Page(tenant, page, size)
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":   tenant,
		"page":        max(1, min(page, total)),
		"size":        size,
		"total_pages": total,
		"events":      entries,
	})
}

// GET /v1/pipelines/{id}/export.csv?tenantId=
func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	tenant := h.tenant(r)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="payments-%s.csv"`, tenant))
	if err := eventlog.WriteCSV(w, p.Export(tenant)); err != nil {
		slog.Warn("csv export interrupted", "pipeline", p.ID(), "err", err)
	}
}

// GET /v1/config: current config with credentials masked.
func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg := *h.Loader.Config()
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	cfg.Store.DSN = mask(cfg.Store.DSN)
	cfg.Bridges.AMQP.URL = mask(cfg.Bridges.AMQP.URL)
	cfg.Bridges.Redis.Password = mask(cfg.Bridges.Redis.Password)
	writeJSON(w, http.StatusOK, cfg)
}

// POST /v1/config/reload: re-read the config file and apply reloadable settings.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Loader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded": true,
		"version":  cfg.Version,
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if the write-behind queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	var util float64
	if h.Backlog != nil {
		util = h.Backlog.Utilization()
	}
	body := map[string]any{
		"status":                 "ready",
		"subscribers":            h.Channel.Len(),
		"pipelines":              h.Hub.Len(),
		"sink_queue_utilization": util,
	}
	if util > 0.8 {
		body["status"] = "overloaded"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
