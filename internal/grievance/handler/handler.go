// Package handler wires the grievance HTTP endpoints to the pipeline
// service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"nivaran/internal/pipeline"
	id "nivaran/pkg/domain"
	dErrors "nivaran/pkg/domain-errors"
	"nivaran/pkg/platform/httputil"
	"nivaran/pkg/requestcontext"
)

// Service defines the interface for grievance operations.
type Service interface {
	Submit(ctx context.Context, req pipeline.SubmitRequest) (id.GrievanceID, error)
	GetStatus(ctx context.Context, gid id.GrievanceID) (pipeline.StatusReport, error)
}

// Handler wires grievance endpoints to the pipeline service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a grievance handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts grievance endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/grievances", h.HandleSubmit)
	r.Get("/v1/grievances/{id}", h.HandleStatus)
}

// HandleSubmit handles POST /v1/grievances requests.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	gid, err := h.service.Submit(ctx, pipeline.SubmitRequest{
		Sender:       req.Sender,
		District:     req.ParsedDistrict(),
		AudioRef:     req.AudioRef,
		LanguageHint: req.LanguageHint,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "grievance submission failed",
			"request_id", requestID,
			"district", req.District,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "grievance submitted",
		"request_id", requestID,
		"grievance_id", gid,
		"district", req.District,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusAccepted, SubmitResponse{
		ID:     gid.String(),
		Status: "RECEIVED",
	})
}

// HandleStatus handles GET /v1/grievances/{id} requests.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	gid, err := id.ParseGrievanceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	report, err := h.service.GetStatus(ctx, gid)
	if err != nil {
		// Unknown ids are routine probing, not a service problem.
		level := slog.LevelWarn
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			level = slog.LevelDebug
		}
		h.logger.Log(ctx, level, "grievance status lookup failed",
			"request_id", requestID,
			"grievance_id", gid,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromReport(report))
}
