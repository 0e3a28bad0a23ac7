package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"propertyvet/internal/screening/models"
	"propertyvet/internal/screening/service"
	"propertyvet/pkg/platform/httputil"
	"propertyvet/pkg/requestcontext"
)

// Service defines the controller operations the handler needs.
type Service interface {
	Submit(ctx context.Context, req models.CheckRequest) (string, error)
	GetStatus(ctx context.Context, id string) (service.Status, error)
	SystemStatus(ctx context.Context) service.SystemStatus
}

// Handler wires screening endpoints to the controller.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the screening endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/checks", h.HandleSubmit)
	r.Get("/v1/checks/{id}", h.HandleGetStatus)
	r.Get("/v1/system/status", h.HandleSystemStatus)
}

// HandleSubmit handles POST /v1/checks. The check runs in the background; the
// response carries the id to poll.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[SubmitCheckRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	check := req.ToModel()
	if strings.TrimSpace(check.ID) == "" {
		check.ID = uuid.NewString()
	}

	id, err := h.service.Submit(ctx, check)
	if err != nil {
		h.logger.WarnContext(ctx, "check submission rejected",
			"request_id", requestID,
			"check_id", check.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	state := models.LifecyclePending
	if st, err := h.service.GetStatus(ctx, id); err == nil {
		state = st.State
	}

	h.logger.InfoContext(ctx, "check accepted",
		"request_id", requestID,
		"check_id", id,
		"tier", check.Tier,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusAccepted, SubmitCheckResponse{RequestID: id, Status: state})
}

// HandleGetStatus handles GET /v1/checks/{id}.
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	st, err := h.service.GetStatus(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

// HandleSystemStatus handles GET /v1/system/status.
func (h *Handler) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.service.SystemStatus(r.Context()))
}
