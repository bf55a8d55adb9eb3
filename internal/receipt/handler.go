package receipt

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockroom-wms/stockroom/internal/platform/httpx"
	"github.com/stockroom-wms/stockroom/internal/shared"
	"github.com/stockroom-wms/stockroom/internal/workflow"
)

// Handler wires goods receipt HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers the authenticated receipt routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Get("/{id}/actions", h.actions)
	r.Put("/{id}/lines", h.replaceLines)
	r.Post("/{id}/submit", h.submit)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/complete", h.complete)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/resubmit", h.resubmit)
}

// MountPublicRoutes registers the unauthenticated supplier confirmation
// endpoint at its absolute path. GET serves the links embedded in the
// confirmation e-mail; POST accepts the same parameters as JSON.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Get("/receipts/confirm", h.confirmFromLink)
	r.Post("/receipts/confirm", h.confirm)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	req := ListRequest{Limit: 20}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		req.Limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		req.Offset = v
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := Status(s)
		if !status.IsValid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status filter")
			return
		}
		req.Status = &status
	}
	if s := r.URL.Query().Get("search"); s != "" {
		req.Search = &s
	}

	receipts, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list receipts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items": receipts,
		"total": total,
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) actions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	actions, err := h.service.Actions(r.Context(), id, shared.ActorIDFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.Create(r.Context(), shared.ActorIDFromContext(r.Context()), req)
	if err != nil {
		h.logger.Error("create receipt", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) replaceLines(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req ReplaceLinesRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.ReplaceLines(r.Context(), id, shared.ActorIDFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id, actorID int64) (*GoodsReceipt, error) {
		return h.service.Submit(r.Context(), id, actorID)
	})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req DecisionRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	doc, err := h.service.Approve(r.Context(), id, shared.ActorIDFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req DecisionRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	doc, err := h.service.Reject(r.Context(), id, shared.ActorIDFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id, actorID int64) (*GoodsReceipt, error) {
		return h.service.Complete(r.Context(), id, actorID)
	})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id, actorID int64) (*GoodsReceipt, error) {
		return h.service.Cancel(r.Context(), id, actorID)
	})
}

func (h *Handler) resubmit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id, actorID int64) (*GoodsReceipt, error) {
		return h.service.Resubmit(r.Context(), id, actorID)
	})
}

// confirm handles POST /receipts/confirm.
func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.ConfirmSupplier(r.Context(), req.Token, *req.Confirmed)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"number": doc.Number,
		"status": doc.Status,
	})
}

// confirmFromLink handles GET /receipts/confirm?token=...&confirmed=true|false,
// the form the e-mail links take.
func (h *Handler) confirmFromLink(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	confirmed, err := strconv.ParseBool(r.URL.Query().Get("confirmed"))
	if token == "" || err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "token and confirmed are required")
		return
	}
	doc, err := h.service.ConfirmSupplier(r.Context(), token, confirmed)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"number": doc.Number,
		"status": doc.Status,
	})
}

// Helpers

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(id, actorID int64) (*GoodsReceipt, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	doc, err := fn(id, shared.ActorIDFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.RespondError(w, workflow.ValidationError(err))
		return false
	}
	return true
}

func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, target any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	return h.decode(w, r, target)
}
