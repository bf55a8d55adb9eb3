package masterdata

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stockroom-wms/stockroom/internal/platform/httpx"
)

// Handler serves the read-only reference endpoints.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers the reference routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/suppliers", h.listSuppliers)
	r.Get("/customers", h.listCustomers)
}

func filtersFrom(r *http.Request) ListFilters {
	f := ListFilters{Search: r.URL.Query().Get("search"), Limit: 50}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		f.Limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		f.Offset = v
	}
	return f
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	items, total, err := h.repo.ListProducts(r.Context(), filtersFrom(r))
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	items, total, err := h.repo.ListSuppliers(r.Context(), filtersFrom(r))
	if err != nil {
		h.logger.Error("list suppliers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	items, total, err := h.repo.ListCustomers(r.Context(), filtersFrom(r))
	if err != nil {
		h.logger.Error("list customers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}
