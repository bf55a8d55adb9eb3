package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stockroom-wms/stockroom/internal/platform/httpx"
)

// Handler serves the read-only inventory endpoints.
type Handler struct {
	logger *slog.Logger
	reader *Reader
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, reader *Reader) *Handler {
	return &Handler{logger: logger, reader: reader}
}

// MountRoutes registers the inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{productID}", h.show)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	records, err := h.reader.List(r.Context())
	if err != nil {
		h.logger.Error("list inventory", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": records})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	record, err := h.reader.Get(r.Context(), productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}
