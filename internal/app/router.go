package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/stockroom-wms/stockroom/internal/issue"
	"github.com/stockroom-wms/stockroom/internal/ledger"
	"github.com/stockroom-wms/stockroom/internal/masterdata"
	"github.com/stockroom-wms/stockroom/internal/platform/httpx"
	"github.com/stockroom-wms/stockroom/internal/receipt"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	IssueHandler      *issue.Handler
	ReceiptHandler    *receipt.Handler
	MasterDataHandler *masterdata.Handler
	Inventory         *ledger.Handler
}

// NewRouter constructs the chi.Router serving the warehouse API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Supplier confirmation: no actor, throttled per IP. Registered as static
	// routes so they win over the mounted /receipts subrouter.
	r.Group(func(r chi.Router) {
		r.Use(PublicRateLimit())
		params.ReceiptHandler.MountPublicRoutes(r)
	})

	// Authenticated surface.
	r.Group(func(r chi.Router) {
		r.Use(RequireActor(params.Logger))
		r.Use(httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))

		r.Route("/issues", params.IssueHandler.MountRoutes)
		r.Route("/receipts", params.ReceiptHandler.MountRoutes)
		if params.MasterDataHandler != nil {
			params.MasterDataHandler.MountRoutes(r)
		}
		if params.Inventory != nil {
			r.Route("/inventory", params.Inventory.MountRoutes)
		}
	})

	return r
}
