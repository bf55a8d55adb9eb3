package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/stockroom-wms/stockroom/internal/app"
	"github.com/stockroom-wms/stockroom/internal/issue"
	"github.com/stockroom-wms/stockroom/internal/ledger"
	"github.com/stockroom-wms/stockroom/internal/masterdata"
	"github.com/stockroom-wms/stockroom/internal/notify"
	"github.com/stockroom-wms/stockroom/internal/platform/cache"
	"github.com/stockroom-wms/stockroom/internal/platform/db"
	"github.com/stockroom-wms/stockroom/internal/receipt"
	"github.com/stockroom-wms/stockroom/internal/shared"
	"github.com/stockroom-wms/stockroom/internal/users"
	"github.com/stockroom-wms/stockroom/jobs"
	"github.com/stockroom-wms/stockroom/report"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	userRepo := users.NewRepository(pool)
	refRepo := masterdata.NewRepository(pool)
	products := masterdata.NewProductCatalog(refRepo)
	suppliers := masterdata.NewSupplierDirectory(refRepo)
	customers := masterdata.NewCustomerDirectory(refRepo)

	notifier := notify.NewQueueNotifier(jobClient, logger)
	renderer := report.NewReceiptRenderer(report.NewClient(cfg.GotenbergURL))

	issueRepo := issue.NewRepository(pool)
	issueService := issue.NewService(issueRepo, userRepo, products, customers, auditLogger)
	issueHandler := issue.NewHandler(logger, issueService)

	receiptRepo := receipt.NewRepository(pool)
	receiptService := receipt.NewService(receiptRepo, userRepo, products, suppliers,
		auditLogger, notifier, renderer, cfg.PublicBaseURL, logger)
	receiptHandler := receipt.NewHandler(logger, receiptService)

	inventoryHandler := ledger.NewHandler(logger, ledger.NewReader(pool))
	refHandler := masterdata.NewHandler(logger, refRepo)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		IssueHandler:      issueHandler,
		ReceiptHandler:    receiptHandler,
		MasterDataHandler: refHandler,
		Inventory:         inventoryHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
