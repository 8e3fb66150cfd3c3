package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"github.com/contractqueue/backend/internal/broadcast"
	"github.com/contractqueue/backend/internal/config"
	"github.com/contractqueue/backend/internal/db"
	"github.com/contractqueue/backend/internal/handler"
	"github.com/contractqueue/backend/internal/logging"
	"github.com/contractqueue/backend/internal/service"
)

// @title Contract Queue API
// @version 1.0
// @description Pipedrive webhook driven contract queue.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logging.Init()
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("store ready", "driver", cfg.Store.Driver)

	authSvc, err := service.NewAuthService(store, cfg.Auth)
	if err != nil {
		return err
	}
	if cfg.Auth.AdminUsername != "" || cfg.Auth.AdminPassword != "" {
		if err := authSvc.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword, cfg.Auth.AdminDisplayName); err != nil {
			return err
		}
	}

	hub := broadcast.NewHub()
	var publisher broadcast.Publisher = hub
	var relay *broadcast.NATSRelay
	if cfg.NATS.URL != "" {
		conn, err := broadcast.ConnectNATS(ctx, cfg.NATS)
		if err != nil {
			return err
		}
		defer conn.Drain()
		relay = broadcast.NewNATSRelay(hub, conn, cfg.NATS.Subject)
		publisher = relay
		slog.Info("queue events relayed over nats", "subject", cfg.NATS.Subject, "origin", relay.Origin())
	}

	settingsSvc := service.NewSettingsService(store, cfg.Pipedrive)
	notifier := service.NewNotificationService(settingsSvc)
	defer notifier.Wait()
	contractSvc := service.NewContractService(store, settingsSvc, publisher, notifier)
	ingestSvc := service.NewIngestService(store, settingsSvc, publisher, cfg.Pipedrive)
	reportLoc := cfg.Report.Location()
	reportSvc := service.NewReportService(store, reportLoc)
	sessionSvc := service.NewSessionService(store, cfg.Session.ActiveWindow)

	router := handler.NewRouter(handler.RouterOptions{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: cfg.Server.AllowCredentials,
	}, handler.Handlers{
		Auth:      handler.NewAuthHandler(authSvc, sessionSvc),
		AuthSvc:   authSvc,
		Webhook:   handler.NewPipedriveWebhookHandler(ingestSvc, cfg.Webhook.ExposeErrors),
		Contracts: handler.NewContractHandler(contractSvc, hub, reportLoc),
		Reports:   handler.NewReportHandler(reportSvc),
		Settings:  handler.NewSettingsHandler(settingsSvc, ingestSvc),
		Sessions:  handler.NewSessionHandler(sessionSvc),
		Health:    handler.NewHealthHandler(store),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// event streams end with the process context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
