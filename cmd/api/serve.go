package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Dan9191/finapi/internal/config"
	"github.com/Dan9191/finapi/internal/events/kafka"
	"github.com/Dan9191/finapi/internal/handler"
	"github.com/Dan9191/finapi/internal/jobs"
	"github.com/Dan9191/finapi/internal/middleware"
	"github.com/Dan9191/finapi/internal/repository"
	"github.com/Dan9191/finapi/internal/repository/memory"
	"github.com/Dan9191/finapi/internal/service"
	"github.com/Dan9191/finapi/internal/utils/email"
)

type store interface {
	repository.UserDirectory
	repository.Ledger
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	// Initialize storage
	var st store
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		logger.Warn("Using in-memory storage, data is lost on restart")
		st = memory.NewStore()
	default:
		db, err := openDatabase(cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := repository.NewRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		st = repo
	}

	// Initialize layers
	var opts []service.Option
	if cfg.NotificationsEnabled() {
		opts = append(opts, service.WithNotifier(email.NewSender(cfg, logger)))
		logger.Infof("Email notifications enabled via %s", cfg.SMTPHost)
	}
	if cfg.EventsEnabled() {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		opts = append(opts, service.WithEventPublisher(publisher))
		logger.Infof("Publishing statement events to topic %s", cfg.KafkaTopic)
	}

	userSvc := service.NewUserService(st, logger, cfg)
	statementSvc := service.NewStatementService(st, st, logger, opts...)
	h := handler.NewHandler(userSvc, statementSvc, logger)

	if cfg.AuditSchedule != "" {
		auditor := jobs.NewBalanceAuditor(st, st, logger)
		if err := auditor.Start(cfg.AuditSchedule); err != nil {
			return err
		}
		defer auditor.Stop()
	}

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(logger))
	h.RegisterRoutes(r)

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	})

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      corsHandler(r),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-quit:
		logger.Infof("Received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}
