package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/patisserie-labs/storefront/internal/app"
	"github.com/patisserie-labs/storefront/internal/app/httpapi"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var auditFile string

func init() {
	serveCmd.Flags().StringVar(&auditFile, "audit-file", "", "append admin audit entries to this JSONL file")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig("storefront")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.WithError(err).Warn("close application")
		}
	}()

	handler, err := httpapi.NewHandler(application, httpapi.Config{
		CORSOrigins:  cfg.CORSOriginList(),
		CookieSecure: cfg.Auth.CookieSecure,
		AuditFile:    auditFile,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("storefront listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			log.WithError(err).Error("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("stop application")
	}
	log.Info("storefront stopped")
	return nil
}
