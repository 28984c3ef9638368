package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/harm-index/api"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server and snapshot scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := flags.openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if port != 0 {
				a.cfg.Server.Port = port
			}
			return serve(a)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides config)")
	return cmd
}

func serve(a *app) error {
	handler := api.NewHandler(a.tracker, a.store, a.log)
	handler.Concurrency = a.cfg.Scheduler.Concurrency

	scheduler := api.NewSnapshotScheduler(a.tracker, a.log)
	scheduler.Enabled = a.cfg.Scheduler.Enabled
	scheduler.Interval = a.cfg.Scheduler.Interval
	scheduler.Concurrency = a.cfg.Scheduler.Concurrency
	scheduler.Start()
	defer scheduler.Stop()

	addr := a.cfg.ListenAddr()
	server := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(handler, a.cfg.Server.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server starting",
			zap.String("addr", addr),
			zap.String("db", a.cfg.Database.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal or a listen failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-quit:
	}

	a.log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	a.log.Info("server stopped")
	return nil
}
