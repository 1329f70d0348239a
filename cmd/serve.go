package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmate/listing-service/internal/grpcserver"
	"jobmate/listing-service/internal/httpapi"
	"jobmate/listing-service/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and gRPC servers and the daily lifecycle scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			logger.Error("startup failed", zap.Error(err))
			return err
		}
		defer a.Close()

		// ── Scheduler ────────────────────────────────────────────────────────
		sched, err := scheduler.New(a.engine, a.clock, logger.Named("scheduler"), cfg.TransitionsRunAt, cfg.TransitionsTimeout)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}

		// ── gRPC server ──────────────────────────────────────────────────────
		grpcSrv := grpcserver.New(a.engine, a.aggregator, sched, logger.Named("grpc"))
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		go grpcSrv.WatchHealth(ctx, 15*time.Second, a.checks...)
		go func() {
			logger.Info("grpc listening", zap.String("port", cfg.GRPCPort))
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("grpc server error", zap.Error(err))
				stop()
			}
		}()

		// ── HTTP server ──────────────────────────────────────────────────────
		mux := http.NewServeMux()
		mux.HandleFunc("/health", healthHandler(a))
		httpapi.NewHandler(a.engine, a.aggregator, sched, a.clock, logger.Named("http")).RegisterRoutes(mux)

		srv := &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		go func() {
			logger.Info("http listening", zap.String("port", cfg.Port), zap.String("version", version))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", zap.Error(err))
				stop()
			}
		}()

		// ── Graceful shutdown ────────────────────────────────────────────────
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown error", zap.Error(err))
		}
		grpcSrv.GracefulStop()
		sched.Stop(shutdownCtx)
		logger.Info("stopped")
		return nil
	},
}

func healthHandler(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		if err := a.Ping(ctx); err != nil {
			a.logger.Warn("health check failed", zap.Error(err))
			status, code = "degraded", http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  status,
			"service": "listing-service",
			"version": version,
		})
	}
}
