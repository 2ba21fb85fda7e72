package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eduvoice/eduvoice/internal/api"
	"github.com/eduvoice/eduvoice/internal/config"
	"github.com/eduvoice/eduvoice/internal/metrics"
	"github.com/eduvoice/eduvoice/internal/ratelimit"
	"github.com/eduvoice/eduvoice/internal/tracing"
	"github.com/spf13/cobra"
)

// sweepInterval is how often idle rate-limit buckets and expired sessions
// are cleaned up.
const sweepInterval = 5 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the EduVoice API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName:    "eduvoice",
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Insecure:       cfg.Tracing.Insecure,
	})
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	m := metrics.New()
	a.instrument(m)

	go a.collector.Start(ctx)

	limiter := ratelimit.New(cfg.RateLimit.Default, cfg.RateLimit.Window)
	go sweep(ctx, a, limiter, cfg.RateLimit.Window)

	router := api.NewRouter(api.RouterDeps{
		Accounts:     a.accounts,
		Ledger:       a.gate,
		Transactions: a.txns,
		Tutor:        a.tutor,
		Exams:        a.exams,
		Vouchers:     a.vouchers,
		Limiter:      limiter,
		Metrics:      m,
		AdminKey:     cfg.Auth.AdminKey,
		CORSOrigins:  cfg.CORS.AllowedOrigins,
		ExamDuration: cfg.Exam.Duration,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      http.MaxBytesHandler(router, cfg.Server.MaxBodyBytes),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr(), "ledger", cfg.Ledger.Backend, "model", cfg.AI.Model)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err = srv.Shutdown(shutdownCtx)
	cancel()
	if terr := shutdownTracing(shutdownCtx); terr != nil {
		slog.Warn("shutting down tracing", "error", terr)
	}
	return err
}

// sweep periodically drops idle rate-limit buckets and expired sessions
// until ctx is cancelled.
func sweep(ctx context.Context, a *app, limiter *ratelimit.Limiter, idle time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Sweep(idle); n > 0 {
				slog.Debug("swept rate limit buckets", "count", n)
			}
			if err := a.accounts.CleanExpiredSessions(ctx); err != nil {
				slog.Warn("cleaning expired sessions", "error", err)
			}
		}
	}
}
