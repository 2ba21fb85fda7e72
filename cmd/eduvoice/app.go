package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eduvoice/eduvoice/internal/account"
	"github.com/eduvoice/eduvoice/internal/api"
	"github.com/eduvoice/eduvoice/internal/config"
	"github.com/eduvoice/eduvoice/internal/crypto"
	"github.com/eduvoice/eduvoice/internal/exam"
	"github.com/eduvoice/eduvoice/internal/ledger"
	"github.com/eduvoice/eduvoice/internal/metering"
	"github.com/eduvoice/eduvoice/internal/metrics"
	"github.com/eduvoice/eduvoice/internal/provider"
	"github.com/eduvoice/eduvoice/internal/result"
	"github.com/eduvoice/eduvoice/internal/tutor"
	"github.com/eduvoice/eduvoice/internal/voucher"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// app holds the stores and services shared by the serve, seed and voucher
// commands.
type app struct {
	pool  *pgxpool.Pool // nil for the memory backend
	redis *redis.Client // nil unless the ledger lives in Redis

	collector *metering.Collector
	txns      api.TransactionLister
	gate      *ledger.Gate
	sequencer *provider.Sequencer
	accounts  *account.Service
	tutor     *tutor.Service
	exams     *exam.Service
	vouchers  *voucher.Service
}

// newApp connects the configured backends and wires every service. The
// caller owns the returned app and must call close.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	var (
		ledgerStore ledger.Store
		meterStore  interface {
			metering.BatchInserter
			api.TransactionLister
		}
		accountStore account.Store
		examStore    exam.Store
		voucherStore voucher.Store
	)

	if cfg.Ledger.Backend == config.LedgerMemory {
		slog.Warn("using in-memory stores; all data is lost on exit")
		ledgerStore = ledger.NewMemoryStore()
		meterStore = metering.NewMemoryStore()
		accountStore = account.NewMemoryStore()
		examStore = exam.NewMemoryStore()
		voucherStore = voucher.NewMemoryStore()
	} else {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("creating database pool: %w", err)
		}
		a.pool = pool
		if err := pool.Ping(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("pinging database: %w", err)
		}
		slog.Info("connected to database")

		meterStore = metering.NewStore(pool)
		accountStore = account.NewPostgresStore(pool)
		examStore = exam.NewPostgresStore(pool)
		voucherStore = voucher.NewPostgresStore(pool)

		if cfg.Ledger.Backend == config.LedgerPostgres {
			ledgerStore = ledger.NewPostgresStore(pool)
		} else {
			client, err := ledger.ConnectRedis(ctx, cfg.Redis.URL)
			if err != nil {
				a.close()
				return nil, err
			}
			a.redis = client
			ledgerStore = ledger.NewRedisStore(client)
			slog.Info("connected to redis ledger")
		}
	}

	cipher, err := crypto.NewCipher(cfg.Encryption.Key)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if cipher == nil {
		slog.Warn("encryption.key not set; personal provider keys are stored unencrypted")
	}

	agg, err := result.NewAggregator()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("compiling result schemas: %w", err)
	}

	a.collector = metering.NewCollector(meterStore, cfg.Metering.BatchSize, cfg.Metering.FlushInterval)
	a.txns = meterStore
	a.gate = ledger.NewGate(ledgerStore, a.collector)
	a.accounts = account.NewService(accountStore, cipher, a.gate, cfg.Ledger.SignupBonus)
	a.vouchers = voucher.NewService(voucherStore, a.gate, voucher.Plan{
		FreeTokens: cfg.Plan.FreeTokens,
		PriceCents: cfg.Plan.PriceCents,
	})

	a.sequencer = provider.NewSequencer(provider.DefaultClassifier(), cfg.AI.AlwaysTryFinalFallback)
	gemini := provider.NewGeminiClient(provider.GeminiOptions{
		BaseURL:       cfg.AI.BaseURL,
		Model:         cfg.AI.Model,
		Timeout:       cfg.AI.Timeout,
		PlatformRPS:   cfg.AI.PlatformRPS,
		PlatformBurst: cfg.AI.PlatformBurst,
	})
	if cfg.AI.PlatformKey == "" {
		slog.Warn("no platform Gemini key configured; learners need a personal key")
	}
	a.tutor = tutor.NewService(a.gate, a.sequencer, gemini, agg, a.accounts, tutor.Options{
		Costs: tutor.Costs{
			Lecture:        cfg.Costs.Lecture,
			Quiz:           cfg.Costs.Quiz,
			QuizEvaluation: cfg.Costs.QuizEvaluation,
			Interview:      cfg.Costs.Interview,
		},
		PlatformKey:  cfg.AI.PlatformKey,
		MaxQuestions: cfg.AI.MaxQuestions,
	})
	a.exams = exam.NewService(examStore, a.tutor, cfg.Exam.Grace)

	return a, nil
}

// instrument attaches the optional metrics recorders to every service.
func (a *app) instrument(m *metrics.Metrics) {
	a.gate.SetMetrics(m)
	a.sequencer.SetObserver(m)
	a.tutor.SetMetrics(m)
	a.exams.SetMetrics(m)
	a.vouchers.SetMetrics(m)
	a.collector.SetFlushObserver(m.ObserveFlush)
	m.RegisterCollectorBuffer(a.collector.Buffered)
	if a.pool != nil {
		pool := a.pool
		m.RegisterDBPoolCollector(func() metrics.PoolStats {
			st := pool.Stat()
			return metrics.PoolStats{
				Total:    st.TotalConns(),
				Idle:     st.IdleConns(),
				Acquired: st.AcquiredConns(),
				Max:      st.MaxConns(),
			}
		})
	}
}

// close flushes pending transactions and releases connections.
func (a *app) close() {
	if a.collector != nil {
		a.collector.Stop()
		a.collector.Flush()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("closing redis", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
