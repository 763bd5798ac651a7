// Package main runs the guard daemon: it consumes live metric snapshots,
// drives the staged capital ramp, schedules the validation suite, reconciles
// the execution ledger on startup, and exposes the admin/metrics HTTP
// surface.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ramp-guard/internal/bus"
	"ramp-guard/internal/config"
	"ramp-guard/internal/domain"
	"ramp-guard/internal/drawdown"
	"ramp-guard/internal/feed"
	"ramp-guard/internal/gate"
	"ramp-guard/internal/guard"
	"ramp-guard/internal/harness"
	"ramp-guard/internal/ledger"
	"ramp-guard/internal/observability"
	"ramp-guard/internal/ramp"
	"ramp-guard/internal/scheduler"
	"ramp-guard/internal/storage"
	chstore "ramp-guard/internal/storage/clickhouse"
	"ramp-guard/internal/storage/file"
	"ramp-guard/internal/storage/memory"
	"ramp-guard/internal/storage/migrations"
	pgstore "ramp-guard/internal/storage/postgres"
	"ramp-guard/internal/throttle"
	"ramp-guard/internal/watchdog"
)

// allStores holds every storage implementation the daemon wires.
type allStores struct {
	rampStore     storage.RampStateStore
	drawdownStore storage.DrawdownStateStore
	suiteStore    storage.SuiteResultStore
	intentStore   storage.OrderIntentStore

	snapshotHistory storage.SnapshotHistoryStore // nil unless clickhouse enabled
	suiteHistory    storage.SuiteHistoryStore    // nil unless clickhouse enabled
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML configuration")
	authorityFile := flag.String("authority-file", "", "JSON file with authoritative intent outcomes for startup reconciliation")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info().Str("environment", cfg.Environment).Str("backend", cfg.Storage.Backend).Msg("guard starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage setup failed")
	}
	defer cleanup()

	metrics := observability.New()

	var authority ledger.StateAuthority = ledger.UnknownAuthority{}
	if *authorityFile != "" {
		authority = ledger.NewFileAuthority(*authorityFile)
	}

	led := ledger.New(ledger.Options{
		Store:             stores.intentStore,
		Authority:         authority,
		BucketWidth:       cfg.Ledger.BucketWidth,
		RecoveryThreshold: cfg.Ledger.RecoveryThreshold,
		Logger:            logger,
	})

	overrides := guard.NewOverrides()
	killSwitch := guard.NewKillSwitchDetector(overrides, logger)
	regime := guard.NewRegimeDetector(guard.RegimeThresholds{
		MaxSkew:     cfg.Regime.MaxSkew,
		MaxFailRate: cfg.Regime.MaxFailRate,
	}, overrides, logger)
	freeze := guard.NewPromotionFreeze(overrides)
	profiles := guard.NewProfileSelector(guard.RiskProfile{
		MaxPositionPct:  cfg.Profile.MaxPositionPct,
		StopDistanceBps: cfg.Profile.StopDistanceBps,
		SizeMultiplier:  cfg.Profile.SizeMultiplier,
	}, guard.DefaultConservativeScale(), overrides)

	// Drill closes go through the ledger like any other action, so a crashed
	// drill can never double-close.
	executor := guard.NewPaperExecutor(func(ctx context.Context, symbol string, direction domain.Direction, size float64) error {
		id, err := led.Submit(ctx, symbol, direction, size, cfg.Ledger.Venue)
		if errors.Is(err, ledger.ErrDuplicatePending) || errors.Is(err, ledger.ErrDuplicateTerminal) {
			return nil
		}
		if err != nil {
			return err
		}
		return led.Finalize(ctx, id, domain.IntentExecuted, "paper close")
	}, logger)

	rampCtrl, err := ramp.New(ramp.Options{
		Stages: cfg.Ramp.Stages,
		Hold: ramp.HoldThresholds{
			MinSharpe:        cfg.Ramp.MinSharpe,
			MinSortino:       cfg.Ramp.MinSortino,
			DrawdownFloorBps: cfg.Ramp.DrawdownFloor,
		},
		SuiteGate:     cfg.Ramp.SuiteGate,
		Store:         stores.rampStore,
		PersistBudget: cfg.Ramp.PersistBudget,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("ramp setup failed")
	}
	if err := rampCtrl.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ramp state load failed")
	}

	ddInitial := domain.DrawdownState{}
	if st, err := stores.drawdownStore.Load(ctx); err == nil {
		ddInitial = *st
	} else if !errors.Is(err, storage.ErrNotFound) {
		logger.Fatal().Err(err).Msg("drawdown state load failed")
	}
	monitor := drawdown.NewMonitor(ddInitial)

	svc := guard.NewService(guard.ServiceOptions{
		Throttle: throttle.New(throttle.Thresholds{
			MinSnapshots: cfg.Throttle.MinSnapshots,
			MinSharpe:    cfg.Throttle.MinSharpe,
			MinSortino:   cfg.Throttle.MinSortino,
		}),
		Gate: gate.NewEvaluator(gate.Thresholds{
			RequiredHours:      cfg.Gates.RequiredHours,
			RequiredTrades:     cfg.Gates.RequiredTrades,
			BaselineWinRate:    cfg.Gates.BaselineWinRate,
			WilsonMargin:       cfg.Gates.WilsonMargin,
			BootstrapResamples: cfg.Gates.BootstrapResamples,
			MinSortino:         cfg.Gates.MinSortino,
			MinSharpe:          cfg.Gates.MinSharpe,
			MaxSlippageBps:     cfg.Gates.MaxSlippageBps,
		}, time.Now().UnixNano()),
		Drawdown:      monitor,
		Ramp:          rampCtrl,
		Ledger:        led,
		Overrides:     overrides,
		KillSwitch:    killSwitch,
		Regime:        regime,
		Freeze:        freeze,
		Profiles:      profiles,
		Executor:      executor,
		SuiteStore:    stores.suiteStore,
		DrawdownStore: stores.drawdownStore,
		History:       stores.snapshotHistory,
		Sizing: guard.SizingPolicy{
			SoftThresholdBps: cfg.Sizing.SoftThresholdBps,
			ReductionPct:     cfg.Sizing.ReductionPct,
		},
		Venue:   cfg.Ledger.Venue,
		Metrics: metrics,
		Logger:  logger,
	})

	report, err := svc.Recover(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup reconciliation failed")
	}
	logger.Info().
		Int("scanned", report.Scanned).
		Int("executed", report.Executed).
		Int("failed", report.Failed).
		Int("abandoned", report.Abandoned).
		Int("discrepancies", report.Discrepancies).
		Msg("startup reconciliation complete")

	beat := func(string) {}
	if cfg.Kafka.Enabled {
		producer, err := bus.NewProducer(bus.ProducerOptions{Brokers: cfg.Kafka.Brokers})
		if err != nil {
			logger.Fatal().Err(err).Msg("kafka producer setup failed")
		}
		defer producer.Close()

		wd := watchdog.New(watchdog.Options{
			Topic:         cfg.Kafka.Topic,
			RestartAfter:  cfg.Watchdog.RestartAfter,
			HaltAfter:     cfg.Watchdog.HaltAfter,
			CheckInterval: cfg.Watchdog.CheckInterval,
			Publisher:     producer,
			Logger:        logger,
		})
		go func() {
			if err := wd.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("watchdog stopped")
			}
		}()
		beat = wd.Heartbeat
	}

	job := &suiteJob{
		runner: harness.NewRunner(harness.RunnerOptions{
			Drills: harness.DefaultDrills(guard.DefaultConservativeScale()),
			Deps: harness.Deps{
				Overrides:     overrides,
				KillSwitch:    killSwitch,
				Freeze:        freeze,
				Regime:        regime,
				Profiles:      profiles,
				Executor:      executor,
				TradingFrozen: svc.TradingFrozen,
			},
			Store:        stores.suiteStore,
			DrillTimeout: cfg.Suite.DrillTimeout,
			Logger:       logger,
		}),
		history: stores.suiteHistory,
		beat:    beat,
		logger:  logger,
	}

	sched, err := scheduler.New(ctx, scheduler.Options{
		Schedule: cfg.Suite.Schedule,
		Runner:   job,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("suite scheduler setup failed")
	}
	sched.Start()
	defer sched.Stop()

	srv := newHTTPServer(cfg, svc, sched, metrics, logger)
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	if err := runFeed(ctx, cfg, svc, beat, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("feed loop failed")
	}
	logger.Info().Msg("shutdown complete")
}

// runFeed pumps the WebSocket snapshot stream into the guard service,
// heartbeating the watchdog on every delivered snapshot.
func runFeed(ctx context.Context, cfg *config.Config, svc *guard.Service, beat func(string), logger zerolog.Logger) error {
	source := feed.NewWSSource(feed.WSOptions{
		URL:            cfg.Feed.URL,
		ReconnectDelay: cfg.Feed.ReconnectDelay,
		PingInterval:   cfg.Feed.PingInterval,
		Buffer:         cfg.Feed.Buffer,
		Logger:         logger,
	})
	snaps, errs := source.Snapshots(ctx)

	forwarded := make(chan domain.MetricSnapshot)
	go func() {
		defer close(forwarded)
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errs:
				if !ok {
					return
				}
				logger.Error().Err(err).Msg("feed error")
			case snap, ok := <-snaps:
				if !ok {
					return
				}
				beat("feed")
				select {
				case forwarded <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return svc.Run(ctx, forwarded)
}

// suiteJob runs the drill suite and mirrors each result into the analytical
// history store.
type suiteJob struct {
	runner  *harness.Runner
	history storage.SuiteHistoryStore
	beat    func(string)
	logger  zerolog.Logger
}

func (j *suiteJob) Run(ctx context.Context) (domain.SuiteResult, error) {
	result, err := j.runner.Run(ctx)
	j.beat("suite")
	if j.history != nil && result.RunID != "" {
		if aerr := j.history.Append(ctx, &result); aerr != nil {
			j.logger.Warn().Err(aerr).Msg("suite history append failed")
		}
	}
	return result, err
}

// buildStores creates the configured storage backend.
func buildStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*allStores, func(), error) {
	stores := &allStores{}
	cleanup := func() {}

	switch cfg.Storage.Backend {
	case "file":
		stores.rampStore = file.NewRampStateStore(cfg.Storage.Dir)
		stores.drawdownStore = file.NewDrawdownStateStore(cfg.Storage.Dir)
		stores.suiteStore = file.NewSuiteResultStore(cfg.Storage.Dir)
		stores.intentStore = memory.NewOrderIntentStore()
		logger.Warn().Msg("file backend keeps the intent ledger in memory; use postgres for crash-safe dedup")
	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
		stores.rampStore = pgstore.NewRampStateStore(pool)
		stores.drawdownStore = pgstore.NewDrawdownStateStore(pool)
		stores.suiteStore = pgstore.NewSuiteResultStore(pool)
		stores.intentStore = pgstore.NewOrderIntentStore(pool)
		cleanup = pool.Close
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if cfg.ClickHouse.Enabled {
		dsn := clickhouseDSN(cfg)
		conn, err := chstore.NewConn(ctx, dsn)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			conn.Close()
			cleanup()
			return nil, nil, fmt.Errorf("apply clickhouse migrations: %w", err)
		}
		stores.snapshotHistory = chstore.NewSnapshotHistoryStore(conn)
		stores.suiteHistory = chstore.NewSuiteHistoryStore(conn)

		prev := cleanup
		cleanup = func() {
			conn.Close()
			prev()
		}
	}

	return stores, cleanup, nil
}

func clickhouseDSN(cfg *config.Config) string {
	if cfg.ClickHouse.User != "" {
		return fmt.Sprintf("clickhouse://%s:%s@%s/%s",
			cfg.ClickHouse.User, cfg.ClickHouse.Password, cfg.ClickHouse.Addr, cfg.ClickHouse.Database)
	}
	return fmt.Sprintf("clickhouse://%s/%s", cfg.ClickHouse.Addr, cfg.ClickHouse.Database)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).With().Timestamp().Str("service", "ramp-guard").Logger().Level(lvl)
}

// newHTTPServer builds the health/metrics/admin surface.
func newHTTPServer(cfg *config.Config, svc *guard.Service, sched *scheduler.Scheduler, metrics *observability.Metrics, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	metricsPath := cfg.Server.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	mux.Handle(metricsPath, metrics.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		type status struct {
			Environment   string              `json:"environment"`
			TradingFrozen bool                `json:"trading_frozen"`
			LatestSuite   *domain.SuiteResult `json:"latest_suite,omitempty"`
		}
		writeJSON(w, http.StatusOK, status{
			Environment:   cfg.Environment,
			TradingFrozen: svc.TradingFrozen(),
			LatestSuite:   sched.Latest(),
		})
	})

	mux.HandleFunc("/admin/suite/run", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		result, err := sched.RunNow(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("/admin/ramp/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := svc.ResetRamp(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		logger.Warn().Msg("admin: ramp reset to stage 0")
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/admin/ramp/gate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		svc.SetManualRampGate(body.Enabled)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/admin/force-unfreeze", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		svc.ForceUnfreeze()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/portfolio/value", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Value float64 `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Value <= 0 {
			http.Error(w, "positive value required", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, svc.UpdatePortfolioValue(r.Context(), body.Value))
	})

	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Symbol    string  `json:"symbol"`
			Direction string  `json:"direction"`
			Size      float64 `json:"size"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id, err := svc.Submit(r.Context(), body.Symbol, domain.Direction(body.Direction), body.Size)
		switch {
		case errors.Is(err, guard.ErrTradingFrozen):
			http.Error(w, err.Error(), http.StatusLocked)
		case errors.Is(err, ledger.ErrDuplicatePending), errors.Is(err, ledger.ErrDuplicateTerminal):
			writeJSON(w, http.StatusConflict, map[string]string{"intent_id": id, "error": err.Error()})
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		default:
			writeJSON(w, http.StatusCreated, map[string]string{"intent_id": id})
		}
	})

	mux.HandleFunc("/orders/finalize", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			IntentID string `json:"intent_id"`
			Status   string `json:"status"`
			Metadata string `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := svc.Finalize(r.Context(), body.IntentID, domain.IntentStatus(body.Status), body.Metadata); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
