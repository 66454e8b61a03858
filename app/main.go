package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/answer-relay/app/answer"
	"github.com/lysyi3m/answer-relay/app/api"
	"github.com/lysyi3m/answer-relay/app/cfg"
	"github.com/lysyi3m/answer-relay/app/clock"
	"github.com/lysyi3m/answer-relay/app/database"
	"github.com/lysyi3m/answer-relay/app/delivery"
	"github.com/lysyi3m/answer-relay/app/ratelimit"
	"github.com/lysyi3m/answer-relay/app/social"
	"github.com/lysyi3m/answer-relay/app/stats"
	"github.com/lysyi3m/answer-relay/app/tasks"
)

func main() {
	if err := cfg.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	appCfg, err := cfg.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	setupLogger(appCfg)

	switch appCfg.Command {
	case cfg.CommandMigrate:
		err = runMigrate(appCfg)
	case cfg.CommandInspect:
		err = runInspect(appCfg, os.Stdout)
	default:
		err = run(appCfg)
	}

	if err != nil {
		slog.Error("Command failed", "command", appCfg.Command, "error", err)
		os.Exit(1)
	}
}

func setupLogger(appCfg *cfg.Cfg) {
	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if appCfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func connect(ctx context.Context, appCfg *cfg.Cfg, name, rawURL string) (*database.DB, error) {
	slog.Info("Connecting to database", "store", name)

	db, err := database.NewConnection(ctx, name, rawURL, database.Options{
		SSLMode:    appCfg.DBSSLMode,
		MaxRetries: appCfg.DBMaxRetries,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Connected to database", "store", name, "driver", db.Driver())
	return db, nil
}

func migrateLedger(db *database.DB) error {
	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database migrations completed", "version", version, "dirty", dirty)
	return nil
}

func runMigrate(appCfg *cfg.Cfg) error {
	ctx, cancel := context.WithTimeout(context.Background(), appCfg.RequestTimeout)
	defer cancel()

	db, err := connect(ctx, appCfg, "ledger", appCfg.TrackingDatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	return migrateLedger(db)
}

type inspectReport struct {
	Version       string         `yaml:"version"`
	SchemaVersion uint           `yaml:"schema_version"`
	Dirty         bool           `yaml:"dirty"`
	Outcomes      map[string]int `yaml:"outcomes"`
	Total         int            `yaml:"total"`
}

func runInspect(appCfg *cfg.Cfg, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), appCfg.RequestTimeout)
	defer cancel()

	db, err := connect(ctx, appCfg, "ledger", appCfg.TrackingDatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	version, dirty, err := database.SchemaVersion(db)
	if err != nil {
		return err
	}

	report := inspectReport{
		Version:       appCfg.Version,
		SchemaVersion: version,
		Dirty:         dirty,
		Outcomes:      map[string]int{},
	}

	if version > 0 {
		counts, err := database.NewLedgerRepository(db).CountByStatus(ctx)
		if err != nil {
			return err
		}
		report.Outcomes = counts
		for _, n := range counts {
			report.Total += n
		}
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting answer-relay", "version", appCfg.Version)

	startupCtx, cancel := context.WithTimeout(context.Background(), appCfg.RequestTimeout)
	defer cancel()

	trackingDB, err := connect(startupCtx, appCfg, "ledger", appCfg.TrackingDatabaseURL)
	if err != nil {
		return err
	}
	defer trackingDB.Close()

	sourceDB, err := connect(startupCtx, appCfg, "source", appCfg.SourceDatabaseURL)
	if err != nil {
		return err
	}
	defer sourceDB.Close()

	if err := migrateLedger(trackingDB); err != nil {
		return err
	}

	ledgerRepo := database.NewLedgerRepository(trackingDB)
	answerRepo, err := database.NewAnswerRepository(sourceDB, appCfg.SourceTable)
	if err != nil {
		return err
	}

	seen, err := delivery.LoadSeenSet(startupCtx, ledgerRepo)
	if err != nil {
		return err
	}
	slog.Info("Seen set loaded", "count", seen.Len())

	client, err := social.NewXClient(social.Options{
		BaseURL:     appCfg.XAPIBaseURL,
		AccessToken: appCfg.XAccessToken,
		Timeout:     appCfg.RequestTimeout,
		UserAgent:   appCfg.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("failed to create X client: %w", err)
	}

	clk := clock.Real()
	processStats := stats.New(clk.Now())
	tracker := ratelimit.NewTracker(clk, processStats)

	engine := delivery.NewEngine(client, ledgerRepo, tracker, seen, clk, processStats, delivery.Settings{
		MaxRetries:       appCfg.MaxRetries,
		RetryBaseDelay:   appCfg.RetryBaseDelay,
		RetryMultiplier:  appCfg.RetryMultiplier,
		MaxBackoffDelay:  appCfg.MaxBackoffDelay,
		MinPostInterval:  appCfg.PostDelay,
		MaxContentLength: appCfg.MaxContentLength,
		CallTimeout:      appCfg.RequestTimeout,
	})

	poller := answer.NewPoller(answerRepo, appCfg.PageSize)
	pollState := tasks.NewPollState(clk.Now(), appCfg.LookbackWindow)

	scheduler := tasks.NewScheduler(appCfg.PollInterval, clk, func() tasks.TaskInterface {
		return tasks.NewPollCycleTask(poller, engine, pollState, clk, processStats, appCfg.RequestTimeout)
	}, processStats)

	slog.Info("Starting poll loop",
		"interval", appCfg.PollInterval.String(),
		"post_delay", appCfg.PostDelay.String(),
		"lookback", appCfg.LookbackWindow.String(),
		"watermark", pollState.Watermark())
	scheduler.Start()

	var httpServer *http.Server
	serverErrChan := make(chan error, 1)

	if appCfg.Port != "" {
		handler := api.NewHandler(api.Options{
			Stats:     processStats,
			Limits:    tracker,
			Watermark: pollState,
			Seen:      seen,
			Ledger:    ledgerRepo,
			Stores:    []api.Pinger{trackingDB, sourceDB},
			Version:   appCfg.Version,
		})

		httpServer = &http.Server{
			Addr:         ":" + appCfg.Port,
			Handler:      api.NewServer(handler, processStats.Registry(), appCfg.APIAccessKey),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		go func() {
			slog.Info("Starting HTTP server", "port", appCfg.Port)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("answer-relay started")

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server stopped")
		}
	}

	stopPipeline(scheduler, []store{sourceDB, trackingDB}, processStats)

	slog.Info("answer-relay shutdown complete")
	return nil
}

type store interface {
	Name() string
	Close() error
}

// stopPipeline closes the stores once the poll loop has stopped. Final
// counters are logged last.
func stopPipeline(scheduler tasks.TaskSchedulerInterface, stores []store, processStats *stats.Stats) {
	scheduler.Stop()
	slog.Info("Poll loop stopped")

	for _, db := range stores {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database", "store", db.Name(), "error", err)
		}
	}
	slog.Info("Database connections closed")

	final := processStats.Snapshot()
	slog.Info("Final counters",
		"cycles", final.Cycles,
		"cycle_errors", final.CycleErrors,
		"fetched", final.Fetched,
		"posted", final.Posted,
		"already_seen", final.AlreadySeen,
		"skipped_unreachable", final.SkippedUnreachable,
		"skipped_empty", final.SkippedEmpty,
		"failed", final.Failed,
		"interrupted", final.Interrupted,
		"rate_limit_waits", final.RateLimitWaits,
		"rate_limit_wait_total", final.RateLimitWaitTotal.String())
}
