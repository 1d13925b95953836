// Command nrg executes one batch risk evaluation run: collect broker data,
// classify the account risk mode, evaluate thesis utilization, persist the
// snapshot, and deliver notifications and dashboard files.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"

	"nrg/internal/config"
	"nrg/internal/connector"
	"nrg/internal/domain"
	"nrg/internal/notify"
	"nrg/internal/publish"
	"nrg/internal/risk"
	"nrg/internal/store"
	"nrg/internal/util"
)

func main() {
	cfgPath := flag.String("config", "config/nrg.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "compute and print but skip publish and notifications")
	noPublish := flag.Bool("no-publish", false, "skip dashboard publishing")
	schedule := flag.String("schedule", "", "cron expression for repeated runs (overrides config)")
	verbose := flag.Bool("v", false, "enable verbose logging")
	flag.Parse()

	// Optional .env for broker credentials.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	level := cfg.Logging.Level
	if *verbose {
		level = "debug"
	}
	logger := util.NewLogger(level)
	util.SetDefault(logger)

	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		logger.Error("opening store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	app := &app{
		cfg:       cfg,
		log:       logger,
		store:     st,
		archive:   store.NewParquetArchive(cfg.Storage.DataDir),
		notifier:  notify.NewNotifier(cfg.Notifications),
		publisher: publish.NewPublisher(cfg.Publish.Dir),
		dryRun:    *dryRun,
		noPublish: *noPublish,
	}

	cronSpec := cfg.Schedule
	if *schedule != "" {
		cronSpec = *schedule
	}

	if cronSpec == "" {
		if err := app.run(context.Background()); err != nil {
			logger.Error("run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Scheduled mode: run on the cron spec until interrupted.
	c := cron.New()
	if _, err := c.AddFunc(cronSpec, func() {
		if err := app.run(context.Background()); err != nil {
			logger.Error("scheduled run failed", "error", err)
		}
	}); err != nil {
		logger.Error("invalid schedule", "spec", cronSpec, "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("scheduler started", "spec", cronSpec)
	c.Start()
	<-ctx.Done()
	logger.Info("shutting down scheduler")
	<-c.Stop().Done()
}

type app struct {
	cfg       *config.Config
	log       *slog.Logger
	store     *store.SQLiteStore
	archive   *store.ParquetArchive
	notifier  *notify.Notifier
	publisher *publish.Publisher
	dryRun    bool
	noPublish bool
}

// run executes a single risk computation pass end to end.
func (a *app) run(ctx context.Context) error {
	runID := ulid.Make().String()
	start := time.Now()
	log := a.log.With("run_id", runID)
	log.Info("risk run starting")

	connectors := a.buildConnectors()
	if len(connectors) == 0 {
		return fmt.Errorf("no connectors enabled")
	}

	accounts, brokerStatuses := connector.CollectAll(ctx, connectors, log)

	if !a.dryRun {
		for broker, status := range brokerStatuses {
			if status != "OK" {
				a.notifier.NotifyDataFailure(broker, status)
			}
		}
	}

	if len(accounts) == 0 {
		a.logRun(ctx, runID, start, string(domain.RunDegraded), "no account data", brokerStatuses)
		return fmt.Errorf("no account data available from any broker")
	}

	resolver := risk.NewResolver(a.cfg.Mappings, log)
	engine := risk.NewEngine(a.store, resolver, a.cfg.ThesisConfigs(), a.cfg.Account, log)

	result, err := engine.Compute(ctx, accounts)
	if err != nil {
		a.logRun(ctx, runID, start, string(domain.RunDegraded), err.Error(), brokerStatuses)
		return fmt.Errorf("risk computation failed: %w", err)
	}

	fmt.Println(risk.Summary(result))

	if !a.dryRun {
		if err := a.archive.WritePositions(ctx, positionRecords(result)); err != nil {
			log.Error("archiving positions", "error", err)
		}

		a.notifier.NotifyModeChange(result)
		a.notifier.NotifyUtilizationBreach(result)
		a.notifier.SendDailySummary(result, risk.Summary(result))

		if !a.noPublish && a.cfg.Publish.Dir != "" {
			if err := a.publisher.WriteAll(result); err != nil {
				log.Error("publishing dashboard files", "error", err)
			}
		}
	}

	a.logRun(ctx, runID, start, string(result.Status), "Completed", brokerStatuses)
	log.Info("risk run completed",
		"status", result.Status,
		"mode", result.Mode,
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func (a *app) buildConnectors() []connector.Connector {
	var out []connector.Connector
	if a.cfg.Connectors.Schwab.Enabled {
		out = append(out, connector.NewSchwabConnector(a.cfg.Connectors.Schwab))
	}
	if a.cfg.Connectors.Fidelity.Enabled {
		out = append(out, connector.NewFidelityConnector(a.cfg.Connectors.Fidelity))
	}
	if a.cfg.Connectors.Alpaca.Enabled {
		out = append(out, connector.NewAlpacaConnector(a.cfg.Connectors.Alpaca))
	}
	return out
}

func (a *app) logRun(ctx context.Context, runID string, start time.Time, status, message string, brokerStatuses map[string]string) {
	err := a.store.LogRun(ctx, store.RunRecord{
		ID:             runID,
		Timestamp:      start,
		Status:         status,
		Message:        message,
		BrokerStatuses: brokerStatuses,
		Duration:       time.Since(start),
	})
	if err != nil {
		a.log.Error("recording run", "error", err)
	}
}

func positionRecords(r *domain.RiskResult) []store.PositionRecord {
	records := make([]store.PositionRecord, 0, len(r.Positions))
	for _, p := range r.Positions {
		records = append(records, store.PositionRecord{
			Timestamp:      r.Timestamp,
			Broker:         p.Broker,
			AccountID:      p.AccountID,
			Symbol:         p.Symbol,
			InstrumentType: string(p.InstrumentType),
			Qty:            p.Qty,
			Multiplier:     p.Multiplier,
			Price:          p.Price,
			MV:             p.MV,
			Currency:       p.Currency,
			Thesis:         p.Thesis,
			Notes:          p.Notes,
		})
	}
	return records
}
