package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"courier/internal/archive"
	"courier/internal/config"
	"courier/internal/daemon"
	"courier/internal/deliverylog"
	"courier/internal/events"
	"courier/internal/ledger"
	"courier/internal/logging"
	"courier/internal/scheduler"
	"courier/internal/sizecache"
	"courier/internal/transport"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	history, err := ledger.Open(ledger.NewJSONFile(cfg.HistoryPath(), logger), logger)
	if err != nil {
		logger.Error("open history ledger", logging.Error(err))
		return
	}
	sizes, err := sizecache.Open(cfg.SizeCachePath(), logger)
	if err != nil {
		logger.Error("open size cache", logging.Error(err))
		return
	}
	audit, err := deliverylog.Open(cfg.DeliveryLogPath())
	if err != nil {
		logger.Error("open delivery log", logging.Error(err))
		return
	}
	defer audit.Close()

	client := transport.NewClient(cfg.Telegram, cfg.Limits, logging.NewComponentLogger(logger, "transport"))
	publisher := events.NewPublisher(cfg.Aggregator, logging.NewComponentLogger(logger, "events"))

	// Best-effort ledger snapshot for the aggregator at startup.
	startupCtx, startupCancel := context.WithTimeout(ctx, 10*time.Second)
	publisher.PublishHistory(startupCtx, history.Snapshot())
	startupCancel()

	sched := scheduler.New(cfg, history, sizes,
		archive.New(cfg.Paths.StagingDir, logging.NewComponentLogger(logger, "archive")),
		client, publisher, audit,
		logging.NewComponentLogger(logger, "scheduler"))

	d, err := daemon.New(cfg, history, sizes, audit, sched,
		logging.NewComponentLogger(logger, "daemon"))
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("courierd shutting down")
}
