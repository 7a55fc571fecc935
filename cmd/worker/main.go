// Package main is the entry point for the almacen background worker. It
// relays notifications queued in sys_outbox to the configured sink.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	domainnotify "almacen/internal/domain/notify"
	"almacen/internal/infrastructure/notify"
	"almacen/internal/infrastructure/storage/postgres"
	"almacen/pkg/config"
	"almacen/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Storage.Driver != config.DriverPostgres {
		fmt.Println("the worker needs the postgres storage driver")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting almacen outbox worker")

	pool, err := postgres.NewPool(ctx, postgres.PoolConfigFrom(cfg.DB))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool, cfg.DB.StatementTimeout)

	var sink domainnotify.Sink = domainnotify.LogSink{}
	if cfg.Worker.WebhookURL != "" {
		sink = notify.NewWebhookSink(cfg.Worker.WebhookURL, nil)
		log.Infow("delivering notifications by webhook", "url", cfg.Worker.WebhookURL)
	}

	worker := NewWorker(
		postgres.NewOutboxRelay(txm, sink, cfg.Worker.BatchSize, cfg.Worker.MaxRetries),
		cfg.Worker.PollInterval,
		log,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// Relay is the part of the outbox the worker drives.
type Relay interface {
	ProcessBatch(ctx context.Context) (int, error)
	MoveToDLQ(ctx context.Context) (int64, error)
}

// Worker polls the outbox until its context is cancelled.
type Worker struct {
	relay        Relay
	pollInterval time.Duration
	dlqInterval  time.Duration
	log          *logger.Logger
}

// NewWorker creates a worker. A non-positive interval polls every second.
func NewWorker(relay Relay, pollInterval time.Duration, log *logger.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{
		relay:        relay,
		pollInterval: pollInterval,
		dlqInterval:  time.Minute,
		log:          log.WithComponent("outbox"),
	}
}

// Run processes batches until ctx is done. A full batch is followed
// immediately by the next one.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	dlqTicker := time.NewTicker(w.dlqInterval)
	defer dlqTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		case <-dlqTicker.C:
			w.moveToDLQ(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("outbox batch failed", "error", err)
			return
		}
		if n == 0 {
			return
		}
		w.log.Debugw("processed outbox batch", "count", n)
	}
}

func (w *Worker) moveToDLQ(ctx context.Context) {
	moved, err := w.relay.MoveToDLQ(ctx)
	if err != nil {
		w.log.Errorw("moving failed messages to dlq", "error", err)
		return
	}
	if moved > 0 {
		w.log.Warnw("moved failed notifications to dlq", "count", moved)
	}
}
