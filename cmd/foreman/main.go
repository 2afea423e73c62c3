// Command foreman runs the scheduling control plane: it opens the
// persistence store, seeds the built-in template catalog, wires the
// orchestrator loop to an HTTP surface, and serves until a shutdown
// signal arrives, grounded on the teacher's cmd/cliaimonitor/main.go
// startup sequence.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/foremanhq/foreman/internal/api"
	"github.com/foremanhq/foreman/internal/assignment"
	"github.com/foremanhq/foreman/internal/catalog"
	"github.com/foremanhq/foreman/internal/config"
	"github.com/foremanhq/foreman/internal/events"
	"github.com/foremanhq/foreman/internal/executor"
	"github.com/foremanhq/foreman/internal/limits"
	"github.com/foremanhq/foreman/internal/notifications"
	"github.com/foremanhq/foreman/internal/orchestrator"
	"github.com/foremanhq/foreman/internal/progress"
	"github.com/foremanhq/foreman/internal/queue"
	"github.com/foremanhq/foreman/internal/retry"
	"github.com/foremanhq/foreman/internal/signalctl"
	"github.com/foremanhq/foreman/internal/statemachine"
	"github.com/foremanhq/foreman/internal/store"
	"github.com/foremanhq/foreman/internal/transport/natsbridge"
	"github.com/foremanhq/foreman/internal/workerpool"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (defaults used when omitted)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("[FOREMAN] failed to load config: %v", err)
		}
		cfg = loaded
	}

	lock, err := signalctl.AcquireSingletonLock(cfg.DatabasePath + ".lock")
	if err != nil {
		log.Fatalf("[FOREMAN] %v", err)
	}
	defer lock.Release()

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("[FOREMAN] failed to open store: %v", err)
	}
	defer db.Close()

	cat := catalog.New(db.Templates())
	if err := cat.InitializeBuiltIns(); err != nil {
		log.Fatalf("[FOREMAN] failed to seed built-in templates: %v", err)
	}

	pool, err := workerpool.New(db.Workers(), cfg.Orchestrator.MaxGlobalWorkers)
	if err != nil {
		log.Fatalf("[FOREMAN] failed to initialize worker pool: %v", err)
	}

	bus := events.NewBus(nil)
	q := queue.New()
	scorer := assignment.New()
	limiter := limits.New(limits.Config{
		Global:  cfg.Orchestrator.MaxGlobalWorkers,
		PerRepo: cfg.Orchestrator.MaxWorkersPerRepo,
		PerUser: cfg.Orchestrator.MaxWorkersPerUser,
	})
	retryer := retry.New()
	tracker := progress.New(db.WorkItems(), db.Traces(), statemachine.New())

	notifier := notifications.NewEscalationNotifier(cfg.ToastAppID, cfg.ListenAddr)
	retryer.RegisterEscalationHook("toast", func(workItemID, workerID, reason string, cat retry.Category) {
		if err := notifier.ShowEscalation(workItemID, reason); err != nil {
			log.Printf("[FOREMAN] escalation toast for %s skipped: %v", workItemID, err)
		}
	})

	orch := orchestrator.New(
		db.WorkItems(), db.Executions(), q, cat, pool, scorer, limiter, retryer,
		tracker, bus, unimplementedExecutor{}, orchestrator.Config{
			CycleInterval:             cfg.Orchestrator.CycleInterval(),
			MaxGlobalWorkers:          cfg.Orchestrator.MaxGlobalWorkers,
			MaxWorkersPerRepo:         cfg.Orchestrator.MaxWorkersPerRepo,
			MaxWorkersPerUser:         cfg.Orchestrator.MaxWorkersPerUser,
			MaxRetryAttempts:          cfg.Orchestrator.MaxRetryAttempts,
			RetryBaseDelay:            cfg.Orchestrator.RetryBaseDelay(),
			RetryMaxDelay:             cfg.Orchestrator.RetryMaxDelay(),
			AutoSpawnWorkers:          cfg.Orchestrator.AutoSpawnWorkers,
			DefaultContextWindowLimit: cfg.Orchestrator.DefaultContextWindowLimit,
		},
	)

	if cfg.NATSURL != "" {
		bridge, err := natsbridge.Connect(cfg.NATSURL)
		if err != nil {
			log.Printf("[FOREMAN] NATS mirroring disabled: %v", err)
		} else {
			defer bridge.Close()
			go bridge.Mirror(bus)
		}
	}

	apiServer := api.New(cat, db.WorkItems(), db.Workers(), db.Executions(), db.Traces(), bus, orch, nil, nil)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: apiServer.Router(),
	}

	ctx, stop := signalctl.Notify()
	defer stop()

	orch.Start(ctx)
	log.Printf("[FOREMAN] orchestrator started, cycle interval %s", cfg.Orchestrator.CycleInterval())

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("[FOREMAN] listening on %s", cfg.ListenAddr)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			log.Printf("[FOREMAN] server error: %v", err)
		}
	case <-ctx.Done():
		log.Println("[FOREMAN] shutdown signal received")
	}

	orch.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[FOREMAN] http shutdown error: %v", err)
	}

	fmt.Fprintln(os.Stdout, "foreman stopped")
}

// unimplementedExecutor satisfies the executor.Executor port until an
// operator wires a concrete agent runner; implementing the agent itself
// is explicitly out of scope (spec §1 Non-goals).
type unimplementedExecutor struct{}

func (unimplementedExecutor) Execute(ctx context.Context, req executor.Request) (executor.Result, error) {
	return executor.Result{}, fmt.Errorf("no executor wired: supply a concrete executor.Executor implementation")
}
