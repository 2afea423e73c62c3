// Command foremanctl is an operator CLI for the foreman database: seeding
// the built-in template catalog, listing work items and workers, and
// forcing a single orchestrator cycle, grounded on the teacher's
// cmd/dbctl/main.go flag-driven action dispatch.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/foremanhq/foreman/internal/assignment"
	"github.com/foremanhq/foreman/internal/catalog"
	"github.com/foremanhq/foreman/internal/events"
	"github.com/foremanhq/foreman/internal/executor"
	"github.com/foremanhq/foreman/internal/limits"
	"github.com/foremanhq/foreman/internal/model"
	"github.com/foremanhq/foreman/internal/orchestrator"
	"github.com/foremanhq/foreman/internal/progress"
	"github.com/foremanhq/foreman/internal/queue"
	"github.com/foremanhq/foreman/internal/retry"
	"github.com/foremanhq/foreman/internal/statemachine"
	"github.com/foremanhq/foreman/internal/store"
	"github.com/foremanhq/foreman/internal/workerpool"
)

func main() {
	dbPath := flag.String("db", "foreman.db", "Path to the SQLite database")
	action := flag.String("action", "", "Action to perform: seed, list-work-items, list-workers, force-cycle")
	status := flag.String("status", "", "Status filter for list-work-items")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	if *action == "" {
		fmt.Fprintf(os.Stderr, "Usage: foremanctl -db <path> -action <action> [-status <status>] [-json]\n")
		fmt.Fprintf(os.Stderr, "Actions: seed, list-work-items, list-workers, force-cycle\n")
		os.Exit(1)
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch *action {
	case "seed":
		runSeed(db)
	case "list-work-items":
		runListWorkItems(db, *status, *jsonOutput)
	case "list-workers":
		runListWorkers(db, *jsonOutput)
	case "force-cycle":
		runForceCycle(db)
	default:
		fmt.Fprintf(os.Stderr, "Unknown action: %s\n", *action)
		os.Exit(1)
	}
}

func runSeed(db *store.DB) {
	cat := catalog.New(db.Templates())
	if err := cat.InitializeBuiltIns(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to seed built-in templates: %v\n", err)
		os.Exit(1)
	}
	templates, err := cat.GetBuiltIn()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list built-in templates: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d built-in templates\n", len(templates))
}

func runListWorkItems(db *store.DB, statusFilter string, jsonOutput bool) {
	items, err := db.WorkItems().List(store.WorkItemFilter{Status: statusModel(statusFilter)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list work items: %v\n", err)
		os.Exit(1)
	}
	if jsonOutput {
		json.NewEncoder(os.Stdout).Encode(items)
		return
	}
	for _, item := range items {
		fmt.Printf("%s\t%s\t%s\t%s\n", item.ID, item.Type, item.Status, item.Title)
	}
}

func runListWorkers(db *store.DB, jsonOutput bool) {
	workers, err := db.Workers().List(store.WorkerFilter{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list workers: %v\n", err)
		os.Exit(1)
	}
	if jsonOutput {
		json.NewEncoder(os.Stdout).Encode(workers)
		return
	}
	for _, w := range workers {
		fmt.Printf("%s\t%s\t%s\n", w.ID, w.TemplateID, w.Status)
	}
}

func statusModel(s string) model.WorkItemStatus {
	return model.WorkItemStatus(s)
}

func runForceCycle(db *store.DB) {
	cat := catalog.New(db.Templates())
	pool, err := workerpool.New(db.Workers(), 10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize worker pool: %v\n", err)
		os.Exit(1)
	}

	bus := events.NewBus(nil)
	tracker := progress.New(db.WorkItems(), db.Traces(), statemachine.New())
	orch := orchestrator.New(
		db.WorkItems(), db.Executions(), queue.New(), cat, pool, assignment.New(),
		limits.New(limits.Config{Global: 10}), retry.New(), tracker, bus, unimplementedExecutor{},
		orchestrator.Config{MaxGlobalWorkers: 10},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := orch.ForceCycle(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Cycle failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Cycle completed")
}

// unimplementedExecutor lets force-cycle exercise queueing, assignment and
// limiter bookkeeping without requiring a real agent runner; implementing
// the agent itself is out of scope (spec §1 Non-goals).
type unimplementedExecutor struct{}

func (unimplementedExecutor) Execute(ctx context.Context, req executor.Request) (executor.Result, error) {
	return executor.Result{}, fmt.Errorf("no executor wired: foremanctl force-cycle cannot run real agent turns")
}
