// Package orchestrator implements the Orchestrator Loop (C11): a
// ticking cycle that drains due retries, refreshes the ready queue,
// assigns work to workers, and dispatches to the executor port,
// grounded on the teacher's Captain.Run/runCycle (spec §4.11).
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/foremanhq/foreman/internal/assignment"
	"github.com/foremanhq/foreman/internal/catalog"
	"github.com/foremanhq/foreman/internal/events"
	"github.com/foremanhq/foreman/internal/executor"
	"github.com/foremanhq/foreman/internal/limits"
	"github.com/foremanhq/foreman/internal/model"
	"github.com/foremanhq/foreman/internal/progress"
	"github.com/foremanhq/foreman/internal/queue"
	"github.com/foremanhq/foreman/internal/retry"
	"github.com/foremanhq/foreman/internal/statemachine"
	"github.com/foremanhq/foreman/internal/store"
	"github.com/foremanhq/foreman/internal/workerpool"
	"github.com/google/uuid"
)

// Config holds the orchestrator's tunables (spec §4.11).
type Config struct {
	CycleInterval             time.Duration
	MaxGlobalWorkers          int
	MaxWorkersPerRepo         int
	MaxWorkersPerUser         int
	MaxRetryAttempts          int
	RetryBaseDelay            time.Duration
	RetryMaxDelay             time.Duration
	AutoSpawnWorkers          bool
	DefaultContextWindowLimit int
}

// PreExecHook can veto starting an assignment by returning false.
type PreExecHook func(item *model.WorkItem, worker *model.Worker) bool

// PostExecHook runs after a successful execution.
type PostExecHook func(item *model.WorkItem, worker *model.Worker, result executor.Result)

// ErrorHook runs after a failed execution.
type ErrorHook func(item *model.WorkItem, worker *model.Worker, err error)

// StatusChangeHook runs once per cycle for every item the cycle touched.
type StatusChangeHook func(item *model.WorkItem)

// Status reports the orchestrator's current operating state.
type Status struct {
	Running        bool
	CycleCount      int
	QueueLength     int
	PendingRetries  int
	WorkerCounts    map[model.WorkerStatus]int
	LastCycle       time.Time
}

// Orchestrator wires the queue, template catalog, worker pool,
// assignment scorer, concurrency limiter, retry engine and progress
// tracker into the single scheduling loop that moves work items from
// ready to in-progress (spec §4.11, §9 "scheduler is single-writer").
type Orchestrator struct {
	mu  sync.Mutex
	cfg Config

	items      *store.WorkItemRepo
	executions *store.ExecutionRepo
	queue      *queue.Queue
	catalog    *catalog.Catalog
	pool       *workerpool.Pool
	scorer     *assignment.Scorer
	limiter    *limits.Limiter
	retryer    *retry.Engine
	tracker    *progress.Tracker
	machine    *statemachine.Machine
	bus        *events.Bus
	exec       executor.Executor

	running    bool
	cancelRun  context.CancelFunc
	cycleCount int
	lastCycle  time.Time

	activeExecs map[string]context.CancelFunc

	preHooks    map[string]PreExecHook
	postHooks   map[string]PostExecHook
	errorHooks  map[string]ErrorHook
	statusHooks map[string]StatusChangeHook
}

// New assembles an orchestrator from its component services.
func New(
	items *store.WorkItemRepo,
	executions *store.ExecutionRepo,
	q *queue.Queue,
	cat *catalog.Catalog,
	pool *workerpool.Pool,
	scorer *assignment.Scorer,
	limiter *limits.Limiter,
	retryer *retry.Engine,
	tracker *progress.Tracker,
	bus *events.Bus,
	exec executor.Executor,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		items:       items,
		executions:  executions,
		queue:       q,
		catalog:     cat,
		pool:        pool,
		scorer:      scorer,
		limiter:     limiter,
		retryer:     retryer,
		tracker:     tracker,
		machine:     statemachine.New(),
		bus:         bus,
		exec:        exec,
		activeExecs: make(map[string]context.CancelFunc),
		preHooks:    make(map[string]PreExecHook),
		postHooks:   make(map[string]PostExecHook),
		errorHooks:  make(map[string]ErrorHook),
		statusHooks: make(map[string]StatusChangeHook),
	}
}

// RegisterPreExecHook adds a named veto-capable pre-execution hook.
func (o *Orchestrator) RegisterPreExecHook(name string, h PreExecHook) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.preHooks[name] = h
}

// RegisterPostExecHook adds a named post-execution hook.
func (o *Orchestrator) RegisterPostExecHook(name string, h PostExecHook) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.postHooks[name] = h
}

// RegisterErrorHook adds a named error hook.
func (o *Orchestrator) RegisterErrorHook(name string, h ErrorHook) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errorHooks[name] = h
}

// RegisterStatusChangeHook adds a named status-change notification hook.
func (o *Orchestrator) RegisterStatusChangeHook(name string, h StatusChangeHook) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statusHooks[name] = h
}

// Start launches the ticking cycle. The first cycle runs immediately,
// matching the teacher's Captain.Run.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.running = true
	o.cancelRun = cancel
	o.mu.Unlock()

	go o.runLoop(runCtx)
}

func (o *Orchestrator) runLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.CycleInterval)
	defer ticker.Stop()

	o.ForceCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			o.mu.Lock()
			o.running = false
			o.mu.Unlock()
			return
		case <-ticker.C:
			o.ForceCycle(ctx)
		}
	}
}

// Stop halts the ticking loop and cancels every in-flight execution.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancelRun
	o.running = false
	execs := make([]context.CancelFunc, 0, len(o.activeExecs))
	for _, c := range o.activeExecs {
		execs = append(execs, c)
	}
	o.mu.Unlock()

	for _, c := range execs {
		c()
	}
	if cancel != nil {
		cancel()
	}
}

// GetStatus reports the orchestrator's current operating snapshot.
func (o *Orchestrator) GetStatus() Status {
	o.mu.Lock()
	running := o.running
	cycleCount := o.cycleCount
	lastCycle := o.lastCycle
	o.mu.Unlock()

	counts := make(map[model.WorkerStatus]int)
	for _, w := range o.pool.GetPool() {
		counts[w.Status]++
	}

	return Status{
		Running:        running,
		CycleCount:     cycleCount,
		QueueLength:    o.queue.Len(),
		PendingRetries: len(o.retryer.GetReadyRetries()),
		WorkerCounts:   counts,
		LastCycle:      lastCycle,
	}
}

// UpdateConfig merges non-zero fields of partial into the live config.
// AutoSpawnWorkers is always copied from partial, including false.
func (o *Orchestrator) UpdateConfig(partial Config) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if partial.CycleInterval > 0 {
		o.cfg.CycleInterval = partial.CycleInterval
	}
	if partial.MaxGlobalWorkers > 0 {
		o.cfg.MaxGlobalWorkers = partial.MaxGlobalWorkers
		o.limiter = limits.New(limits.Config{
			Global:  partial.MaxGlobalWorkers,
			PerRepo: o.cfg.MaxWorkersPerRepo,
			PerUser: o.cfg.MaxWorkersPerUser,
		})
	}
	if partial.MaxWorkersPerRepo > 0 {
		o.cfg.MaxWorkersPerRepo = partial.MaxWorkersPerRepo
	}
	if partial.MaxWorkersPerUser > 0 {
		o.cfg.MaxWorkersPerUser = partial.MaxWorkersPerUser
	}
	if partial.MaxRetryAttempts > 0 {
		o.cfg.MaxRetryAttempts = partial.MaxRetryAttempts
	}
	if partial.RetryBaseDelay > 0 {
		o.cfg.RetryBaseDelay = partial.RetryBaseDelay
	}
	if partial.RetryMaxDelay > 0 {
		o.cfg.RetryMaxDelay = partial.RetryMaxDelay
	}
	o.cfg.AutoSpawnWorkers = partial.AutoSpawnWorkers
}

// ForceCycle runs a single orchestration cycle synchronously (the
// bookkeeping portion; executor invocations it kicks off still
// complete in the background). It is exported so operators and tests
// can drive the loop headlessly, matching the teacher's design of
// exposing runCycle for manual use.
func (o *Orchestrator) ForceCycle(ctx context.Context) error {
	o.mu.Lock()
	o.cycleCount++
	o.lastCycle = time.Now()
	o.mu.Unlock()

	if err := o.drainRetries(); err != nil {
		return fmt.Errorf("failed to drain retries: %w", err)
	}

	all, err := o.items.List(store.WorkItemFilter{})
	if err != nil {
		return fmt.Errorf("failed to list work items: %w", err)
	}
	o.queue.RefreshQueue(all)

	var touched []*model.WorkItem
	for {
		item := o.queue.Pop()
		if item == nil {
			break
		}
		touched = append(touched, item)
		o.processItem(ctx, item)
	}

	for _, item := range touched {
		o.notifyStatusChange(item)
	}
	return nil
}

func (o *Orchestrator) drainRetries() error {
	ready := o.retryer.GetReadyRetries()
	if len(ready) == 0 {
		return nil
	}

	all, err := o.items.List(store.WorkItemFilter{})
	if err != nil {
		return err
	}
	doneByID := make(map[string]bool, len(all))
	byID := make(map[string]*model.WorkItem, len(all))
	for _, item := range all {
		byID[item.ID] = item
		if item.Status == model.StatusDone {
			doneByID[item.ID] = true
		}
	}

	for _, rc := range ready {
		item, ok := byID[rc.WorkItemID]
		if !ok {
			continue
		}
		o.queue.RefreshItem(item, doneByID)
	}
	return nil
}

func (o *Orchestrator) processItem(ctx context.Context, item *model.WorkItem) {
	role := assignment.RoleForStatus(item.Status)

	if allowed, reason := o.limiter.CanStartExecution(item.RepositoryID, item.CreatedBy); !allowed {
		log.Printf("[ORCHESTRATOR] item %s deferred: %s", item.ID, reason)
		o.queue.Requeue(item)
		return
	}

	worker, ok := o.findOrSpawnWorker(item, role)
	if !ok {
		o.queue.Requeue(item)
		return
	}

	if !o.runPreExecHooks(item, worker) {
		log.Printf("[ORCHESTRATOR] item %s vetoed by pre-execution hook", item.ID)
		o.queue.Requeue(item)
		return
	}

	if err := o.pool.AssignWork(worker.ID, item.ID, role); err != nil {
		log.Printf("[ORCHESTRATOR] failed to assign item %s to worker %s: %v", item.ID, worker.ID, err)
		o.queue.Requeue(item)
		return
	}

	execID := uuid.New().String()
	if err := o.tracker.MarkStarted(item.ID, worker.ID, execID); err != nil {
		log.Printf("[ORCHESTRATOR] failed to mark item %s started: %v", item.ID, err)
		o.queue.Requeue(item)
		return
	}
	if err := o.limiter.RegisterStart(execID, item.RepositoryID, item.CreatedBy); err != nil {
		log.Printf("[ORCHESTRATOR] failed to register start for item %s: %v", item.ID, err)
		o.queue.Requeue(item)
		return
	}

	o.bus.Publish(events.NewEvent(events.EventExecutionStarted, "orchestrator",
		events.WorkItemChannel(item.ID), events.PriorityNormal,
		map[string]interface{}{"work_item_id": item.ID, "worker_id": worker.ID, "execution_id": execID}))

	execCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.activeExecs[execID] = cancel
	o.mu.Unlock()

	go o.runExecution(execCtx, item, worker, role, execID, cancel)
}

func (o *Orchestrator) findOrSpawnWorker(item *model.WorkItem, role model.Role) (*model.Worker, bool) {
	templates, err := o.catalog.List()
	if err != nil {
		log.Printf("[ORCHESTRATOR] failed to list templates: %v", err)
		return nil, false
	}
	templatesByID := make(map[string]*model.Template, len(templates))
	for _, t := range templates {
		templatesByID[t.ID] = t
	}

	candidates := o.pool.GetAvailableWorkers()
	if best, ok := o.scorer.Best(item, candidates, templatesByID, role); ok {
		w, err := o.pool.Get(best.WorkerID)
		if err != nil {
			return nil, false
		}
		return w, true
	}

	if !o.cfg.AutoSpawnWorkers || !o.pool.CanSpawnMore() {
		return nil, false
	}

	compatible, err := o.catalog.FindForWorkItemType(item.Type)
	if err != nil || len(compatible) == 0 {
		return nil, false
	}

	limit := o.cfg.DefaultContextWindowLimit
	w, err := o.pool.Spawn(compatible[0].ID, limit)
	if err != nil {
		log.Printf("[ORCHESTRATOR] failed to auto-spawn worker for item %s: %v", item.ID, err)
		return nil, false
	}

	o.bus.Publish(events.NewEvent(events.EventWorkerSpawned, "orchestrator", events.ChannelAll,
		events.PriorityNormal, map[string]interface{}{"worker_id": w.ID, "template_id": compatible[0].ID}))
	return w, true
}

func (o *Orchestrator) runPreExecHooks(item *model.WorkItem, worker *model.Worker) bool {
	o.mu.Lock()
	hooks := make([]PreExecHook, 0, len(o.preHooks))
	for _, h := range o.preHooks {
		hooks = append(hooks, h)
	}
	o.mu.Unlock()

	for _, h := range hooks {
		if !h(item, worker) {
			return false
		}
	}
	return true
}

func (o *Orchestrator) runExecution(ctx context.Context, item *model.WorkItem, worker *model.Worker, role model.Role, execID string, cancel context.CancelFunc) {
	defer func() {
		cancel()
		o.mu.Lock()
		delete(o.activeExecs, execID)
		o.mu.Unlock()
	}()

	start := time.Now()
	req := executor.Request{
		WorkerID:     worker.ID,
		WorkItemID:   item.ID,
		SystemPrompt: "",
		Prompt:       item.Description,
	}

	result, err := o.exec.Execute(ctx, req)
	if err == nil {
		err = result.Err
	}

	exec := &model.Execution{
		ID:         execID,
		WorkerID:   worker.ID,
		WorkItemID: item.ID,
		TemplateID: worker.TemplateID,
		StartedAt:  start,
	}

	if err != nil {
		o.handleExecutionFailure(item, worker, execID, exec, err)
		return
	}
	o.handleExecutionSuccess(item, worker, role, execID, exec, result)
}

func (o *Orchestrator) handleExecutionSuccess(item *model.WorkItem, worker *model.Worker, role model.Role, execID string, exec *model.Execution, result executor.Result) {
	now := time.Now()
	exec.Status = model.ExecutionSuccess
	exec.Output = result.Output
	exec.Metrics = model.ExecutionMetrics{
		TokensUsed:    result.TokensUsed,
		CostUSD:       result.CostUSD,
		ToolCallCount: result.ToolCallCount,
		DurationMs:    result.Duration.Milliseconds(),
	}
	exec.CompletedAt = &now
	if err := o.executions.Put(exec); err != nil {
		log.Printf("[ORCHESTRATOR] failed to persist execution %s: %v", execID, err)
	}

	if err := o.pool.UpdateMetrics(worker.ID, result.TokensUsed, result.CostUSD, result.ToolCallCount, worker.Budget.ContextWindowUsed+result.ToolCallCount); err != nil {
		log.Printf("[ORCHESTRATOR] failed to update worker metrics for %s: %v", worker.ID, err)
	}
	if err := o.tracker.MarkCompleted(item.ID, worker.ID, execID); err != nil {
		log.Printf("[ORCHESTRATOR] failed to mark item %s completed: %v", item.ID, err)
	}
	if err := o.pool.CompleteWork(worker.ID); err != nil {
		log.Printf("[ORCHESTRATOR] failed to release worker %s: %v", worker.ID, err)
	}
	o.limiter.RegisterCompletion(execID)
	assignment.RecordRepoExperience(worker, item.RepositoryID)

	o.runPostExecHooks(item, worker, result)
	o.bus.Publish(events.NewEvent(events.EventExecutionFinished, "orchestrator",
		events.WorkItemChannel(item.ID), events.PriorityNormal,
		map[string]interface{}{"work_item_id": item.ID, "worker_id": worker.ID, "execution_id": execID, "status": "success"}))
}

func (o *Orchestrator) handleExecutionFailure(item *model.WorkItem, worker *model.Worker, execID string, exec *model.Execution, execErr error) {
	now := time.Now()
	exec.Status = model.ExecutionError
	exec.ErrorMessage = execErr.Error()
	exec.CompletedAt = &now
	if err := o.executions.Put(exec); err != nil {
		log.Printf("[ORCHESTRATOR] failed to persist failed execution %s: %v", execID, err)
	}

	o.runErrorHooks(item, worker, execErr)

	cat := retry.CategorizeError(execErr.Error())
	o.retryer.RecordError(item.ID, worker.ID, execErr.Error(), cat)

	if ctx, scheduled := o.retryer.ScheduleRetry(item.ID, execErr.Error(), item.RetryCount, o.cfg.MaxRetryAttempts, o.cfg.RetryBaseDelay, o.cfg.RetryMaxDelay); scheduled {
		item.RetryCount++
		if err := o.revertToReady(item); err != nil {
			log.Printf("[ORCHESTRATOR] failed to revert item %s to ready for retry: %v", item.ID, err)
		}
		if err := o.items.Put(item); err != nil {
			log.Printf("[ORCHESTRATOR] failed to persist retry count for item %s: %v", item.ID, err)
		}
		o.queue.Requeue(item)
		log.Printf("[ORCHESTRATOR] item %s scheduled for retry %d at %s", item.ID, ctx.Attempt, ctx.ScheduledAt)
	} else {
		o.retryer.Escalate(item.ID, worker.ID, execErr.Error(), cat)
		if err := o.tracker.MarkFailed(item.ID, worker.ID, execErr.Error()); err != nil {
			log.Printf("[ORCHESTRATOR] failed to mark item %s failed: %v", item.ID, err)
		}
		// Escalated items return to ready rather than staying in-progress.
		if err := o.revertToReady(item); err != nil {
			log.Printf("[ORCHESTRATOR] failed to revert escalated item %s to ready: %v", item.ID, err)
		}
		if err := o.items.Put(item); err != nil {
			log.Printf("[ORCHESTRATOR] failed to persist escalated item %s: %v", item.ID, err)
		}
	}

	if cat != retry.CategoryValidation {
		if err := o.pool.ReportError(worker.ID); err != nil {
			log.Printf("[ORCHESTRATOR] failed to report worker error for %s: %v", worker.ID, err)
		}
	} else if err := o.pool.CompleteWork(worker.ID); err != nil {
		log.Printf("[ORCHESTRATOR] failed to release worker %s after validation error: %v", worker.ID, err)
	}
	o.limiter.RegisterCompletion(execID)

	o.bus.Publish(events.NewEvent(events.EventError, "orchestrator",
		events.WorkItemChannel(item.ID), events.PriorityHigh,
		map[string]interface{}{"work_item_id": item.ID, "worker_id": worker.ID, "execution_id": execID, "error": execErr.Error(), "category": string(cat)}))
}

// revertToReady moves an in-progress item back to ready so it can be
// picked up again, either for a scheduled retry or after escalation.
// The transition table has no direct in-progress->ready edge, so this
// routes through the two legal hops: in-progress->backlog->ready.
func (o *Orchestrator) revertToReady(item *model.WorkItem) error {
	if err := o.machine.Transition(item, model.StatusBacklog, true); err != nil {
		return err
	}
	return o.machine.Transition(item, model.StatusReady, true)
}

func (o *Orchestrator) runPostExecHooks(item *model.WorkItem, worker *model.Worker, result executor.Result) {
	o.mu.Lock()
	hooks := make([]PostExecHook, 0, len(o.postHooks))
	for _, h := range o.postHooks {
		hooks = append(hooks, h)
	}
	o.mu.Unlock()

	for _, h := range hooks {
		runPostHookSafely(h, item, worker, result)
	}
}

func runPostHookSafely(h PostExecHook, item *model.WorkItem, worker *model.Worker, result executor.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ORCHESTRATOR] post-execution hook panicked: %v", r)
		}
	}()
	h(item, worker, result)
}

func (o *Orchestrator) runErrorHooks(item *model.WorkItem, worker *model.Worker, err error) {
	o.mu.Lock()
	hooks := make([]ErrorHook, 0, len(o.errorHooks))
	for _, h := range o.errorHooks {
		hooks = append(hooks, h)
	}
	o.mu.Unlock()

	for _, h := range hooks {
		runErrorHookSafely(h, item, worker, err)
	}
}

func runErrorHookSafely(h ErrorHook, item *model.WorkItem, worker *model.Worker, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ORCHESTRATOR] error hook panicked: %v", r)
		}
	}()
	h(item, worker, err)
}

func (o *Orchestrator) notifyStatusChange(item *model.WorkItem) {
	o.mu.Lock()
	hooks := make([]StatusChangeHook, 0, len(o.statusHooks))
	for _, h := range o.statusHooks {
		hooks = append(hooks, h)
	}
	o.mu.Unlock()

	for _, h := range hooks {
		h(item)
	}
	o.bus.Publish(events.NewEvent(events.EventWorkItemTransition, "orchestrator",
		events.WorkItemChannel(item.ID), events.PriorityNormal,
		map[string]interface{}{"work_item_id": item.ID, "status": string(item.Status)}))
}
