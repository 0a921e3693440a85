package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Jonnycatx/agentforge-runner/internal/agents"
	"github.com/Jonnycatx/agentforge-runner/internal/approvals"
	"github.com/Jonnycatx/agentforge-runner/internal/events"
	"github.com/Jonnycatx/agentforge-runner/internal/scheduler"
	"github.com/Jonnycatx/agentforge-runner/internal/triggers"
)

// ErrIllegalTransition is returned when a status change violates the task
// state machine.
var ErrIllegalTransition = errors.New("illegal task status transition")

// Store is the persistence surface the manager needs.
type Store interface {
	GetAgent(ctx context.Context, id string) (*agents.Agent, error)

	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	// UpdateTaskStatus is the single mutation point for task status. It
	// enforces the transition graph, stamps started_at and completed_at,
	// and treats redelivery of the current terminal status as a no-op.
	UpdateTaskStatus(ctx context.Context, id, status string, result json.RawMessage, errMsg string) (*Task, error)
	UpdateTaskInput(ctx context.Context, id string, input json.RawMessage) error
	// RequeueTask bumps retry_count and returns the task to scheduled.
	RequeueTask(ctx context.Context, id string) (*Task, error)
	// ClaimDueTasks returns deferred tasks whose scheduled_at has passed,
	// clearing the deferral so each task is claimed exactly once.
	ClaimDueTasks(ctx context.Context, now time.Time) ([]*Task, error)

	CreateApproval(ctx context.Context, req *approvals.Request) error
	GetApproval(ctx context.Context, id string) (*approvals.Request, error)
	UpdateApproval(ctx context.Context, req *approvals.Request) error
}

// Executor runs tasks out of process. Execute hands a task over and returns
// once it is accepted; progress arrives later through HandleStatus.
type Executor interface {
	Execute(ctx context.Context, task *Task) error
	Cancel(ctx context.Context, taskID string) error
}

// Options bound execution.
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// Manager owns the task lifecycle from creation to terminal status.
type Manager struct {
	store    Store
	executor Executor
	bus      *events.Bus
	opts     Options

	mu     sync.Mutex
	timers map[string]*time.Timer // per-task timeout watchdogs
	closed bool
}

// NewManager creates a task lifecycle manager.
func NewManager(store Store, executor Executor, bus *events.Bus, opts Options) *Manager {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	return &Manager{
		store:    store,
		executor: executor,
		bus:      bus,
		opts:     opts,
		timers:   make(map[string]*time.Timer),
	}
}

// Stop cancels outstanding watchdog timers.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}

// Create persists a new task and either holds it for approval or dispatches
// it, depending on the agent's autonomy level and the action's risk. A task
// with a future scheduled_at is persisted as scheduled and dispatched later,
// when its time comes.
func (m *Manager) Create(ctx context.Context, task *Task) (*Task, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}

	agent, err := m.store.GetAgent(ctx, task.AgentID)
	if err != nil {
		return nil, fmt.Errorf("tasks: load agent %s: %w", task.AgentID, err)
	}

	if task.ID == "" {
		task.ID = GenerateID()
	}
	if task.Source == "" {
		task.Source = SourceManual
	}
	task.CreatedAt = time.Now().UTC()

	risk := approvals.Classify(task.Type)
	hold := approvals.RequiresApproval(risk, agent.AutonomyLevel)
	if hold {
		task.Status = StatusPending
	} else {
		task.Status = StatusScheduled
	}

	if err := m.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("tasks: create: %w", err)
	}

	m.bus.Publish(events.NewEventForAgent(events.EventTaskCreated, events.SourceManager, task.AgentID, map[string]any{
		"task_id":   task.ID,
		"task_type": task.Type,
		"status":    task.Status,
		"source":    task.Source,
	}))

	if hold {
		req := approvals.NewRequest(task.AgentID, task.ID, task.Type, task.Input)
		if err := m.store.CreateApproval(ctx, req); err != nil {
			return nil, fmt.Errorf("tasks: create approval: %w", err)
		}
		m.bus.Publish(events.NewEventForAgent(events.EventApprovalRequired, events.SourceManager, task.AgentID, map[string]any{
			"approval_id": req.ID,
			"task_id":     task.ID,
			"action_type": task.Type,
			"risk_level":  string(req.RiskLevel),
		}))
		slog.Info("tasks: held for approval", "id", task.ID, "type", task.Type, "risk", req.RiskLevel, "autonomy", agent.AutonomyLevel)
		return task, nil
	}

	if deferred(task, task.CreatedAt) {
		slog.Info("tasks: deferred", "id", task.ID, "type", task.Type, "scheduled_at", task.ScheduledAt)
		return task, nil
	}

	m.dispatch(ctx, task)
	return task, nil
}

// deferred reports whether a task's dispatch should wait for scheduled_at.
func deferred(task *Task, now time.Time) bool {
	return task.ScheduledAt != nil && task.ScheduledAt.After(now)
}

// ReleaseDueTasks dispatches deferred tasks whose scheduled_at has passed.
// The store claim consumes the deferral, so each task is released once.
func (m *Manager) ReleaseDueTasks(ctx context.Context, now time.Time) error {
	due, err := m.store.ClaimDueTasks(ctx, now)
	if err != nil {
		return fmt.Errorf("tasks: claim due: %w", err)
	}
	for _, task := range due {
		slog.Info("tasks: releasing deferred task", "id", task.ID, "type", task.Type)
		m.dispatch(ctx, task)
	}
	return nil
}

// CreateFromSchedule implements the scheduler's dispatcher.
func (m *Manager) CreateFromSchedule(ctx context.Context, sched *scheduler.Schedule) error {
	_, err := m.Create(ctx, &Task{
		AgentID:  sched.AgentID,
		Type:     sched.TaskType,
		Input:    sched.TaskInput,
		Source:   SourceSchedule,
		SourceID: sched.ID,
	})
	return err
}

// CreateFromTrigger implements the trigger engine's dispatcher.
func (m *Manager) CreateFromTrigger(ctx context.Context, trig *triggers.Trigger, input json.RawMessage) error {
	_, err := m.Create(ctx, &Task{
		AgentID:  trig.AgentID,
		Type:     trig.TaskType,
		Input:    input,
		Source:   SourceTrigger,
		SourceID: trig.ID,
	})
	return err
}

// dispatch hands a scheduled task to the executor and arms its watchdog.
func (m *Manager) dispatch(ctx context.Context, task *Task) {
	if err := m.executor.Execute(ctx, task); err != nil {
		slog.Warn("tasks: executor rejected task", "id", task.ID, "error", err)
		m.handleFailure(ctx, task.ID, fmt.Sprintf("executor: %v", err))
		return
	}
	m.armWatchdog(task.ID)
	slog.Info("tasks: dispatched", "id", task.ID, "type", task.Type)
}

// armWatchdog forces a task to failed if no terminal status arrives in time.
func (m *Manager) armWatchdog(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if old, ok := m.timers[taskID]; ok {
		old.Stop()
	}
	m.timers[taskID] = time.AfterFunc(m.opts.Timeout, func() {
		m.disarmWatchdog(taskID)
		m.handleFailure(context.Background(), taskID, "task timed out")
	})
}

func (m *Manager) disarmWatchdog(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[taskID]; ok {
		t.Stop()
		delete(m.timers, taskID)
	}
}

// HandleStatus processes a status report from the executor. Redelivered
// terminal statuses are ignored; illegal transitions are rejected.
func (m *Manager) HandleStatus(ctx context.Context, taskID, status string, result json.RawMessage, errMsg string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("tasks: unknown status %q", status)
	}

	if status == StatusFailed {
		m.handleFailure(ctx, taskID, errMsg)
		return nil
	}

	task, err := m.store.UpdateTaskStatus(ctx, taskID, status, result, errMsg)
	if err != nil {
		return fmt.Errorf("tasks: update status: %w", err)
	}
	if Terminal(status) {
		m.disarmWatchdog(taskID)
	}
	m.publishStatus(task)
	return nil
}

// handleFailure applies the retry policy: requeue while retries remain,
// otherwise mark the task failed for good.
func (m *Manager) handleFailure(ctx context.Context, taskID, errMsg string) {
	m.disarmWatchdog(taskID)

	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		slog.Error("tasks: load failed task", "id", taskID, "error", err)
		return
	}
	if Terminal(task.Status) {
		return
	}

	if task.RetryCount < m.opts.MaxRetries {
		requeued, err := m.store.RequeueTask(ctx, taskID)
		if err != nil {
			slog.Error("tasks: requeue", "id", taskID, "error", err)
			return
		}
		slog.Info("tasks: retrying", "id", taskID, "attempt", requeued.RetryCount, "max", m.opts.MaxRetries, "error", errMsg)
		time.AfterFunc(m.opts.RetryDelay, func() {
			m.dispatch(context.Background(), requeued)
		})
		return
	}

	updated, err := m.store.UpdateTaskStatus(ctx, taskID, StatusFailed, nil, errMsg)
	if err != nil {
		slog.Error("tasks: mark failed", "id", taskID, "error", err)
		return
	}
	m.publishStatus(updated)
	slog.Warn("tasks: failed", "id", taskID, "retries", task.RetryCount, "error", errMsg)
}

// Cancel stops a task. Running tasks get a best-effort cancel request to the
// executor; the store transition is what makes cancellation stick.
func (m *Manager) Cancel(ctx context.Context, taskID string) error {
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !CanTransition(task.Status, StatusCancelled) {
		return fmt.Errorf("tasks: cancel %s: %w (status %s)", taskID, ErrIllegalTransition, task.Status)
	}

	if task.Status == StatusRunning {
		if err := m.executor.Cancel(ctx, taskID); err != nil {
			slog.Warn("tasks: executor cancel", "id", taskID, "error", err)
		}
	}

	updated, err := m.store.UpdateTaskStatus(ctx, taskID, StatusCancelled, nil, "cancelled by user")
	if err != nil {
		return fmt.Errorf("tasks: cancel: %w", err)
	}
	m.disarmWatchdog(taskID)
	m.publishStatus(updated)
	slog.Info("tasks: cancelled", "id", taskID)
	return nil
}

// ResolveApproval applies a human decision to a held task. Approval moves
// the task to scheduled and dispatches it, substituting modified input when
// the reviewer supplied any; rejection cancels the task.
func (m *Manager) ResolveApproval(ctx context.Context, approvalID string, approved bool, modifiedInput json.RawMessage) error {
	req, err := m.store.GetApproval(ctx, approvalID)
	if err != nil {
		return err
	}
	if err := req.Decide(approved, modifiedInput); err != nil {
		return err
	}
	if err := m.store.UpdateApproval(ctx, req); err != nil {
		return fmt.Errorf("tasks: update approval: %w", err)
	}

	m.bus.Publish(events.NewEventForAgent(events.EventApprovalDecided, events.SourceManager, req.AgentID, map[string]any{
		"approval_id": req.ID,
		"task_id":     req.TaskID,
		"status":      req.Status,
	}))

	if req.TaskID == "" {
		return nil
	}

	if !approved {
		updated, err := m.store.UpdateTaskStatus(ctx, req.TaskID, StatusCancelled, nil, "approval rejected")
		if err != nil {
			return fmt.Errorf("tasks: cancel rejected task: %w", err)
		}
		m.publishStatus(updated)
		slog.Info("tasks: approval rejected", "approval", req.ID, "task", req.TaskID)
		return nil
	}

	if len(modifiedInput) > 0 {
		if err := m.store.UpdateTaskInput(ctx, req.TaskID, modifiedInput); err != nil {
			return fmt.Errorf("tasks: apply modified input: %w", err)
		}
	}

	task, err := m.store.UpdateTaskStatus(ctx, req.TaskID, StatusScheduled, nil, "")
	if err != nil {
		return fmt.Errorf("tasks: schedule approved task: %w", err)
	}
	m.publishStatus(task)
	slog.Info("tasks: approval granted", "approval", req.ID, "task", req.TaskID)

	// An approved task with a future scheduled_at stays deferred; the
	// due-time engine releases it.
	if deferred(task, time.Now().UTC()) {
		slog.Info("tasks: approved task deferred", "task", task.ID, "scheduled_at", task.ScheduledAt)
		return nil
	}
	m.dispatch(ctx, task)
	return nil
}

func (m *Manager) publishStatus(task *Task) {
	payload := map[string]any{
		"task_id": task.ID,
		"status":  task.Status,
	}
	if task.Error != "" {
		payload["error"] = task.Error
	}
	m.bus.Publish(events.NewEventForAgent(events.EventTaskStatus, events.SourceManager, task.AgentID, payload))
}
