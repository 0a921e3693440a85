package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Jonnycatx/agentforge-runner/internal/agents"
	"github.com/Jonnycatx/agentforge-runner/internal/approvals"
	"github.com/Jonnycatx/agentforge-runner/internal/events"
)

type memStore struct {
	mu        sync.Mutex
	agents    map[string]*agents.Agent
	tasks     map[string]*Task
	approvals map[string]*approvals.Request
}

func newMemStore() *memStore {
	return &memStore{
		agents:    make(map[string]*agents.Agent),
		tasks:     make(map[string]*Task),
		approvals: make(map[string]*approvals.Request),
	}
}

func (s *memStore) GetAgent(_ context.Context, id string) (*agents.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s not found", id)
	}
	return a, nil
}

func (s *memStore) CreateTask(_ context.Context, task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *memStore) GetTask(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) UpdateTaskStatus(_ context.Context, id, status string, result json.RawMessage, errMsg string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	if t.Status == status && Terminal(status) {
		cp := *t
		return &cp, nil
	}
	if !CanTransition(t.Status, status) {
		return nil, fmt.Errorf("%s -> %s: %w", t.Status, status, ErrIllegalTransition)
	}
	now := time.Now().UTC()
	t.Status = status
	if status == StatusRunning {
		t.StartedAt = &now
	}
	if Terminal(status) {
		t.CompletedAt = &now
		t.Result = result
		t.Error = errMsg
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) UpdateTaskInput(_ context.Context, id string, input json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	t.Input = input
	return nil
}

func (s *memStore) RequeueTask(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	t.RetryCount++
	t.Status = StatusScheduled
	cp := *t
	return &cp, nil
}

func (s *memStore) ClaimDueTasks(_ context.Context, now time.Time) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*Task
	for _, t := range s.tasks {
		if t.Status == StatusScheduled && t.ScheduledAt != nil && !t.ScheduledAt.After(now) {
			t.ScheduledAt = nil
			cp := *t
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (s *memStore) CreateApproval(_ context.Context, req *approvals.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	s.approvals[req.ID] = &cp
	return nil
}

func (s *memStore) GetApproval(_ context.Context, id string) (*approvals.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.approvals[id]
	if !ok {
		return nil, fmt.Errorf("approval %s not found", id)
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) UpdateApproval(_ context.Context, req *approvals.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	s.approvals[req.ID] = &cp
	return nil
}

func (s *memStore) taskStatus(t *testing.T, id string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		t.Fatalf("task %s not in store", id)
	}
	return task.Status
}

func (s *memStore) pendingApproval(t *testing.T) *approvals.Request {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.approvals {
		if r.Status == approvals.StatusPending {
			cp := *r
			return &cp
		}
	}
	t.Fatal("no pending approval in store")
	return nil
}

type memExecutor struct {
	mu        sync.Mutex
	executed  []*Task
	cancelled []string
	failWith  error
}

func (e *memExecutor) Execute(_ context.Context, task *Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failWith != nil {
		return e.failWith
	}
	cp := *task
	e.executed = append(e.executed, &cp)
	return nil
}

func (e *memExecutor) Cancel(_ context.Context, taskID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled = append(e.cancelled, taskID)
	return nil
}

func (e *memExecutor) executedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.executed)
}

func newTestManager(t *testing.T, store *memStore, exec *memExecutor, opts Options) *Manager {
	t.Helper()
	bus := events.NewBus(64)
	t.Cleanup(bus.Close)
	m := NewManager(store, exec, bus, opts)
	t.Cleanup(m.Stop)
	return m
}

func addAgent(s *memStore, id string, autonomy int) {
	s.agents[id] = &agents.Agent{ID: id, Name: "agent " + id, AutonomyLevel: autonomy}
}

func TestManager_CreateDispatchesLowRisk(t *testing.T) {
	store := newMemStore()
	addAgent(store, "a1", 2)
	exec := &memExecutor{}
	m := newTestManager(t, store, exec, Options{})

	task, err := m.Create(context.Background(), &Task{AgentID: "a1", Type: "web_search"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Status != StatusScheduled {
		t.Errorf("low-risk task at autonomy 2 should dispatch, got %s", task.Status)
	}
	if exec.executedCount() != 1 {
		t.Errorf("expected 1 execution, got %d", exec.executedCount())
	}
	if len(store.approvals) != 0 {
		t.Error("low-risk task must not create an approval request")
	}
}

func TestManager_CreateHoldsHighRisk(t *testing.T) {
	store := newMemStore()
	addAgent(store, "a1", 2)
	exec := &memExecutor{}
	m := newTestManager(t, store, exec, Options{})

	task, err := m.Create(context.Background(), &Task{AgentID: "a1", Type: "email_send"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Status != StatusPending {
		t.Errorf("high-risk task at autonomy 2 should hold, got %s", task.Status)
	}
	if exec.executedCount() != 0 {
		t.Error("held task must not reach the executor")
	}

	req := store.pendingApproval(t)
	if req.TaskID != task.ID {
		t.Errorf("approval bound to %s, want %s", req.TaskID, task.ID)
	}
	if req.RiskLevel != approvals.RiskHigh {
		t.Errorf("risk = %s, want high", req.RiskLevel)
	}
}

func TestManager_FullAutonomySkipsApproval(t *testing.T) {
	store := newMemStore()
	addAgent(store, "a1", 4)
	exec := &memExecutor{}
	m := newTestManager(t, store, exec, Options{})

	task, err := m.Create(context.Background(), &Task{AgentID: "a1", Type: "payment"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Status != StatusScheduled {
		t.Errorf("autonomy 4 never holds, got %s", task.Status)
	}
}

func TestManager_DeferredDispatch(t *testing.T) {
	store := newMemStore()
	addAgent(store, "a1", 2)
	exec := &memExecutor{}
	m := newTestManager(t, store, exec, Options{})

	future := time.Now().UTC().Add(24 * time.Hour)
	task, err := m.Create(context.Background(), &Task{AgentID: "a1", Type: "web_search", ScheduledAt: &future})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Status != StatusScheduled {
		t.Errorf("deferred task status = %s, want scheduled", task.Status)
	}
	if exec.executedCount() != 0 {
		t.Fatal("task with a future scheduled_at must not dispatch on create")
	}

	// Before the scheduled time nothing is released.
	if err := m.ReleaseDueTasks(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if exec.executedCount() != 0 {
		t.Fatal("released before scheduled_at")
	}

	// Once scheduled_at passes, the task dispatches exactly once.
	if err := m.ReleaseDueTasks(context.Background(), future.Add(time.Second)); err != nil {
		t.Fatalf("release: %v", err)
	}
	if exec.executedCount() != 1 {
		t.Fatalf("expected 1 dispatch after release, got %d", exec.executedCount())
	}
	if err := m.ReleaseDueTasks(context.Background(), future.Add(time.Minute)); err != nil {
		t.Fatalf("release: %v", err)
	}
	if exec.executedCount() != 1 {
		t.Errorf("release must be exactly once, got %d dispatches", exec.executedCount())
	}
}

func TestManager_ApprovedTaskStaysDeferred(t *testing.T) {
	store := newMemStore()
	addAgent(store, "a1", 2)
	exec := &memExecutor{}
	m := newTestManager(t, store, exec, Options{})

	future := time.Now().UTC().Add(time.Hour)
	task, err := m.Create(context.Background(), &Task{AgentID: "a1", Type: "email_send", ScheduledAt: &future})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Status != StatusPending {
		t.Fatalf("held task status = %s, want pending", task.Status)
	}

	req := store.pendingApproval(t)
	if err := m.ResolveApproval(context.Background(), req.ID, true, nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := store.taskStatus(t, task.ID); got != StatusScheduled {
		t.Errorf("approved task status = %s, want scheduled", got)
	}
	if exec.executedCount() != 0 {
		t.Fatal("approved deferred task must wait for its scheduled time")
	}

	if err := m.ReleaseDueTasks(context.Background(), future.Add(time.Second)); err != nil {
		t.Fatalf("release: %v", err)
	}
	if exec.executedCount() != 1 {
		t.Errorf("expected dispatch after release, got %d", exec.executedCount())
	}
}

func TestManager_CreateUnknownAgent(t *testing.T) {
	store := newMemStore()
	exec := &memExecutor{}
	m := newTestManager(t, store, exec, Options{})

	if _, err := m.Create(context.Background(), &Task{AgentID: "ghost", Type: "web_search"}); err == nil {
		t.Fatal("expected error for unknown agent")
	}
}

func TestManager_ApproveWithModifiedInput(t *testing.T) {
	store := newMemStore()
	addAgent(store, "a1", 2)
	exec := &memExecutor{}
	m := newTestManager(t, store, exec, Options{})

	task, err := m.Create(context.Background(), &Task{
		AgentID: "a1",
		Type:    "email_send",
		Input:   json.RawMessage(`{"to":"everyone@example.com"}`),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	req := store.pendingApproval(t)

	modified := json.RawMessage(`{"to":"boss@example.com"}`)
	if err := m.ResolveApproval(context.Background(), req.ID, true, modified); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if got := store.taskStatus(t, task.ID); got != StatusScheduled {
		t.Errorf("approved task status = %s, want scheduled", got)
	}
	if exec.executedCount() != 1 {
		t.Fatalf("expected dispatch after approval, got %d executions", exec.executedCount())
	}
	if string(exec.executed[0].Input) != string(modified) {
		t.Errorf("dispatched input = %s, want the reviewer's modified input", exec.executed[0].Input)
	}
}

func TestManager_RejectCancelsTask(t *testing.T) {
	store := newMemStore()
	addAgent(store, "a1", 2)
	exec := &memExecutor{}
	m := newTestManager(t, store, exec, Options{})

	task, err := m.Create(context.Background(), &Task{AgentID: "a1", Type: "email_send"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	req := store.pendingApproval(t)

	if err := m.ResolveApproval(context.Background(), req.ID, false, nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := store.taskStatus(t, task.ID); got != StatusCancelled {
		t.Errorf("rejected task status = %s, want cancelled", got)
	}
	if exec.executedCount() != 0 {
		t.Error("rejected task must never reach the executor")
	}
}

func TestManager_ResolveApprovalTwice(t *testing.T) {
	store := newMemStore()
	addAgent(store, "a1", 2)
	exec := &memExecutor{}
	m := newTestManager(t, store, exec, Options{})

	if _, err := m.Create(context.Background(), &Task{AgentID: "a1", Type: "email_send"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	req := store.pendingApproval(t)

	if err := m.ResolveApproval(context.Background(), req.ID, true, nil); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if err := m.ResolveApproval(context.Background(), req.ID, false, nil); err == nil {
		t.Fatal("second resolve must fail")
	}
}

func TestManager_HandleStatusLifecycle(t *testing.T) {
	store := newMemStore()
	addAgent(store, "a1", 3)
	exec := &memExecutor{}
	m := newTestManager(t, store, exec, Options{})

	task, err := m.Create(context.Background(), &Task{AgentID: "a1", Type: "web_search"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := m.HandleStatus(context.Background(), task.ID, StatusRunning, nil, ""); err != nil {
		t.Fatalf("running: %v", err)
	}
	if err := m.HandleStatus(context.Background(), task.ID, StatusCompleted, json.RawMessage(`{"ok":true}`), ""); err != nil {
		t.Fatalf("completed: %v", err)
	}
	if got := store.taskStatus(t, task.ID); got != StatusCompleted {
		t.Errorf("status = %s, want completed", got)
	}

	// Redelivered terminal status is a no-op.
	if err := m.HandleStatus(context.Background(), task.ID, StatusCompleted, nil, ""); err != nil {
		t.Errorf("redelivered completed must be idempotent: %v", err)
	}

	// A terminal task cannot go back to running.
	if err := m.HandleStatus(context.Background(), task.ID, StatusRunning, nil, ""); err == nil {
		t.Error("completed -> running must be rejected")
	}
}

func TestManager_RetryThenFail(t *testing.T) {
	store := newMemStore()
	addAgent(store, "a1", 3)
	exec := &memExecutor{}
	m := newTestManager(t, store, exec, Options{MaxRetries: 2, RetryDelay: time.Millisecond, Timeout: time.Minute})

	task, err := m.Create(context.Background(), &Task{AgentID: "a1", Type: "web_search"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// First failure requeues and redispatches after the delay.
	if err := m.HandleStatus(context.Background(), task.ID, StatusFailed, nil, "boom"); err != nil {
		t.Fatalf("failed report: %v", err)
	}
	waitFor(t, func() bool { return exec.executedCount() == 2 })
	if got := store.taskStatus(t, task.ID); got != StatusScheduled {
		t.Errorf("after first failure status = %s, want scheduled", got)
	}

	// Second failure requeues again.
	if err := m.HandleStatus(context.Background(), task.ID, StatusFailed, nil, "boom"); err != nil {
		t.Fatalf("failed report: %v", err)
	}
	waitFor(t, func() bool { return exec.executedCount() == 3 })

	// Retries exhausted: third failure is final.
	if err := m.HandleStatus(context.Background(), task.ID, StatusFailed, nil, "boom"); err != nil {
		t.Fatalf("failed report: %v", err)
	}
	if got := store.taskStatus(t, task.ID); got != StatusFailed {
		t.Errorf("after exhausting retries status = %s, want failed", got)
	}
}

func TestManager_ExecutorRejectionRetries(t *testing.T) {
	store := newMemStore()
	addAgent(store, "a1", 3)
	exec := &memExecutor{failWith: fmt.Errorf("connection refused")}
	m := newTestManager(t, store, exec, Options{MaxRetries: 1, RetryDelay: time.Millisecond, Timeout: time.Minute})

	task, err := m.Create(context.Background(), &Task{AgentID: "a1", Type: "web_search"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	waitFor(t, func() bool { return store.taskStatus(t, task.ID) == StatusFailed })
}

func TestManager_TimeoutForcesFailure(t *testing.T) {
	store := newMemStore()
	addAgent(store, "a1", 3)
	exec := &memExecutor{}
	m := newTestManager(t, store, exec, Options{MaxRetries: 1, RetryDelay: time.Millisecond, Timeout: 10 * time.Millisecond})

	task, err := m.Create(context.Background(), &Task{AgentID: "a1", Type: "web_search"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Executor accepts but never reports back; the watchdog fires, one retry
	// runs, times out again, and the task fails.
	waitFor(t, func() bool { return store.taskStatus(t, task.ID) == StatusFailed })
	if exec.executedCount() != 2 {
		t.Errorf("expected original dispatch plus one retry, got %d", exec.executedCount())
	}
	if got, _ := store.GetTask(context.Background(), task.ID); got.Error != "task timed out" {
		t.Errorf("error = %q, want timeout message", got.Error)
	}
}

func TestManager_Cancel(t *testing.T) {
	store := newMemStore()
	addAgent(store, "a1", 2)
	exec := &memExecutor{}
	m := newTestManager(t, store, exec, Options{})

	// Cancel a held task.
	held, err := m.Create(context.Background(), &Task{AgentID: "a1", Type: "email_send"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.Cancel(context.Background(), held.ID); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	if got := store.taskStatus(t, held.ID); got != StatusCancelled {
		t.Errorf("status = %s, want cancelled", got)
	}
	if len(exec.cancelled) != 0 {
		t.Error("cancelling a held task must not call the executor")
	}

	// Cancel a running task notifies the executor.
	running, err := m.Create(context.Background(), &Task{AgentID: "a1", Type: "web_search"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.HandleStatus(context.Background(), running.ID, StatusRunning, nil, ""); err != nil {
		t.Fatalf("running: %v", err)
	}
	if err := m.Cancel(context.Background(), running.ID); err != nil {
		t.Fatalf("cancel running: %v", err)
	}
	if len(exec.cancelled) != 1 || exec.cancelled[0] != running.ID {
		t.Errorf("executor cancel calls = %v, want [%s]", exec.cancelled, running.ID)
	}

	// A terminal task cannot be cancelled.
	if err := m.Cancel(context.Background(), running.ID); err == nil {
		t.Error("cancelling a cancelled task must fail")
	}
}

func TestCanTransition(t *testing.T) {
	legal := [][2]string{
		{StatusPending, StatusScheduled},
		{StatusPending, StatusCancelled},
		{StatusScheduled, StatusRunning},
		{StatusScheduled, StatusFailed},
		{StatusScheduled, StatusCancelled},
		{StatusRunning, StatusCompleted},
		{StatusRunning, StatusFailed},
		{StatusRunning, StatusCancelled},
	}
	for _, p := range legal {
		if !CanTransition(p[0], p[1]) {
			t.Errorf("%s -> %s should be legal", p[0], p[1])
		}
	}

	illegal := [][2]string{
		{StatusPending, StatusRunning},
		{StatusPending, StatusCompleted},
		{StatusCompleted, StatusRunning},
		{StatusFailed, StatusScheduled},
		{StatusCancelled, StatusPending},
		{StatusRunning, StatusPending},
	}
	for _, p := range illegal {
		if CanTransition(p[0], p[1]) {
			t.Errorf("%s -> %s should be illegal", p[0], p[1])
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
