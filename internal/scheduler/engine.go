package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/Jonnycatx/agentforge-runner/internal/events"
)

// Store is the persistence surface the engine needs. Schedules are re-read
// from the store on every tick; the engine holds no state of its own.
type Store interface {
	ListEnabledSchedules(ctx context.Context) ([]*Schedule, error)
	MarkScheduleFired(ctx context.Context, id string, lastRun time.Time, nextRun *time.Time, disable bool) error
}

// Dispatcher hands due work to the task lifecycle manager. The engine
// decides when; what happens next is the manager's business.
type Dispatcher interface {
	CreateFromSchedule(ctx context.Context, sched *Schedule) error
	// ReleaseDueTasks dispatches tasks whose deferred start time has passed.
	ReleaseDueTasks(ctx context.Context, now time.Time) error
}

// Engine is the due-time poller. One pass per tick, never blocking on task
// execution.
type Engine struct {
	store      Store
	dispatcher Dispatcher
	bus        *events.Bus
	interval   time.Duration

	done chan struct{}
}

// NewEngine creates a due-time engine polling at the given interval.
func NewEngine(store Store, dispatcher Dispatcher, bus *events.Bus, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Engine{
		store:      store,
		dispatcher: dispatcher,
		bus:        bus,
		interval:   interval,
		done:       make(chan struct{}),
	}
}

// Start begins the polling loop in a background goroutine.
func (e *Engine) Start() {
	slog.Info("scheduler: engine started", "interval", e.interval)
	go e.loop()
}

// Stop halts the polling loop.
func (e *Engine) Stop() {
	close(e.done)
	slog.Info("scheduler: engine stopped")
}

func (e *Engine) loop() {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case now := <-ticker.C:
			e.Tick(context.Background(), now)
		}
	}
}

// Tick evaluates all enabled schedules against now and fires the due ones.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	scheds, err := e.store.ListEnabledSchedules(ctx)
	if err != nil {
		slog.Warn("scheduler: list schedules", "error", err)
		return
	}

	for _, sched := range scheds {
		if !IsDue(sched, now) {
			continue
		}
		e.fire(ctx, sched, now)
	}

	// Tasks created with a future scheduled_at ride the same tick.
	if err := e.dispatcher.ReleaseDueTasks(ctx, now); err != nil {
		slog.Warn("scheduler: release due tasks", "error", err)
	}
}

// IsDue reports whether a schedule should fire at now.
// One-shot schedules are due once RunAt has passed and they never fired.
// Recurring schedules are due when the cron expression matches now's minute
// and the last run fell in a strictly earlier minute bucket; the bucket
// check is what prevents double-firing within one evaluation minute.
func IsDue(s *Schedule, now time.Time) bool {
	if !s.Enabled {
		return false
	}

	if !s.Recurring() {
		return s.LastRun == nil && s.RunAt != nil && !s.RunAt.After(now)
	}

	expr, err := ParseCron(s.CronExpr)
	if err != nil {
		return false
	}
	if !expr.Matches(now) {
		return false
	}
	if s.LastRun != nil && !s.LastRun.Truncate(time.Minute).Before(now.Truncate(time.Minute)) {
		return false
	}
	return true
}

func (e *Engine) fire(ctx context.Context, sched *Schedule, now time.Time) {
	var nextRun *time.Time
	disable := false

	if sched.Recurring() {
		expr, err := ParseCron(sched.CronExpr)
		if err != nil {
			slog.Warn("scheduler: invalid cron on due schedule", "id", sched.ID, "error", err)
			return
		}
		next := expr.Next(now)
		nextRun = &next
	} else {
		// One-shot schedules fire at most once.
		disable = true
	}

	// Advance last_run/next_run before dispatch so a dispatch failure cannot
	// cause the same firing to repeat.
	if err := e.store.MarkScheduleFired(ctx, sched.ID, now, nextRun, disable); err != nil {
		slog.Error("scheduler: mark fired", "id", sched.ID, "error", err)
		return
	}
	sched.LastRun = &now
	sched.NextRun = nextRun
	if disable {
		sched.Enabled = false
	}

	if err := e.dispatcher.CreateFromSchedule(ctx, sched); err != nil {
		slog.Error("scheduler: dispatch schedule", "id", sched.ID, "error", err)
		return
	}

	e.bus.Publish(events.NewEventForAgent(events.EventScheduleFired, events.SourceScheduler, sched.AgentID, map[string]any{
		"schedule_id": sched.ID,
		"name":        sched.Name,
		"task_type":   sched.TaskType,
	}))

	slog.Info("scheduler: fired", "id", sched.ID, "name", sched.Name, "next_run", nextRun)
}
