package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/Jonnycatx/agentforge-runner/internal/events"
)

type fakeStore struct {
	schedules []*Schedule
	fired     []string
}

func (f *fakeStore) ListEnabledSchedules(_ context.Context) ([]*Schedule, error) {
	var out []*Schedule
	for _, s := range f.schedules {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkScheduleFired(_ context.Context, id string, lastRun time.Time, nextRun *time.Time, disable bool) error {
	f.fired = append(f.fired, id)
	for _, s := range f.schedules {
		if s.ID == id {
			lr := lastRun
			s.LastRun = &lr
			s.NextRun = nextRun
			if disable {
				s.Enabled = false
			}
		}
	}
	return nil
}

type fakeDispatcher struct {
	created  []string
	released int
}

func (f *fakeDispatcher) CreateFromSchedule(_ context.Context, sched *Schedule) error {
	f.created = append(f.created, sched.ID)
	return nil
}

func (f *fakeDispatcher) ReleaseDueTasks(_ context.Context, _ time.Time) error {
	f.released++
	return nil
}

func newTestEngine(store *fakeStore, disp *fakeDispatcher) (*Engine, func()) {
	bus := events.NewBus(16)
	eng := NewEngine(store, disp, bus, time.Minute)
	return eng, bus.Close
}

func TestIsDue_Recurring(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 30, 0, time.UTC) // Monday 09:00
	s := &Schedule{ID: "s1", CronExpr: "0 9 * * 1", Enabled: true}

	if !IsDue(s, now) {
		t.Fatal("expected schedule due at matching minute")
	}

	off := time.Date(2025, 3, 10, 9, 1, 0, 0, time.UTC)
	if IsDue(s, off) {
		t.Fatal("expected schedule not due at 09:01")
	}
}

func TestIsDue_DisabledNeverDue(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s := &Schedule{CronExpr: "0 9 * * 1", Enabled: false}
	if IsDue(s, now) {
		t.Fatal("disabled schedule must never be due")
	}
}

// Repeated evaluation within the same minute fires exactly once.
func TestEngine_NoDoubleFireWithinMinute(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 10, 0, time.UTC)
	store := &fakeStore{schedules: []*Schedule{{
		ID: "s1", AgentID: "a1", CronExpr: "0 9 * * *", TaskType: "digest", Enabled: true,
	}}}
	disp := &fakeDispatcher{}
	eng, closeBus := newTestEngine(store, disp)
	defer closeBus()

	eng.Tick(context.Background(), now)
	eng.Tick(context.Background(), now.Add(20*time.Second))
	eng.Tick(context.Background(), now.Add(40*time.Second))

	if len(disp.created) != 1 {
		t.Fatalf("expected exactly 1 firing, got %d", len(disp.created))
	}

	// The next matching minute fires again.
	eng.Tick(context.Background(), now.Add(24*time.Hour))
	if len(disp.created) != 2 {
		t.Fatalf("expected 2 firings after next matching minute, got %d", len(disp.created))
	}
}

func TestEngine_OneShotFiresOnceAndDisables(t *testing.T) {
	runAt := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{schedules: []*Schedule{{
		ID: "once", AgentID: "a1", RunAt: &runAt, TaskType: "report", Enabled: true,
	}}}
	disp := &fakeDispatcher{}
	eng, closeBus := newTestEngine(store, disp)
	defer closeBus()

	// Before run_at: nothing.
	eng.Tick(context.Background(), runAt.Add(-time.Minute))
	if len(disp.created) != 0 {
		t.Fatalf("fired before run_at")
	}

	eng.Tick(context.Background(), runAt.Add(time.Second))
	if len(disp.created) != 1 {
		t.Fatalf("expected 1 firing, got %d", len(disp.created))
	}

	sched := store.schedules[0]
	if sched.Enabled {
		t.Error("one-shot schedule must be disabled after firing")
	}
	if sched.NextRun != nil {
		t.Error("one-shot schedule must not get a next_run")
	}

	// Further ticks never fire it again.
	eng.Tick(context.Background(), runAt.Add(time.Hour))
	if len(disp.created) != 1 {
		t.Fatalf("one-shot fired twice")
	}
}

func TestEngine_AdvancesNextRun(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{schedules: []*Schedule{{
		ID: "s1", AgentID: "a1", CronExpr: "0 9 * * *", TaskType: "digest", Enabled: true,
	}}}
	disp := &fakeDispatcher{}
	eng, closeBus := newTestEngine(store, disp)
	defer closeBus()

	eng.Tick(context.Background(), now)

	sched := store.schedules[0]
	if sched.LastRun == nil || !sched.LastRun.Equal(now) {
		t.Fatalf("expected last_run %v, got %v", now, sched.LastRun)
	}
	want := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	if sched.NextRun == nil || !sched.NextRun.Equal(want) {
		t.Fatalf("expected next_run %v, got %v", want, sched.NextRun)
	}
}

// Every tick also sweeps deferred tasks, schedules or not.
func TestEngine_TickReleasesDeferredTasks(t *testing.T) {
	store := &fakeStore{}
	disp := &fakeDispatcher{}
	eng, closeBus := newTestEngine(store, disp)
	defer closeBus()

	eng.Tick(context.Background(), time.Now())
	eng.Tick(context.Background(), time.Now())

	if disp.released != 2 {
		t.Fatalf("expected one release pass per tick, got %d", disp.released)
	}
}

func TestSchedule_Validate(t *testing.T) {
	runAt := time.Now().Add(time.Hour)

	valid := []Schedule{
		{AgentID: "a", TaskType: "t", CronExpr: "0 9 * * *"},
		{AgentID: "a", TaskType: "t", RunAt: &runAt},
	}
	for i, s := range valid {
		if err := s.Validate(); err != nil {
			t.Errorf("case %d: valid schedule rejected: %v", i, err)
		}
	}

	invalid := []Schedule{
		{AgentID: "a", TaskType: "t"},                                     // neither
		{AgentID: "a", TaskType: "t", CronExpr: "0 9 * * *", RunAt: &runAt}, // both
		{AgentID: "a", TaskType: "t", CronExpr: "not a cron"},
		{TaskType: "t", CronExpr: "0 9 * * *"}, // missing agent
		{AgentID: "a", CronExpr: "0 9 * * *"},  // missing task type
	}
	for i, s := range invalid {
		if err := s.Validate(); err == nil {
			t.Errorf("case %d: invalid schedule accepted", i)
		}
	}
}
