package triggers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Jonnycatx/agentforge-runner/internal/events"
)

// Store is the persistence surface the engine needs. Triggers are re-read
// from the store for every event; the engine holds no state of its own.
type Store interface {
	ListEnabledTriggers(ctx context.Context, triggerType Type) ([]*Trigger, error)
	MarkTriggered(ctx context.Context, id string, at time.Time) error
}

// Dispatcher hands a matched trigger to the task lifecycle manager.
type Dispatcher interface {
	CreateFromTrigger(ctx context.Context, trig *Trigger, input json.RawMessage) error
}

// Engine subscribes to the event bus and evaluates stimuli against triggers.
type Engine struct {
	store      Store
	dispatcher Dispatcher
	bus        *events.Bus

	unsubscribe func()
}

// NewEngine creates a trigger engine.
func NewEngine(store Store, dispatcher Dispatcher, bus *events.Bus) *Engine {
	return &Engine{store: store, dispatcher: dispatcher, bus: bus}
}

// Start subscribes the engine to trigger stimuli on the bus.
func (e *Engine) Start() {
	e.unsubscribe = e.bus.Subscribe(func(ev events.Event) {
		e.HandleEvent(context.Background(), ev)
	},
		events.EventFileCreated,
		events.EventFileModified,
		events.EventEmailReceived,
		events.EventWebhookReceived,
		events.EventManualInvoke,
	)
	slog.Info("triggers: engine started")
}

// Stop unsubscribes the engine from the bus.
func (e *Engine) Stop() {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	slog.Info("triggers: engine stopped")
}

// triggerTypeFor maps a stimulus event type to the trigger type it feeds.
func triggerTypeFor(eventType events.EventType) (Type, bool) {
	switch eventType {
	case events.EventFileCreated, events.EventFileModified:
		return TypeFileSystem, true
	case events.EventEmailReceived:
		return TypeEmail, true
	case events.EventWebhookReceived:
		return TypeWebhook, true
	case events.EventManualInvoke:
		return TypeManual, true
	default:
		return "", false
	}
}

// HandleEvent evaluates one inbound event against all matching triggers.
func (e *Engine) HandleEvent(ctx context.Context, ev events.Event) {
	triggerType, ok := triggerTypeFor(ev.Type)
	if !ok {
		return
	}

	trigs, err := e.store.ListEnabledTriggers(ctx, triggerType)
	if err != nil {
		slog.Warn("triggers: list triggers", "type", triggerType, "error", err)
		return
	}

	for _, trig := range trigs {
		// Events scoped to one agent only reach that agent's triggers.
		if ev.AgentID != "" && trig.AgentID != ev.AgentID {
			continue
		}
		e.evaluate(ctx, trig, ev)
	}
}

func (e *Engine) evaluate(ctx context.Context, trig *Trigger, ev events.Event) {
	// Webhook authentication runs before any condition. A failed secret
	// check rejects the event without touching last_triggered.
	if trig.Type == TypeWebhook && !authenticateWebhook(trig, ev.Payload) {
		slog.Warn("triggers: webhook auth failed", "id", trig.ID, "name", trig.Name)
		return
	}

	if !EvaluateAll(trig.Config.Conditions, ev.Payload) {
		return
	}

	now := time.Now().UTC()
	if err := e.store.MarkTriggered(ctx, trig.ID, now); err != nil {
		slog.Error("triggers: mark triggered", "id", trig.ID, "error", err)
		return
	}
	trig.LastTriggered = &now

	data := ev.Payload
	if trig.Type == TypeWebhook {
		// The shared secret authenticates the call; it never reaches the task.
		data = make(map[string]any, len(ev.Payload))
		for k, v := range ev.Payload {
			if k == "secret" {
				continue
			}
			data[k] = v
		}
	}

	input, err := MergeInput(trig.TaskInput, data)
	if err != nil {
		slog.Error("triggers: merge input", "id", trig.ID, "error", err)
		return
	}

	if err := e.dispatcher.CreateFromTrigger(ctx, trig, input); err != nil {
		slog.Error("triggers: dispatch", "id", trig.ID, "error", err)
		return
	}

	e.bus.Publish(events.NewEventForAgent(events.EventTriggerMatched, events.SourceTriggers, trig.AgentID, map[string]any{
		"trigger_id": trig.ID,
		"name":       trig.Name,
		"event_type": string(ev.Type),
	}))

	slog.Info("triggers: matched", "id", trig.ID, "name", trig.Name, "event", ev.Type)
}

// authenticateWebhook checks the shared secret and, when configured, the
// endpoint path. Triggers without a secret accept any caller.
func authenticateWebhook(trig *Trigger, payload map[string]any) bool {
	cfg := trig.Config.Webhook
	if cfg == nil {
		return false
	}
	if cfg.Endpoint != "" {
		if ep, _ := payload["endpoint"].(string); ep != cfg.Endpoint {
			return false
		}
	}
	if cfg.Secret == "" {
		return true
	}
	secret, _ := payload["secret"].(string)
	return secret == cfg.Secret
}

// MergeInput overlays event data on the trigger's task_input template.
// Event fields win on key conflict.
func MergeInput(template json.RawMessage, data map[string]any) (json.RawMessage, error) {
	merged := make(map[string]any)
	if len(template) > 0 {
		if err := json.Unmarshal(template, &merged); err != nil {
			return nil, err
		}
	}
	for k, v := range data {
		merged[k] = v
	}
	return json.Marshal(merged)
}
