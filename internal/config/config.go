// Package config loads the runner configuration.
package config

import "time"

// Config is the root configuration for the runner.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Store     StoreConfig     `json:"store"`
	Executor  ExecutorConfig  `json:"executor"`
	Execution ExecutionConfig `json:"execution"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Events    EventsConfig    `json:"events"`
	Activity  ActivityConfig  `json:"activity"`
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Path string `json:"path"` // SQLite database file (default: $AGENTFORGE_PATH/runner.db)
}

// ExecutorConfig points at the external agent executor.
type ExecutorConfig struct {
	BaseURL string   `json:"base_url"`
	Timeout Duration `json:"timeout,omitempty"`
}

// ExecutionConfig bounds task execution.
type ExecutionConfig struct {
	MaxRetries   int `json:"max_retries"`
	RetryDelayMs int `json:"retry_delay_ms"`
	TimeoutMs    int `json:"timeout_ms"`
}

// SchedulerConfig holds the due-time engine settings.
type SchedulerConfig struct {
	TickInterval Duration `json:"tick_interval,omitempty"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// ActivityConfig bounds activity log queries.
type ActivityConfig struct {
	DefaultLimit int `json:"default_limit"`
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
