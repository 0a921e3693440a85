// Package executor is the HTTP client for the external agent executor, the
// process that actually runs LLM work. The runner hands tasks over and the
// executor reports progress back through the gateway's status callback.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Jonnycatx/agentforge-runner/internal/tasks"
)

// Client talks to the executor over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates an executor client. A zero timeout defaults to 30s.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type executeRequest struct {
	TaskID   string          `json:"task_id"`
	AgentID  string          `json:"agent_id"`
	TaskType string          `json:"task_type"`
	Input    json.RawMessage `json:"input,omitempty"`
}

type cancelRequest struct {
	TaskID string `json:"task_id"`
}

// Execute hands a task to the executor. A 2xx response means accepted;
// completion arrives later through the status callback.
func (c *Client) Execute(ctx context.Context, task *tasks.Task) error {
	return c.post(ctx, "/execute", executeRequest{
		TaskID:   task.ID,
		AgentID:  task.AgentID,
		TaskType: task.Type,
		Input:    task.Input,
	})
}

// Cancel asks the executor to stop a running task. Best effort; the
// executor may have already finished.
func (c *Client) Cancel(ctx context.Context, taskID string) error {
	return c.post(ctx, "/cancel", cancelRequest{TaskID: taskID})
}

// Health probes the executor's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("executor: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("executor: health: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("executor: health: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("executor: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("executor: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("executor: %s: %w", path, err)
	}
	defer drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("executor: %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
