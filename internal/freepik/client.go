package freepik

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/digkill/TGMysticBot/internal/config"
)

var (
	// ErrProviderUnavailable covers transport failures, timeouts, 5xx answers and
	// bodies that cannot be decoded. Callers may retry.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrProviderRejected is returned when the provider refuses the request itself.
	ErrProviderRejected = errors.New("provider rejected request")
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Client talks to the Mystic text-to-image endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	resolution string
	filterNSFW bool
	httpClient *http.Client
	log        *slog.Logger
}

type SubmitRequest struct {
	Prompt      string
	AspectRatio string
}

// Task is the handle returned by Submit.
type Task struct {
	TaskID string
	Status Status
}

// TaskStatus is a single poll observation. ResultURL is set only for StatusCompleted.
type TaskStatus struct {
	TaskID    string
	Status    Status
	ResultURL string
	Raw       string
}

type taskEnvelope struct {
	Data struct {
		TaskID    string   `json:"task_id"`
		Status    string   `json:"status"`
		Generated []string `json:"generated"`
	} `json:"data"`
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey:     cfg.FreepikAPIKey,
		baseURL:    strings.TrimRight(cfg.FreepikBaseURL, "/"),
		model:      cfg.FreepikModel,
		resolution: cfg.FreepikResolution,
		filterNSFW: cfg.FreepikFilterNSFW,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Submit creates a generation task. Every error wraps ErrProviderUnavailable or ErrProviderRejected.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Task, error) {
	payload := map[string]any{
		"prompt":       req.Prompt,
		"aspect_ratio": req.AspectRatio,
		"resolution":   c.resolution,
		"model":        c.model,
		"filter_nsfw":  c.filterNSFW,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	fullURL, err := c.endpoint("/v1/ai/mystic")
	if err != nil {
		return nil, err
	}
	if c.log != nil {
		c.log.Info("creating mystic task", "url", fullURL, "aspect_ratio", req.AspectRatio)
	}

	env, err := c.do(ctx, http.MethodPost, fullURL, body)
	if err != nil {
		return nil, err
	}
	if env.Data.TaskID == "" {
		return nil, fmt.Errorf("%w: empty task_id in response", ErrProviderUnavailable)
	}

	if c.log != nil {
		c.log.Info("mystic task created", "task_id", env.Data.TaskID, "status", env.Data.Status)
	}
	return &Task{TaskID: env.Data.TaskID, Status: mapStatus(env.Data.Status, env.Data.Generated)}, nil
}

// Poll fetches the current state of a task once.
func (c *Client) Poll(ctx context.Context, taskID string) (*TaskStatus, error) {
	if taskID == "" {
		return nil, fmt.Errorf("%w: task id is required", ErrProviderRejected)
	}
	fullURL, err := c.endpoint("/v1/ai/mystic/" + url.PathEscape(taskID))
	if err != nil {
		return nil, err
	}

	env, err := c.do(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}

	st := &TaskStatus{
		TaskID: taskID,
		Status: mapStatus(env.Data.Status, env.Data.Generated),
		Raw:    env.Data.Status,
	}
	if st.Status == StatusCompleted {
		st.ResultURL = env.Data.Generated[0]
	}
	return st, nil
}

func (c *Client) endpoint(path string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *Client) do(ctx context.Context, method, fullURL string, body []byte) (*taskEnvelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("x-freepik-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrProviderUnavailable, method, fullURL, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ErrProviderUnavailable, err)
	}

	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("mystic request failed", "method", method, "status", resp.StatusCode, "url", fullURL, "body", truncateBody(rawBody))
		}
		return nil, fmt.Errorf("%w: status=%d body=%s", classify(resp.StatusCode), resp.StatusCode, truncateBody(rawBody))
	}

	var env taskEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v (body=%s)", ErrProviderUnavailable, err, truncateBody(rawBody))
	}
	return &env, nil
}

func classify(code int) error {
	switch {
	case code >= 500, code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return ErrProviderUnavailable
	default:
		return ErrProviderRejected
	}
}

// mapStatus folds the provider's states into three. COMPLETED without any
// generated reference is still pending.
func mapStatus(raw string, generated []string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "COMPLETED":
		if len(generated) > 0 && generated[0] != "" {
			return StatusCompleted
		}
		return StatusPending
	case "FAILED":
		return StatusFailed
	default:
		return StatusPending
	}
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
