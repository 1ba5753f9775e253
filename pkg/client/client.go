// Package client talks to a nuko daemon over its HTTP API.
package client

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
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL matches the daemon's default listen address and base path.
	DefaultBaseURL = "http://localhost:8787/api"

	// DefaultRestartTimeout covers the daemon's default restart budget of
	// 60 polls at 500ms plus the stop and start themselves.
	DefaultRestartTimeout = 45 * time.Second
)

// Client provides HTTP client functionality to communicate with the nuko daemon
type Client struct {
	baseURL string
	client  *http.Client
	restart *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration

	// RestartTimeout bounds Restart, which waits for the old worker to exit.
	// It is raised to Timeout when smaller.
	RestartTimeout time.Duration

	Logger *slog.Logger // Optional logger for client operations
}

// APIError is returned when the daemon answers with an error status.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Kind)
}

// IsKind reports whether err is an APIError of the given kind, e.g. "not_running".
func IsKind(err error, kind string) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Kind == kind
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		Timeout:        10 * time.Second,
		RestartTimeout: DefaultRestartTimeout,
	}
}

// New creates a new nuko API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RestartTimeout == 0 {
		config.RestartTimeout = DefaultRestartTimeout
	}
	config.RestartTimeout = max(config.RestartTimeout, config.Timeout)
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
		restart: &http.Client{Timeout: config.RestartTimeout},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	err := c.do(ctx, http.MethodGet, "/instances", nil, nil)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	return true
}

// List returns every instance with its running flag.
func (c *Client) List(ctx context.Context) ([]InstanceInfo, error) {
	var out []InstanceInfo
	err := c.do(ctx, http.MethodGet, "/instances", nil, &out)
	return out, err
}

// Create lays out a new instance on the daemon host.
func (c *Client) Create(ctx context.Context, req CreateRequest) (Instance, error) {
	var out Instance
	err := c.do(ctx, http.MethodPost, "/instances", req, &out)
	return out, err
}

// Info returns one instance with its running flag.
func (c *Client) Info(ctx context.Context, id string) (InstanceInfo, error) {
	var out InstanceInfo
	err := c.do(ctx, http.MethodGet, instancePath(id, ""), nil, &out)
	return out, err
}

func (c *Client) Start(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, instancePath(id, "/start"), nil, nil)
}

// Stop requests a graceful stop; it returns before the worker exits.
func (c *Client) Stop(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, instancePath(id, "/stop"), nil, nil)
}

func (c *Client) Kill(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, instancePath(id, "/kill"), nil, nil)
}

// Restart blocks until the daemon has stopped and started the worker. It is
// bounded by RestartTimeout rather than Timeout. The daemon finishes the
// restart even if this call gives up first.
func (c *Client) Restart(ctx context.Context, id string) error {
	return c.doWith(ctx, c.restart, http.MethodPost, instancePath(id, "/restart"), nil, nil)
}

// Send writes a command line to the worker's stdin.
func (c *Client) Send(ctx context.Context, id, command string) error {
	return c.do(ctx, http.MethodPost, instancePath(id, "/command"), commandRequest{Command: command}, nil)
}

func (c *Client) Status(ctx context.Context, id string) (bool, error) {
	var out statusResponse
	err := c.do(ctx, http.MethodGet, instancePath(id, "/status"), nil, &out)
	return out.Running, err
}

// Logs returns output lines from offset since on. run is the Run of the
// page the offset came from, or 0; when the instance has been restarted
// since, the daemon starts over at the new run's first line.
func (c *Client) Logs(ctx context.Context, id string, run uint64, since int) (LogsPage, error) {
	var out LogsPage
	p := instancePath(id, "/logs")
	q := url.Values{}
	if since > 0 {
		q.Set("since", strconv.Itoa(since))
	}
	if run > 0 {
		q.Set("run", strconv.FormatUint(run, 10))
	}
	if len(q) > 0 {
		p += "?" + q.Encode()
	}
	err := c.do(ctx, http.MethodGet, p, nil, &out)
	return out, err
}

func (c *Client) Metrics(ctx context.Context, id string) (Sample, error) {
	var out Sample
	err := c.do(ctx, http.MethodGet, instancePath(id, "/metrics"), nil, &out)
	return out, err
}

// History returns up to limit lifecycle events, newest first.
func (c *Client) History(ctx context.Context, id string, limit int) ([]HistoryEvent, error) {
	var out []HistoryEvent
	p := instancePath(id, "/history")
	if limit > 0 {
		p += "?limit=" + strconv.Itoa(limit)
	}
	err := c.do(ctx, http.MethodGet, p, nil, &out)
	return out, err
}

func instancePath(id, suffix string) string {
	return "/instances/" + url.PathEscape(id) + suffix
}

// do sends body as JSON (when non-nil) and decodes a successful response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.doWith(ctx, c.client, method, path, body, out)
}

func (c *Client) doWith(ctx context.Context, hc *http.Client, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "path", path)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		c.logger.Debug("Failed to decode error response", "status", resp.StatusCode)
		return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "kind", errorResp.Kind, "status", resp.StatusCode)
	return &APIError{Status: resp.StatusCode, Kind: errorResp.Kind, Message: errorResp.Error}
}
