package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/DoyleJ11/zawomons-gt/pkg/types"
	"go.uber.org/zap"
)

// BaseClient talks JSON to the backend. It makes one attempt per call and
// never retries; the caller decides what to do with a failure.
type BaseClient struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger

	mu      sync.RWMutex
	headers map[string]string
	token   string
}

func NewBaseClient(baseURL string, log *zap.Logger) *BaseClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &BaseClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: map[string]string{
			"Accept": "application/json",
		},
		log: log,
	}
}

func (c *BaseClient) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

// SetTimeout works on a copy of the http.Client, which may belong to the caller.
// Call it before the client is in use.
func (c *BaseClient) SetTimeout(timeout time.Duration) {
	hc := *c.client
	hc.Timeout = timeout
	c.client = &hc
}

// SetToken sets the bearer token. An empty token removes the header.
func (c *BaseClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *BaseClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// withToken copies the client settings under another bearer token.
func (c *BaseClient) withToken(token string) *BaseClient {
	c.mu.RLock()
	defer c.mu.RUnlock()
	headers := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		headers[k] = v
	}
	return &BaseClient{
		baseURL: c.baseURL,
		client:  c.client,
		log:     c.log,
		headers: headers,
		token:   token,
	}
}

func (c *BaseClient) BaseURL() string { return c.baseURL }

// Do sends in as JSON (if non-nil) and decodes the response into out (if non-nil).
func (c *BaseClient) Do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.mu.RLock()
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	token := c.token
	c.mu.RUnlock()
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.log.Debug("api call",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &DecodeError{Raw: string(raw), Err: err}
	}
	return nil
}

func (c *BaseClient) Get(ctx context.Context, endpoint string, out any) error {
	return c.Do(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *BaseClient) Post(ctx context.Context, endpoint string, in, out any) error {
	// The backend's POST actions expect a JSON object even when there is nothing to say.
	if in == nil {
		in = struct{}{}
	}
	return c.Do(ctx, http.MethodPost, endpoint, in, out)
}

func newAPIError(status int, raw []byte) *APIError {
	e := &APIError{StatusCode: status, Raw: string(raw)}
	var body types.ErrorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		e.Message = body.Text()
	}
	return e
}
