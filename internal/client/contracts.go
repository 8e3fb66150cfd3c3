// Contract queue API client used by terminal views.
//
// Environment (cmd/queuewatch):
//   - QUEUE_API_URL: API base URL (default http://localhost:8080)
//   - QUEUE_USERNAME / QUEUE_PASSWORD: staff credentials

package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/contractqueue/backend/internal/model"
)

// APIError - non-2xx reply from the contract API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("contract api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("contract api returned status %d: %s", e.StatusCode, e.Message)
}

// ContractsClient - bearer-authenticated client for /api/v1/contracts.
// After Login, a 401 triggers one fresh login and a single retry.
type ContractsClient struct {
	baseURL    string
	httpClient *http.Client
	stream     *http.Client

	mu       sync.RWMutex
	token    string
	loginID  string
	password string

	// serializes re-logins so concurrent 401s share one
	authMu sync.Mutex
}

func NewContractsClient(baseURL string) *ContractsClient {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &ContractsClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		// event streams stay open indefinitely
		stream: &http.Client{},
	}
}

// SetToken replaces the bearer token sent with every request
func (c *ContractsClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *ContractsClient) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login exchanges credentials for an access token and keeps both for re-login on expiry
func (c *ContractsClient) Login(ctx context.Context, loginID, password string) error {
	c.mu.Lock()
	c.loginID, c.password = loginID, password
	c.mu.Unlock()
	return c.login(ctx)
}

func (c *ContractsClient) login(ctx context.Context) error {
	c.mu.RLock()
	creds := model.AuthRequest{ID: c.loginID, Password: c.password}
	c.mu.RUnlock()

	var resp model.AuthResponse
	if err := c.send(ctx, http.MethodPost, "/api/v1/auth/login", creds, &resp, ""); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	c.SetToken(resp.AccessToken)
	return nil
}

// reauthenticate logs in again unless another caller already replaced the stale token
func (c *ContractsClient) reauthenticate(ctx context.Context, stale string) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	if c.currentToken() != stale {
		return nil
	}
	c.mu.RLock()
	hasCreds := c.loginID != ""
	c.mu.RUnlock()
	if !hasCreds {
		return errors.New("access token rejected and no credentials to log in again")
	}
	return c.login(ctx)
}

func (c *ContractsClient) ListActive(ctx context.Context) ([]model.ActiveContract, error) {
	var resp model.ActiveContractListResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/contracts/active", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *ContractsClient) Complete(ctx context.Context, id int64) (*model.CompletedContract, error) {
	var resp model.CompletedContractResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/contracts/active/%d/complete", id), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *ContractsClient) Remove(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/contracts/active/%d", id), nil, nil)
}

// Stream reads the queue event stream and sends one signal per event.
// Signals are dropped while the receiver is still busy with the previous one.
// It returns when ctx is done or the server closes the stream.
func (c *ContractsClient) Stream(ctx context.Context, signals chan<- struct{}) error {
	resp, err := c.openStream(ctx)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if !strings.HasPrefix(scanner.Text(), "data:") {
			continue
		}
		select {
		case signals <- struct{}{}:
		default:
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("event stream interrupted: %w", err)
	}
	return io.EOF
}

func (c *ContractsClient) openStream(ctx context.Context) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		token := c.currentToken()
		req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/contracts/events", nil, token)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.stream.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to open event stream: %w", err)
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := readAPIError(resp)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized || attempt > 0 {
			return nil, apiErr
		}
		if err := c.reauthenticate(ctx, token); err != nil {
			return nil, err
		}
	}
}

func (c *ContractsClient) do(ctx context.Context, method, path string, body, out any) error {
	token := c.currentToken()
	err := c.send(ctx, method, path, body, out, token)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		return err
	}
	if authErr := c.reauthenticate(ctx, token); authErr != nil {
		return errors.Join(err, authErr)
	}
	return c.send(ctx, method, path, body, out, c.currentToken())
}

func (c *ContractsClient) send(ctx context.Context, method, path string, body, out any, token string) error {
	req, err := c.newRequest(ctx, method, path, body, token)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *ContractsClient) newRequest(ctx context.Context, method, path string, body any, token string) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body) == nil {
		apiErr.Message = body.Message
		if apiErr.Message == "" {
			apiErr.Message = body.Error
		}
	}
	return apiErr
}
