// Package flux is the single point of HTTP egress to the FLUX backend.
// It owns the current endpoint, the default headers, the per-request
// timeout, and the retry policy; everything above it works with typed
// errors and normalized response shapes.
package flux

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gstredny/flux-image-generator/internal/endpoint"
)

// API is the backend surface consumed by the orchestrator and monitor.
// Implemented by *Client; fakes implement it in tests.
type API interface {
	Health(ctx context.Context) (*HealthInfo, error)
	Status(ctx context.Context) (*StatusSnapshot, error)
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	GenerateBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error)
	Progress(ctx context.Context, requestID string) (*ProgressSnapshot, error)
	Models(ctx context.Context) ([]ModelInfo, error)
}

var _ API = (*Client)(nil)

const (
	defaultUserAgent = "fluxgen/0.1"
	requestTimeout   = 120 * time.Second
)

// RetryPolicy bounds transparent retries of failed requests. The delay
// before retry n (1-indexed) is BaseDelay * 2^(n-1).
//
// Retries fire on any transport failure, including client errors that
// will never succeed on a second attempt. That looseness is deliberate:
// tunnel frontends are known to answer with spurious 4xxs while the
// backend restarts, and treating them as transient is what keeps a
// cold-starting notebook usable.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy retries three times with 1s, 2s, 4s delays.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}
}

// Delay returns the backoff before retry attempt (1-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay << (attempt - 1)
}

// Client talks to the FLUX backend HTTP API. The endpoint is a single
// mutable slot: SetEndpoint is visible to subsequent calls but never
// retargets a request already in flight.
type Client struct {
	mu      sync.RWMutex
	baseURL string

	http      *http.Client
	retry     RetryPolicy
	userAgent string
}

// NewClient builds a Client for the given backend URL. An empty rawURL is
// accepted so the application can start unconfigured; requests then fail
// with an endpoint error until SetEndpoint succeeds.
func NewClient(rawURL string) (*Client, error) {
	c := &Client{
		http:      &http.Client{Timeout: requestTimeout},
		retry:     DefaultRetryPolicy(),
		userAgent: defaultUserAgent,
	}
	if endpoint.Sanitize(rawURL) != "" {
		if err := c.SetEndpoint(rawURL); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SetEndpoint sanitizes, validates, and stores a new base URL. It does
// not trigger a readiness re-check; callers that care must force one.
func (c *Client) SetEndpoint(rawURL string) error {
	clean := endpoint.Sanitize(rawURL)
	if !endpoint.IsValid(clean) {
		issue := endpoint.Diagnose(rawURL)
		if issue == "" {
			issue = endpoint.IssueInvalid
		}
		return &Error{Kind: KindEndpoint, Message: string(issue)}
	}
	c.mu.Lock()
	c.baseURL = clean
	c.mu.Unlock()
	return nil
}

// SetRetryPolicy overrides the default retry policy. Tests and the
// local mock backend use short delays; production keeps the default.
func (c *Client) SetRetryPolicy(p RetryPolicy) {
	c.mu.Lock()
	c.retry = p
	c.mu.Unlock()
}

func (c *Client) retryPolicy() RetryPolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.retry
}

// Endpoint returns the current base URL, or empty when unconfigured.
func (c *Client) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) (*HealthInfo, error) {
	var payload HealthInfo
	if err := c.do(ctx, http.MethodGet, "/health", nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Status probes GET /status and returns the alias-normalized snapshot.
func (c *Client) Status(ctx context.Context) (*StatusSnapshot, error) {
	var payload StatusSnapshot
	if err := c.do(ctx, http.MethodGet, "/status", nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Generate runs a synchronous POST /generate. A 200 reply with
// success:false still counts as a backend failure (older backends report
// generation errors that way instead of via status codes).
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var payload GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/generate", req, &payload); err != nil {
		return nil, err
	}
	if !payload.Success {
		return nil, &Error{Kind: KindBackend, Message: "generation failed", Detail: payload.Error}
	}
	return &payload, nil
}

// GenerateBatch submits POST /generate/batch.
func (c *Client) GenerateBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	var payload BatchResponse
	if err := c.do(ctx, http.MethodPost, "/generate/batch", req, &payload); err != nil {
		return nil, err
	}
	if !payload.Success {
		return nil, &Error{Kind: KindBackend, Message: "batch submission failed", Detail: payload.Message}
	}
	return &payload, nil
}

// Progress queries GET /progress/{id} for an async job.
func (c *Client) Progress(ctx context.Context, requestID string) (*ProgressSnapshot, error) {
	var payload ProgressSnapshot
	if err := c.do(ctx, http.MethodGet, "/progress/"+url.PathEscape(requestID), nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Models lists GET /models.
func (c *Client) Models(ctx context.Context) ([]ModelInfo, error) {
	var payload struct {
		Models []ModelInfo `json:"models"`
	}
	if err := c.do(ctx, http.MethodGet, "/models", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Models, nil
}

// do performs one logical request: attempt, then up to MaxRetries
// retries with exponential backoff, then surface the original error
// annotated with the endpoint and path.
func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	base := c.Endpoint()
	if base == "" {
		return &Error{Kind: KindEndpoint, Message: "no endpoint configured"}
	}

	var encoded []byte
	if body != nil {
		var err error
		if encoded, err = json.Marshal(body); err != nil {
			return &Error{Kind: KindUnknown, Message: "encode request", Err: err}
		}
	}

	retry := c.retryPolicy()
	var lastErr error
	attempts := 1 + retry.MaxRetries
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := retry.Delay(attempt)
			log.Printf("[flux] retry %d/%d for %s %s in %s", attempt, retry.MaxRetries, method, path, delay)
			select {
			case <-ctx.Done():
				return c.annotate(method, path, base, lastErr)
			case <-time.After(delay):
			}
		}
		lastErr = c.attempt(ctx, base, method, path, encoded, dest)
		if lastErr == nil {
			return nil
		}
	}
	return c.annotate(method, path, base, lastErr)
}

func (c *Client) annotate(method, path, base string, err error) error {
	if err == nil {
		err = context.Canceled
	}
	return fmt.Errorf("%s %s (endpoint %s): %w", method, path, base, err)
}

func (c *Client) attempt(ctx context.Context, base, method, path string, body []byte, dest any) error {
	start := time.Now()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return &Error{Kind: KindUnknown, Message: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	// Suppresses the interstitial warning page ngrok injects on
	// browser-looking requests.
	req.Header.Set("ngrok-skip-browser-warning", "true")

	resp, err := c.http.Do(req)
	if err != nil {
		classified := classifyTransport(err)
		log.Printf("[flux] %s %s failed after %.2fs: %v", method, path, time.Since(start).Seconds(), err)
		return classified
	}
	defer func() { _ = resp.Body.Close() }()

	log.Printf("[flux] %s %s -> %d bytes=%d dur=%.2fs", method, path, resp.StatusCode, len(body), time.Since(start).Seconds())

	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode, resp.Body)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &Error{Kind: KindUnknown, Message: "decode response", Err: err}
	}
	return nil
}

func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "request exceeded timeout", Err: err}
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return &Error{Kind: KindTimeout, Message: "request exceeded timeout", Err: err}
	}
	return &Error{Kind: KindConnectivity, Message: "network unreachable", Err: err}
}

func classifyStatus(code int, body io.Reader) error {
	detail := readErrorDetail(body)
	switch {
	case code == http.StatusServiceUnavailable:
		if detail == "" {
			detail = "model is still loading"
		}
		return &Error{Kind: KindModelsLoading, Message: "models are still loading", Detail: detail}
	case code == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Message: "not found", Detail: detail}
	case code >= 400 && code < 500:
		return &Error{Kind: KindValidation, Message: fmt.Sprintf("backend rejected request (%d)", code), Detail: detail}
	default:
		return &Error{Kind: KindBackend, Message: fmt.Sprintf("backend error (%d)", code), Detail: detail}
	}
}

// readErrorDetail pulls the human-readable message out of an error body.
// FastAPI wraps HTTPException text in {"detail": ...}; older handlers
// use {"error": ...} or {"message": ...}.
func readErrorDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var wire struct {
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return ""
	}
	switch {
	case wire.Detail != "":
		return wire.Detail
	case wire.Error != "":
		return wire.Error
	default:
		return wire.Message
	}
}
