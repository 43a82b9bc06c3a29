package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	gserrors "github.com/odvcencio/gensession/pkg/errors"
	"github.com/odvcencio/gensession/pkg/logging"
	"github.com/odvcencio/gensession/pkg/telemetry"
	"github.com/odvcencio/gensession/pkg/tracing"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultRateLimit = rate.Limit(5)
	defaultBurstSize = 10
	maxErrorBody     = 500
)

// RetryConfig configures the retry mechanism for idempotent HTTP requests.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}
}

// Options tune an HTTPClient. Zero values fall back to defaults.
type Options struct {
	Token          string
	Timeout        time.Duration
	RateLimit      float64
	Burst          int
	Retry          *RetryConfig
	CircuitBreaker *CircuitBreakerConfig
	HTTPClient     *http.Client
	Logger         *logging.Logger
}

// HTTPClient talks JSON over HTTP to the generation service.
type HTTPClient struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	rateLimiter    *rate.Limiter
	retryConfig    RetryConfig
	circuitBreaker *CircuitBreaker
	logger         *logging.Logger
}

var _ Client = (*HTTPClient)(nil)
var _ telemetry.Sink = (*HTTPClient)(nil)

// NewHTTPClient creates a client rooted at baseURL.
func NewHTTPClient(baseURL string, opts Options) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := defaultRateLimit
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = defaultBurstSize
	}

	retryConfig := DefaultRetryConfig()
	if opts.Retry != nil {
		retryConfig = *opts.Retry
	}
	cbConfig := DefaultCircuitBreakerConfig()
	if opts.CircuitBreaker != nil {
		cbConfig = *opts.CircuitBreaker
	}

	c := &HTTPClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		token:          opts.Token,
		httpClient:     httpClient,
		rateLimiter:    rate.NewLimiter(limit, burst),
		retryConfig:    retryConfig,
		circuitBreaker: NewCircuitBreaker(cbConfig),
		logger:         opts.Logger,
	}
	c.circuitBreaker.onChange = func(from, to CircuitState) {
		c.logger.Warn(logging.CategoryNetwork, "circuit_breaker", "circuit breaker state changed", map[string]any{
			"from": from.String(),
			"to":   to.String(),
		})
	}
	return c
}

// CircuitBreakerState reports the breaker state for diagnostics.
func (c *HTTPClient) CircuitBreakerState() CircuitState {
	return c.circuitBreaker.State()
}

func (c *HTTPClient) CreateConversation(ctx context.Context) (string, error) {
	var out struct {
		ConversationID string `json:"conversationId"`
	}
	if err := c.doJSON(ctx, "CreateConversation", http.MethodPost, "/conversations", nil, &out); err != nil {
		return "", err
	}
	if out.ConversationID == "" {
		return "", gserrors.New(gserrors.ErrCodeBackendAPI, "service returned an empty conversation id")
	}
	return out.ConversationID, nil
}

func (c *HTTPClient) CreateUploadURL(ctx context.Context, req CreateUploadURLRequest) (*UploadURL, error) {
	var out UploadURL
	path := "/conversations/" + url.PathEscape(req.ConversationID) + "/uploads"
	if err := c.doJSON(ctx, "CreateUploadURL", http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	if out.UploadID == "" || out.URL == "" {
		return nil, gserrors.New(gserrors.ErrCodeUpload, "service returned an incomplete upload url")
	}
	return &out, nil
}

// UploadArchive PUTs the zipped workspace to the presigned url.
func (c *HTTPClient) UploadArchive(ctx context.Context, target *UploadURL, checksum string, data []byte) (err error) {
	ctx, span := tracing.StartSpan(ctx, "backend.UploadArchive",
		attribute.String("upload.id", target.UploadID),
		attribute.Int("upload.bytes", len(data)),
	)
	defer func() { tracing.EndSpan(span, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.URL, bytes.NewReader(data))
	if err != nil {
		return gserrors.Wrap(err, gserrors.ErrCodeUpload, "build upload request")
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Type", "application/zip")
	req.Header.Set("x-amz-checksum-sha256", checksum)
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.execute(req)
	if err != nil {
		return c.classify(err, gserrors.ErrCodeUpload, "upload workspace archive")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *HTTPClient) StartCodeGeneration(ctx context.Context, req StartCodeGenerationRequest) (*StartCodeGenerationResponse, error) {
	var out StartCodeGenerationResponse
	path := "/conversations/" + url.PathEscape(req.ConversationID) + "/code-generations"
	if err := c.doJSON(ctx, "StartCodeGeneration", http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	if out.CodeGenerationID == "" {
		out.CodeGenerationID = req.CodeGenerationID
	}
	return &out, nil
}

func (c *HTTPClient) GetCodeGeneration(ctx context.Context, conversationID, codeGenerationID string) (*CodeGeneration, error) {
	var out CodeGeneration
	path := "/conversations/" + url.PathEscape(conversationID) + "/code-generations/" + url.PathEscape(codeGenerationID)
	if err := c.doJSON(ctx, "GetCodeGeneration", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ExportResultArchive(ctx context.Context, conversationID string) (*ResultArchive, error) {
	var out ResultArchive
	path := "/conversations/" + url.PathEscape(conversationID) + "/result-archive"
	if err := c.doJSON(ctx, "ExportResultArchive", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendTelemetryEvent implements telemetry.Sink.
func (c *HTTPClient) SendTelemetryEvent(ctx context.Context, env telemetry.Envelope) error {
	return c.doJSON(ctx, "SendTelemetryEvent", http.MethodPost, "/telemetry", env, nil)
}

func (c *HTTPClient) doJSON(ctx context.Context, op, method, path string, in, out any) (err error) {
	ctx, span := tracing.StartSpan(ctx, "backend."+op,
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	)
	defer func() { tracing.EndSpan(span, err) }()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return gserrors.Wrap(err, gserrors.ErrCodeInternal, "encode "+op+" request")
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return gserrors.Wrap(err, gserrors.ErrCodeInternal, "build "+op+" request")
	}
	c.setHeaders(req)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.execute(req)
	c.logger.Debug(logging.CategoryNetwork, "request", op, map[string]any{
		"method":      method,
		"path":        path,
		"duration_ms": time.Since(start).Milliseconds(),
		"ok":          err == nil,
	})
	if err != nil {
		return c.classify(err, gserrors.ErrCodeBackendAPI, op)
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return gserrors.Wrap(err, gserrors.ErrCodeBackendAPI, "decode "+op+" response")
	}
	return nil
}

// execute runs req through the circuit breaker and retry loop and returns a
// 2xx response or an error.
func (c *HTTPClient) execute(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := c.circuitBreaker.Call(func() error {
		r, err := c.DoWithRetry(req)
		if err != nil {
			return err
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			apiErr := c.parseError(r)
			r.Body.Close()
			return apiErr
		}
		resp = r
		return nil
	}, countsAsFailure)
	return resp, err
}

// countsAsFailure keeps client errors and cancellations from tripping the breaker.
func countsAsFailure(err error) bool {
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.Retryable
	}
	return !isContextError(err)
}

func (c *HTTPClient) classify(err error, code gserrors.ErrorCode, op string) error {
	if isContextError(err) {
		if errors.Is(err, context.DeadlineExceeded) {
			return gserrors.Wrap(err, gserrors.ErrCodeBackendTimeout, op).WithRetryable(true)
		}
		return gserrors.Wrap(err, gserrors.ErrCodeCancelled, op)
	}
	var open ErrCircuitOpen
	if errors.As(err, &open) {
		return gserrors.Wrap(err, code, op).
			WithRetryable(true).
			WithUserMessage("The generation service is temporarily unavailable. Please try again shortly.")
	}
	wrapped := gserrors.Wrap(err, code, op).WithRetryable(isRetryableError(err))
	if apiErr, ok := asAPIError(err); ok {
		wrapped.WithContext("status", apiErr.StatusCode)
		if apiErr.IsThrottled() {
			wrapped.WithUserMessage("Too many requests. Please wait a moment and try again.")
		}
	}
	return wrapped
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// isRetryableError checks if an error is retryable based on status code.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.Retryable
	}
	// Network errors are generally retryable
	return !isContextError(err)
}

// isIdempotentMethod checks if an HTTP method is idempotent and safe to retry.
func isIdempotentMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// calculateBackoff calculates the delay for the next retry attempt using exponential backoff with jitter.
func (c *HTTPClient) calculateBackoff(attempt int, lastErr error) time.Duration {
	if apiErr, ok := asAPIError(lastErr); ok && apiErr.RetryAfter > 0 {
		if apiErr.RetryAfter > c.retryConfig.MaxInterval {
			return c.retryConfig.MaxInterval
		}
		return apiErr.RetryAfter
	}

	delay := float64(c.retryConfig.InitialInterval)
	for i := 0; i < attempt; i++ {
		delay *= c.retryConfig.Multiplier
	}
	if delay > float64(c.retryConfig.MaxInterval) {
		delay = float64(c.retryConfig.MaxInterval)
	}

	jitter := time.Duration(rand.Float64() * delay * 0.5)
	delay = delay*0.75 + float64(jitter)
	return time.Duration(delay)
}

// DoWithRetry executes an HTTP request with retry logic for idempotent methods.
// For non-idempotent methods (POST, PATCH), it behaves like a regular Do.
func (c *HTTPClient) DoWithRetry(req *http.Request) (*http.Response, error) {
	if !isIdempotentMethod(req.Method) {
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
		return c.httpClient.Do(req)
	}

	var bodyBytes []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		req.Body.Close()
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt-1, lastErr)
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(delay):
			}
		}

		reqClone := req.Clone(req.Context())
		if bodyBytes != nil {
			reqClone.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		resp, err := c.httpClient.Do(reqClone)
		if err == nil {
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				apiErr := c.parseError(resp)
				resp.Body.Close()
				lastErr = apiErr
				if attempt < c.retryConfig.MaxRetries {
					continue
				}
				return nil, apiErr
			}
			return resp, nil
		}

		lastErr = err
		if attempt < c.retryConfig.MaxRetries && isRetryableError(err) {
			continue
		}
		break
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.retryConfig.MaxRetries, lastErr)
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "gensession")
}

// parseError turns a non-2xx response into an *APIError.
func (c *HTTPClient) parseError(resp *http.Response) error {
	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status, Retryable: retryable}
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		message := resp.Status
		if raw := strings.TrimSpace(string(body)); raw != "" {
			if len(raw) > maxErrorBody {
				raw = raw[:maxErrorBody] + "..."
			}
			message = fmt.Sprintf("%s (raw: %s)", resp.Status, raw)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    message,
			Retryable:  retryable,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    errResp.Error.Message,
		Code:       errResp.Error.Code,
		Retryable:  retryable,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// parseRetryAfter parses the Retry-After header
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, header); err == nil {
		return time.Until(t)
	}
	return 0
}
