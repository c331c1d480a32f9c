// Package transport delivers messages and document payloads to the
// Telegram Bot API. Every outbound call passes through one of two quota
// pools (control messages vs. media uploads) and a bounded retry loop.
// A provider-signaled rate limit suspends for exactly the signaled
// duration without consuming a retry attempt.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"courier/internal/config"
	"courier/internal/logging"
)

const (
	defaultBaseURL     = "https://api.telegram.org"
	defaultHTTPTimeout = 120 * time.Second
)

// Message identifies a delivered unit on the remote side.
type Message struct {
	ID     int64
	FileID string
}

// Client talks to the Bot API for a single bot token.
type Client struct {
	token          string
	chatID         int64
	forwardChatID  int64
	forwardEnabled bool
	baseURL        string

	httpClient *http.Client
	logger     *slog.Logger

	controlLimiter *rate.Limiter
	mediaLimiter   *rate.Limiter

	retryAttempts int
	retryDelay    time.Duration
	sleeper       func(time.Duration)

	mu            sync.Mutex
	pendingErrors map[string]int64 // source path -> error notice message id
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a transport client from the telegram and limits
// configuration sections.
func NewClient(tg config.Telegram, limits config.Limits, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := defaultHTTPTimeout
	if tg.RequestTimeout > 0 {
		timeout = time.Duration(tg.RequestTimeout) * time.Second
	}
	baseURL := strings.TrimRight(strings.TrimSpace(tg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	messagesPerSecond := limits.MessagesPerSecond
	if messagesPerSecond <= 0 {
		messagesPerSecond = 1
	}
	uploadsPerMinute := limits.UploadsPerMinute
	if uploadsPerMinute <= 0 {
		uploadsPerMinute = 20
	}
	attempts := limits.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := time.Duration(limits.RetryDelaySeconds) * time.Second
	if delay <= 0 {
		delay = 5 * time.Second
	}
	client := &Client{
		token:          strings.TrimSpace(tg.Token),
		chatID:         tg.ChatID,
		forwardChatID:  tg.ForwardChatID,
		forwardEnabled: tg.ForwardEnabled && tg.ForwardChatID != 0,
		baseURL:        baseURL,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger,
		controlLimiter: rate.NewLimiter(rate.Limit(messagesPerSecond), 1),
		mediaLimiter:   rate.NewLimiter(rate.Limit(float64(uploadsPerMinute)/60.0), 1),
		retryAttempts:  attempts,
		retryDelay:     delay,
		pendingErrors:  make(map[string]int64),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// apiError is a non-2xx or ok=false response from the Bot API. A
// positive RetryAfter carries the provider's "rate exceeded" wait.
type apiError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *apiError) Error() string {
	return fmt.Sprintf("telegram %s: api error %d: %s", e.Method, e.Code, e.Description)
}

func (e *apiError) transient() bool {
	switch {
	case e.Code == http.StatusRequestTimeout,
		e.Code == http.StatusTooManyRequests,
		e.Code >= http.StatusInternalServerError:
		return true
	}
	return false
}

func isTransient(err error) bool {
	var statusErr *apiError
	if errors.As(err, &statusErr) {
		return statusErr.transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// Connection-level failures (refused, reset) are worth another try.
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return false
}

// withRetry runs call under the retry policy: a provider retry-after
// wait never consumes an attempt, any other transient error costs one
// attempt after a fixed delay, and permanent errors fail immediately.
func (c *Client) withRetry(ctx context.Context, op string, call func(context.Context) error) error {
	attempt := 1
	for {
		err := call(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var statusErr *apiError
		if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
			c.logger.Warn("provider rate limit, waiting",
				logging.String("op", op),
				logging.Duration("retry_after", statusErr.RetryAfter))
			if serr := c.sleep(ctx, statusErr.RetryAfter); serr != nil {
				return serr
			}
			continue
		}

		if !isTransient(err) {
			return err
		}
		if attempt >= c.retryAttempts {
			return fmt.Errorf("%s: failed after %d attempts: %w", op, c.retryAttempts, err)
		}
		c.logger.Warn("transient transport error, retrying",
			logging.String("op", op),
			logging.Int("attempt", attempt),
			logging.Error(err))
		if serr := c.sleep(ctx, c.retryDelay); serr != nil {
			return serr
		}
		attempt++
	}
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// callJSON issues one JSON-bodied Bot API call and decodes the result
// envelope into out (which may be nil).
func (c *Client) callJSON(ctx context.Context, method string, params any, out any) error {
	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("telegram %s: encode body: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("telegram %s: new request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: http error: %w", method, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram %s: read body: %w", method, err)
	}
	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("telegram %s: decode response (http %d): %w", method, resp.StatusCode, err)
	}
	if !envelope.OK {
		statusErr := &apiError{
			Method:      method,
			Code:        envelope.ErrorCode,
			Description: envelope.Description,
		}
		if statusErr.Code == 0 {
			statusErr.Code = resp.StatusCode
		}
		if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
			statusErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		return statusErr
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}
