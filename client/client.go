package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aarushk09/edpear-sdk/config"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultMaxAttempts    = 3
	defaultBaseBackoff    = 200 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
	defaultUserAgent      = "edpear-cli/dev"
)

// ErrUnauthorized is returned when the API rejects the request with a 401.
// Business commands treat it as fatal: the user must log in again.
var ErrUnauthorized = errors.New("unauthorized: session token missing or rejected")

// Client is an edpear API client. Token, when set, is sent as a bearer
// token on every request; an empty Token sends requests unauthenticated.
type Client struct {
	BaseURL    string
	Token      string
	UserAgent  string
	HTTPClient *http.Client

	requestTimeout time.Duration
	maxAttempts    int
	baseBackoff    time.Duration
	maxBackoff     time.Duration
	sleep          func(time.Duration)
	randInt63n     func(int64) int64
	now            func() time.Time
}

type rawResponse struct {
	StatusCode int
	RetryAfter string
	Body       []byte
}

// New creates a new edpear API client. Pass an empty token for
// unauthenticated calls (login initiation and status polling).
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		Token:          token,
		UserAgent:      defaultUserAgent,
		HTTPClient:     &http.Client{},
		requestTimeout: defaultRequestTimeout,
		maxAttempts:    defaultMaxAttempts,
		baseBackoff:    defaultBaseBackoff,
		maxBackoff:     defaultMaxBackoff,
		sleep:          time.Sleep,
		randInt63n:     rand.Int63n,
		now:            time.Now,
	}
}

// Request issues one API call and returns the raw JSON body. A non-nil body
// is JSON-encoded. The bearer token is attached only when the client holds
// one. Responses are classified: 401 yields ErrUnauthorized, any other
// non-2xx yields an *APIError, and transport failures are wrapped network
// errors.
func (c *Client) Request(method, endpoint string, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	raw, err := c.doWithRetry(func() (*http.Request, error) {
		u, err := url.Parse(c.BaseURL + endpoint)
		if err != nil {
			return nil, fmt.Errorf("building URL: %w", err)
		}
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequest(method, u.String(), reader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		c.setCommonHeaders(req)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	if raw.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if raw.StatusCode < 200 || raw.StatusCode > 299 {
		return nil, parseAPIError(raw.StatusCode, raw.Body, raw.RetryAfter)
	}
	return raw.Body, nil
}

func (c *Client) doWithRetry(makeRequest func() (*http.Request, error)) (*rawResponse, error) {
	maxAttempts := c.maxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := makeRequest()
		if err != nil {
			return nil, err
		}

		timeout := c.requestTimeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		req = req.WithContext(ctx)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			cancel()
			if attempt < maxAttempts && isRetryableTransportError(err) {
				c.sleepWithBackoff(attempt, "")
				continue
			}
			return nil, fmt.Errorf("API request failed after %d attempt(s): %w", attempt, err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		if readErr != nil {
			if attempt < maxAttempts && isRetryableTransportError(readErr) {
				c.sleepWithBackoff(attempt, "")
				continue
			}
			return nil, fmt.Errorf("reading response after %d attempt(s): %w", attempt, readErr)
		}

		if attempt < maxAttempts && shouldRetryStatus(resp.StatusCode) {
			c.sleepWithBackoff(attempt, resp.Header.Get("Retry-After"))
			continue
		}

		return &rawResponse{
			StatusCode: resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
			Body:       body,
		}, nil
	}

	return nil, fmt.Errorf("API request failed after %d attempt(s)", maxAttempts)
}

func isRetryableTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func shouldRetryStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func (c *Client) sleepWithBackoff(attempt int, retryAfterHeader string) {
	if d, ok := c.parseRetryAfter(retryAfterHeader); ok {
		c.sleep(d)
		return
	}

	base := c.baseBackoff
	if base <= 0 {
		base = defaultBaseBackoff
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay <= 0 {
			delay = defaultMaxBackoff
			break
		}
	}

	maxBackoff := c.maxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	if delay <= 0 {
		return
	}

	// Full jitter in [0, delay).
	if c.randInt63n != nil {
		delay = time.Duration(c.randInt63n(int64(delay)))
	}
	c.sleep(delay)
}

func (c *Client) parseRetryAfter(headerValue string) (time.Duration, bool) {
	v := strings.TrimSpace(headerValue)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		now := time.Now
		if c.now != nil {
			now = c.now
		}
		d := t.Sub(now())
		if d > 0 {
			return d, true
		}
	}
	return 0, false
}

// InitLogin registers a new browser-approval request. Unauthenticated.
func (c *Client) InitLogin() (*InitLoginResponse, error) {
	body, err := c.Request("POST", "/api/auth/cli/init", nil)
	if err != nil {
		return nil, err
	}
	var result InitLoginResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parsing init response: %w", err)
	}
	if result.RequestID == "" || result.URL == "" {
		return nil, fmt.Errorf("incomplete init response: requestId=%q url=%q", result.RequestID, result.URL)
	}
	return &result, nil
}

// LoginStatus queries the state of one approval request. Unauthenticated.
func (c *Client) LoginStatus(requestID string) (*LoginStatusResponse, error) {
	endpoint := "/api/auth/cli/status?requestId=" + url.QueryEscape(requestID)
	body, err := c.Request("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	var result LoginStatusResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parsing status response: %w", err)
	}
	return &result, nil
}

// Me fetches the current user's profile.
func (c *Client) Me() (*config.User, error) {
	body, err := c.Request("GET", "/api/auth/me", nil)
	if err != nil {
		return nil, err
	}
	var result MeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parsing profile response: %w", err)
	}
	return &result.User, nil
}

// GenerateKey creates a new API key. Name may be empty.
func (c *Client) GenerateKey(name string) (*config.APIKey, error) {
	var payload any
	if name != "" {
		payload = map[string]string{"name": name}
	}
	body, err := c.Request("POST", "/api/keys/generate", payload)
	if err != nil {
		return nil, err
	}
	var result GenerateKeyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parsing key response: %w", err)
	}
	if result.APIKey.Key == "" {
		return nil, fmt.Errorf("server returned no key material")
	}
	return &result.APIKey, nil
}

// ListKeys fetches the server's record of this user's API keys.
func (c *Client) ListKeys() ([]config.APIKey, error) {
	body, err := c.Request("GET", "/api/keys/list", nil)
	if err != nil {
		return nil, err
	}
	var result ListKeysResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parsing key list response: %w", err)
	}
	return result.APIKeys, nil
}

// APIError is a typed error returned by API calls, with the HTTP status code.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter string
}

func (e *APIError) Error() string {
	if e.StatusCode == http.StatusTooManyRequests {
		if e.RetryAfter != "" {
			return fmt.Sprintf("rate limited by API; retry after %s", e.RetryAfter)
		}
		return "rate limited by API; retry in a moment"
	}
	if e.Code != "" {
		return fmt.Sprintf("API error %d: %s — %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

func parseAPIError(statusCode int, body []byte, retryAfter string) error {
	var apiErr ErrorResponse
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		return &APIError{
			StatusCode: statusCode,
			Code:       apiErr.Error.Code,
			Message:    apiErr.Error.Message,
			RetryAfter: retryAfter,
		}
	}
	return &APIError{StatusCode: statusCode, Message: strings.TrimSpace(string(body)), RetryAfter: retryAfter}
}

func (c *Client) setCommonHeaders(req *http.Request) {
	userAgent := strings.TrimSpace(c.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)

	if c.Token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
}
