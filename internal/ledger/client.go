// Package ledger is a client for the YNAB REST API.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/ynab-itemized/internal/logger"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.youneedabudget.com/v1"

	// UserAgent is sent with every request.
	UserAgent = "ynab-itemized/0.1.0"

	defaultRetryMax   = 3
	defaultRetryAfter = 60 * time.Second
	categoriesTTL     = time.Hour
)

// Cache stores small API responses between runs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config configures a Client.
type Config struct {
	Token    string
	BudgetID string
	BaseURL  string

	// RequestsPerHour caps the request rate. Zero or less disables the limit.
	RequestsPerHour int

	// RetryMax is the number of retries on 429 and 5xx responses. Zero means
	// the default of 3; negative disables retries.
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	HTTPClient *http.Client
	Cache      Cache
}

// Client talks to one budget.
type Client struct {
	budgetID string
	baseURL  string
	token    string
	http     *retryablehttp.Client
	limiter  *rate.Limiter
	cache    Cache
}

// NewClient builds a Client. Token and BudgetID are not checked here so that
// budget-independent calls such as GetBudgets work without a budget.
func NewClient(cfg Config) *Client {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.RequestLogHook = logRetry
	switch {
	case cfg.RetryMax < 0:
		rc.RetryMax = 0
	case cfg.RetryMax == 0:
		rc.RetryMax = defaultRetryMax
	default:
		rc.RetryMax = cfg.RetryMax
	}
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.HTTPClient != nil {
		rc.HTTPClient = cfg.HTTPClient
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerHour > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerHour) / time.Hour.Seconds())
		burst = max(1, cfg.RequestsPerHour/10)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		budgetID: cfg.BudgetID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    cfg.Token,
		http:     rc,
		limiter:  rate.NewLimiter(limit, burst),
		cache:    cfg.Cache,
	}
}

// BudgetID returns the configured budget.
func (c *Client) BudgetID() string {
	return c.budgetID
}

func logRetry(_ retryablehttp.Logger, req *http.Request, attempt int) {
	if attempt == 0 {
		return
	}
	logger.FromContext(req.Context()).Warn().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("attempt", attempt).
		Msg("Retrying YNAB request")
}

// do sends a request and decodes the "data" member of the response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &APIError{Message: fmt.Sprintf("Request failed: %v", err)}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, payload)
	if err != nil {
		return &APIError{Message: fmt.Sprintf("Request failed: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("path", path).Msg("YNAB request failed")
		return &APIError{Message: fmt.Sprintf("Request failed: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("Request failed: reading response: %v", err)}
	}

	if err := checkResponse(resp, raw); err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("decoding response: %v", err)}
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("decoding response data: %v", err)}
	}
	return nil
}

func checkResponse(resp *http.Response, raw []byte) error {
	status := resp.StatusCode
	if status >= 200 && status < 300 {
		return nil
	}

	var body map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}

	switch status {
	case http.StatusTooManyRequests:
		retryAfter := defaultRetryAfter
		if s, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && s >= 0 {
			retryAfter = time.Duration(s) * time.Second
		}
		return &RateLimitError{
			APIError: APIError{
				StatusCode: status,
				Message:    fmt.Sprintf("Rate limit exceeded. Retry after %d seconds.", int(retryAfter.Seconds())),
				Body:       body,
			},
			RetryAfter: retryAfter,
		}
	case http.StatusUnauthorized:
		return &AuthError{APIError{StatusCode: status, Message: "Authentication failed. Check your API token.", Body: body}}
	case http.StatusNotFound:
		return &NotFoundError{APIError{StatusCode: status, Message: "Resource not found.", Body: body}}
	case http.StatusBadRequest:
		detail := "Unknown error"
		if e, ok := body["error"].(map[string]any); ok {
			if d, ok := e["detail"].(string); ok && d != "" {
				detail = d
			}
		}
		return newValidationError(status, detail, body)
	}
	return &APIError{StatusCode: status, Message: fmt.Sprintf("API request failed: %d", status), Body: body}
}

func (c *Client) budgetPath(format string, args ...any) string {
	return "/budgets/" + url.PathEscape(c.budgetID) + fmt.Sprintf(format, args...)
}
