package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultBaseURL is the address of a locally running guardrail service.
	DefaultBaseURL = "http://localhost:5000"
	// DefaultTimeout bounds one remote call at the transport.
	DefaultTimeout = 60 * time.Second

	defaultValidatorCacheTTL = time.Minute
	validatorCacheKey        = "validators"
)

// Client talks to the remote guardrail service. Every method is a single
// request with no retry.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client

	validators *expirable.LRU[string, []ValidatorInfo]
	group      singleflight.Group
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

// WithTimeout sets the transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.HTTPClient.Timeout = d
		}
	}
}

// WithValidatorCacheTTL sets how long ListValidators results are reused.
// A non-positive ttl disables the cache.
func WithValidatorCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl <= 0 {
			c.validators = nil
			return
		}
		c.validators = expirable.NewLRU[string, []ValidatorInfo](1, nil, ttl)
	}
}

// New returns a client with the default timeout and validator cache.
func New(baseURL, apiKey string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		validators: expirable.NewLRU[string, []ValidatorInfo](1, nil, defaultValidatorCacheTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Error is returned by every operation on transport or non-2xx failure.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StatusCode returns the remote status carried by err, or 0.
func StatusCode(err error) int {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.StatusCode
	}
	return 0
}

// rawBody keeps the undecoded response object next to the typed fields so
// callers can read keys the typed view does not name.
type rawBody struct {
	Fields map[string]any
}

func (r *rawBody) setFields(m map[string]any) { r.Fields = m }

type fieldSetter interface {
	setFields(map[string]any)
}

func (c *Client) endpoint(path string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	return base + path
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body any, out any) error {
	var payload io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return &Error{Op: op, Message: op + " request failed", Err: fmt.Errorf("encode json: %w", err)}
		}
		payload = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), payload)
	if err != nil {
		return &Error{Op: op, Message: op + " request failed", Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return &Error{Op: op, Message: op + " request failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: op + " request failed", Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    statusMessage(op, resp.StatusCode, data),
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: op + " returned an unreadable response", Err: fmt.Errorf("decode json: %w", err)}
	}
	if setter, ok := out.(fieldSetter); ok {
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err == nil {
			setter.setFields(fields)
		}
	}
	return nil
}

// statusMessage prefers the server's error field.
func statusMessage(op string, status int, data []byte) string {
	var body struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		switch v := body.Error.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case nil:
		default:
			if encoded, err := json.Marshal(v); err == nil {
				return string(encoded)
			}
		}
	}
	return fmt.Sprintf("%s failed with status %d", op, status)
}
