package instagram

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	errs "github.com/tnychn/instascrape/pkg/errors"
	"github.com/tnychn/instascrape/pkg/logger"
)

// Client is the synchronous HTTP transport. It owns a header set and a
// cookie set; both are cloned per logical fetch so concurrent workers never
// mutate a shared request context.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	cookies    map[string]string
	baseURL    string
	attempts   int
	logger     logger.Logger
}

// defaultHeaders are sent with every request.
func defaultHeaders(userAgent string) map[string]string {
	return map[string]string{
		"Accept-Encoding":  "gzip, deflate",
		"Accept-Language":  "en-US,en;q=0.8",
		"Connection":       "keep-alive",
		"Origin":           BaseURL,
		"Referer":          BaseURL,
		"User-Agent":       userAgent,
		"X-Instagram-AJAX": "1",
		"X-Requested-With": "XMLHttpRequest",
	}
}

// newClient creates a transport with default anonymous headers and cookies.
func newClient(httpClient *http.Client, userAgent string, attempts int, log logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		httpClient: httpClient,
		headers:    defaultHeaders(userAgent),
		cookies:    map[string]string{"rur": "ATN", "ds_user_id": ""},
		baseURL:    BaseURL,
		attempts:   attempts,
		logger:     log,
	}
}

// Clone returns an independent copy of the client. The underlying
// *http.Client is shared (it is safe for concurrent use); the header and
// cookie sets are copied.
func (c *Client) Clone() *Client {
	clone := &Client{
		httpClient: c.httpClient,
		headers:    make(map[string]string, len(c.headers)),
		cookies:    make(map[string]string, len(c.cookies)),
		baseURL:    c.baseURL,
		attempts:   c.attempts,
		logger:     c.logger,
	}
	for k, v := range c.headers {
		clone.headers[k] = v
	}
	for k, v := range c.cookies {
		clone.cookies[k] = v
	}
	return clone
}

// SetHeader sets a header on the client.
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// Header returns the value of a header.
func (c *Client) Header(key string) string {
	return c.headers[key]
}

// SetCookie sets a cookie on the client.
func (c *Client) SetCookie(name, value string) {
	c.cookies[name] = value
}

// Cookie returns the value of a cookie.
func (c *Client) Cookie(name string) string {
	return c.cookies[name]
}

// Cookies returns a copy of the cookie set.
func (c *Client) Cookies() map[string]string {
	out := make(map[string]string, len(c.cookies))
	for k, v := range c.cookies {
		out[k] = v
	}
	return out
}

// SetCookies replaces the cookie set with a copy of cookies.
func (c *Client) SetCookies(cookies map[string]string) {
	c.cookies = make(map[string]string, len(cookies))
	for k, v := range cookies {
		c.cookies[k] = v
	}
}

// do executes the request with the client's headers and cookies applied,
// then absorbs any Set-Cookie response headers back into the cookie set.
func (c *Client) do(req *http.Request, extraHeaders map[string]string) (*http.Response, error) {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
	if len(c.cookies) > 0 {
		pairs := make([]string, 0, len(c.cookies))
		for name, value := range c.cookies {
			pairs = append(pairs, name+"="+value)
		}
		req.Header.Set("Cookie", strings.Join(pairs, "; "))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &errs.NetworkError{Err: err}
	}
	for _, ck := range resp.Cookies() {
		c.cookies[ck.Name] = ck.Value
	}
	return resp, nil
}

// Get performs a GET request.
func (c *Client) Get(rawURL string, extraHeaders map[string]string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, extraHeaders)
}

// PostForm performs a POST request with form-encoded values.
func (c *Client) PostForm(rawURL string, values url.Values) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, rawURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
}

// FetchJSON performs a GET against a JSON endpoint on a clone of the client
// and returns the payload's data subtree.
//
// Classification contract: transient network failures and non-2xx transport
// statuses are retried up to the configured attempt count with no backoff;
// 404 fails immediately with NotFoundError; 429 fails immediately with
// RateLimitedError; a 2xx payload carrying a non-ok status or a message
// field fails immediately with ExtractionError. After retries are exhausted
// the last transient error is returned.
func (c *Client) FetchJSON(rawURL string, extraHeaders map[string]string) (gjson.Result, error) {
	var lastErr error

	c.logger.DebugWithFields("fetching JSON data", map[string]interface{}{"url": rawURL})
	for attempt := 1; attempt <= c.attempts; attempt++ {
		result, err := c.Clone().fetchJSONOnce(rawURL, extraHeaders)
		if err == nil {
			return result, nil
		}
		if !errs.IsRetryable(err) {
			return gjson.Result{}, err
		}
		lastErr = err
		c.logger.WarnWithFields("failed to fetch JSON data, retrying", map[string]interface{}{
			"url":     rawURL,
			"attempt": attempt,
			"error":   err.Error(),
		})
	}

	c.logger.ErrorWithFields("reached retry limit", map[string]interface{}{
		"url":      rawURL,
		"attempts": c.attempts,
	})
	return gjson.Result{}, lastErr
}

func (c *Client) fetchJSONOnce(rawURL string, extraHeaders map[string]string) (gjson.Result, error) {
	resp, err := c.Get(rawURL, extraHeaders)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return gjson.Result{}, &errs.NotFoundError{}
	case resp.StatusCode == http.StatusTooManyRequests:
		return gjson.Result{}, &errs.RateLimitedError{}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return gjson.Result{}, &errs.NetworkError{
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, &errs.NetworkError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	payload := gjson.ParseBytes(body)
	if status := payload.Get("status"); status.Exists() && status.String() != "ok" {
		return gjson.Result{}, &errs.ExtractionError{Message: "status -> " + status.String()}
	}
	if msg := payload.Get("message"); msg.Exists() {
		return gjson.Result{}, &errs.ExtractionError{Message: msg.String()}
	}

	// GraphQL queries wrap the payload in "data"; the ?__a=1 endpoints wrap
	// it in "graphql".
	if d := payload.Get("data"); d.Exists() {
		return d, nil
	}
	if d := payload.Get("graphql"); d.Exists() {
		return d, nil
	}
	return payload, nil
}
