package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	errs "igresolver/pkg/errors"
	"igresolver/pkg/logger"
	"igresolver/pkg/ratelimit"
	"igresolver/pkg/retry"
)

// maxBodySize caps how much of an upstream response is read
const maxBodySize = 16 << 20

// Options configure a Client
type Options struct {
	Timeout   time.Duration
	UserAgent string
	// ProxyURL routes every request through the given proxy when set
	ProxyURL string
	Limiter  ratelimit.Limiter
	Retry    *retry.Config
	Logger   logger.Logger
	// HTTPClient replaces the default client; ProxyURL and Timeout are then ignored
	HTTPClient *http.Client
}

// Client is the HTTP transport shared by the tiers
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	limiter    ratelimit.Limiter
	retry      *retry.Config
	logger     logger.Logger
	proxied    bool
}

// Response is a fully read upstream response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Cookies    []*http.Cookie
	URL        *url.URL
}

// NewClient creates a transport client
func NewClient(opts Options) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	retryCfg := opts.Retry
	if retryCfg == nil {
		retryCfg = &retry.Config{MaxAttempts: 1, Logger: log}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.ProxyURL != "" {
			proxyURL, err := url.Parse(opts.ProxyURL)
			if err != nil {
				return nil, fmt.Errorf("invalid proxy url: %w", err)
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		} else {
			transport.Proxy = nil
		}
		httpClient = &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DesktopUserAgent
	}

	return &Client{
		httpClient: httpClient,
		headers: map[string]string{
			"User-Agent":      userAgent,
			"Accept":          "*/*",
			"Accept-Language": "en-US,en;q=0.9",
		},
		limiter: limiter,
		retry:   retryCfg,
		logger:  log,
		proxied: opts.ProxyURL != "",
	}, nil
}

// Proxied reports whether requests go through a proxy
func (c *Client) Proxied() bool {
	return c.proxied
}

// SetHeader sets a default header sent with every request
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetHeaders sets multiple default headers at once
func (c *Client) SetHeaders(headers map[string]string) {
	for key, value := range headers {
		c.headers[key] = value
	}
}

// Request describes one upstream call
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Cookies []*http.Cookie
}

// Do sends the request, retrying transient failures. A response with an
// error status is returned together with the typed error so callers can look
// at the body.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	var last *Response
	err := retry.Do(ctx, func(ctx context.Context) error {
		resp, err := c.do(ctx, r)
		last = resp
		return err
	}, c.retry)
	return last, err
}

func (c *Client) do(ctx context.Context, r Request) (*Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}

	// Defaults first; per-request headers win
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	for key, values := range r.Header {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	for _, cookie := range r.Cookies {
		req.AddCookie(cookie)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method":  method,
		"url":     req.URL.String(),
		"proxied": c.proxied,
	})

	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"method":   method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "%s %s", method, req.URL.Host)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: "failed to read response body",
			Code:    httpResp.StatusCode,
			Err:     err,
		}
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   method,
		"url":      req.URL.String(),
		"status":   httpResp.StatusCode,
		"duration": duration,
	})

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		Cookies:    httpResp.Cookies(),
		URL:        req.URL,
	}
	return resp, c.checkResponseStatus(resp)
}

// checkResponseStatus maps an HTTP status to a typed error
func (c *Client) checkResponseStatus(resp *Response) error {
	code := resp.StatusCode
	fields := map[string]interface{}{
		"status": code,
		"url":    resp.URL.String(),
	}

	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		c.logger.WarnWithFields("authentication error", fields)
		return &errs.Error{Type: errs.ErrorTypeAuth, Message: "authentication required", Code: code}
	case code == http.StatusNotFound:
		c.logger.DebugWithFields("resource not found", fields)
		return &errs.Error{Type: errs.ErrorTypeNotFound, Message: "resource not found", Code: code}
	case code == http.StatusTooManyRequests:
		c.logger.WarnWithFields("rate limit exceeded", fields)
		return &errs.Error{Type: errs.ErrorTypeRateLimit, Message: "rate limit exceeded", Code: code}
	case code >= 500:
		c.logger.WarnWithFields("server error", fields)
		return &errs.Error{Type: errs.ErrorTypeServerError, Message: "server error", Code: code}
	case code >= 400:
		c.logger.WarnWithFields("unexpected API error", fields)
		return &errs.Error{Type: errs.ErrorTypeUnknown, Message: fmt.Sprintf("unexpected status code: %d", code), Code: code}
	default:
		return nil
	}
}

// GetText fetches a page and returns its body
func (c *Client) GetText(ctx context.Context, rawURL string, header http.Header) (string, error) {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, URL: rawURL, Header: header})
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// GetJSON fetches rawURL and decodes the JSON body into target
func (c *Client) GetJSON(ctx context.Context, rawURL string, header http.Header, target interface{}) error {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, URL: rawURL, Header: header})
	if err != nil {
		return err
	}
	return c.decode(resp, target)
}

// PostForm posts a urlencoded form and decodes the JSON body into target
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, header http.Header, target interface{}) error {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		URL:    rawURL,
		Header: h,
		Body:   []byte(form.Encode()),
	})
	if err != nil {
		return err
	}
	return c.decode(resp, target)
}

func (c *Client) decode(resp *Response, target interface{}) error {
	if err := json.Unmarshal(resp.Body, target); err != nil {
		c.logger.WarnWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          resp.URL.String(),
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": Preview(resp.Body),
		})
		return &errs.Error{Type: errs.ErrorTypeParsing, Message: "failed to parse JSON", Code: resp.StatusCode, Err: err}
	}
	return nil
}

// Preview shortens a body for logging to at most 200 runes
func Preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	if utf8.RuneCountInString(s) <= 200 {
		return s
	}
	runes := []rune(s)
	return string(runes[:200]) + "..."
}
