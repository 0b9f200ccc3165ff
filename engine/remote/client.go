// Package remote talks to a live n8n instance over its public REST API and
// dispatches webhook test requests. Every call takes a context, every error
// carries a core kind and stable code, and responses are decoded after the
// status has been classified so a broken body surfaces as a protocol error
// rather than a transport one.
package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/pkg/version"
)

const (
	// HeaderAPIKey authenticates against the n8n public API. The value is
	// attached to outgoing requests and never logged or echoed in errors.
	HeaderAPIKey = "X-N8N-API-KEY"

	apiPrefix = "/api/v1"

	// DefaultTimeout bounds a single API request attempt.
	DefaultTimeout = 30 * time.Second
	// DefaultAttempts is the total number of tries for retryable failures.
	DefaultAttempts = 3
	// hardTimeoutCeiling caps configured timeouts no matter what the
	// config asks for.
	hardTimeoutCeiling = 5 * time.Minute

	retryBaseDelay = 250 * time.Millisecond
	retryMaxDelay  = 2 * time.Second
	retryJitter    = 50 * time.Millisecond

	defaultRatePause = time.Second
)

// Config carries the connection settings for one n8n instance.
type Config struct {
	// BaseURL is the instance root, e.g. https://n8n.example.com. A
	// trailing /api/v1 is accepted and normalized away.
	BaseURL string
	// APIKey is the n8n public API key.
	APIKey string
	// Timeout bounds each request attempt. Zero means DefaultTimeout.
	Timeout time.Duration
	// Attempts is the total tries per request. Zero means DefaultAttempts.
	Attempts int
	// SSRFMode controls webhook destination screening. Empty means strict.
	SSRFMode GuardMode
}

// Client is a thread-safe handle on one n8n instance.
type Client struct {
	api      *resty.Client
	hook     *resty.Client
	guard    *Guard
	root     string // scheme://host[:port], no path
	attempts int
	gate     *rateGate
}

// New validates the configuration and builds a client. The API key is
// required; commands that only touch local state should not construct one.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, core.NewError(core.KindConfig, core.CodeConfigInvalid, "n8n host is not configured")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, core.WrapError(core.KindConfig, core.CodeConfigInvalid, err, "n8n host %q is not a valid URL", base)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, core.NewError(core.KindConfig, core.CodeConfigInvalid, "n8n host must use http or https, got %q", base)
	}
	if u.Host == "" {
		return nil, core.NewError(core.KindConfig, core.CodeConfigInvalid, "n8n host %q has no hostname", base)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, core.NewError(core.KindConfig, core.CodeConfigInvalid, "n8n api key is not configured")
	}

	root := u.Scheme + "://" + u.Host
	apiBase := root + strings.TrimSuffix(strings.TrimRight(u.Path, "/"), apiPrefix) + apiPrefix

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout > hardTimeoutCeiling {
		timeout = hardTimeoutCeiling
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	guard := NewGuard(cfg.SSRFMode)

	api := resty.New().
		SetBaseURL(apiBase).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "n8nkit/"+version.Version).
		SetHeader(HeaderAPIKey, strings.TrimSpace(cfg.APIKey))

	// The webhook client carries no API key: test dispatches go to
	// arbitrary URLs and must never leak instance credentials. Its dialer
	// re-resolves and vets the destination, and no proxy is consulted so
	// the guard always sees the real target.
	hook := resty.New().
		SetHeader("User-Agent", "n8nkit/"+version.Version).
		SetTransport(&http.Transport{
			DialContext:           guard.DialContext,
			MaxIdleConns:          10,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		})

	return &Client{
		api:      api,
		hook:     hook,
		guard:    guard,
		root:     root,
		attempts: attempts,
		gate:     &rateGate{},
	}, nil
}

// BaseURL reports the normalized API base, useful for status output.
func (c *Client) BaseURL() string {
	return c.api.BaseURL
}

// apiEnvelope is the error shape the n8n API returns on failure.
type apiEnvelope struct {
	Message string `json:"message"`
	Code    any    `json:"code,omitempty"`
}

// do runs one API request with retries. Attempts wait on the shared rate
// gate first, so a 429 from any in-flight call delays every subsequent
// attempt across goroutines. Only transport failures, 408, 429 and 5xx are
// retried; everything else fails fast. The response body is decoded into
// result after classification so decode failures map to protocol errors.
func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, result any) error {
	backoff := retry.WithCappedDuration(retryMaxDelay, retry.NewExponential(retryBaseDelay))
	backoff = retry.WithJitter(retryJitter, backoff)
	backoff = retry.WithMaxRetries(uint64(c.attempts-1), backoff)

	var (
		finalErr error
		lastResp *resty.Response
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.gate.wait(ctx); err != nil {
			finalErr = err
			return err
		}
		req := c.api.R().SetContext(ctx)
		if len(query) > 0 {
			req.SetQueryParams(query)
		}
		if body != nil {
			req.SetBody(body)
		}
		resp, err := req.Execute(method, path)
		classified, retryable := c.evaluate(resp, err)
		if classified == nil {
			lastResp = resp
			finalErr = nil
			return nil
		}
		finalErr = classified
		if retryable {
			return retry.RetryableError(classified)
		}
		return classified
	})
	if err != nil {
		// A cancellation while sleeping between attempts must not be
		// reported as the failure that triggered the sleep.
		if ctx.Err() != nil {
			return core.WrapError(core.KindCancelled, core.CodeCancelled, ctx.Err(), "remote: %s %s interrupted", method, path)
		}
		if finalErr != nil {
			return finalErr
		}
		return core.WrapError(core.KindUnavailable, core.CodeHostUnreachable, err, "remote: %s %s", method, path)
	}
	if result == nil || lastResp == nil || len(lastResp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(lastResp.Body(), result); err != nil {
		return core.WrapError(core.KindProtocol, core.CodeAPIProtocol, err,
			"remote: %s %s returned %d with an unreadable body", method, path, lastResp.StatusCode())
	}
	return nil
}

// evaluate maps one attempt's outcome to a coded error and whether another
// attempt is worthwhile.
func (c *Client) evaluate(resp *resty.Response, err error) (error, bool) {
	if err != nil {
		if coded, ok := core.AsError(err); ok && coded.Code == core.CodeSSRFBlocked {
			return coded, false
		}
		return core.WrapError(core.KindUnavailable, core.CodeHostUnreachable, err, "remote: request failed"), true
	}
	status := resp.StatusCode()
	switch {
	case status < 400:
		return nil, false
	case status == http.StatusUnauthorized:
		return core.NewError(core.KindAuth, core.CodeUnauthorized, "remote: the n8n api rejected the api key"), false
	case status == http.StatusForbidden:
		return core.NewError(core.KindPermission, core.CodePermissionDenied,
			"remote: the api key lacks permission: %s", apiMessage(resp)), false
	case status == http.StatusNotFound:
		return core.NewError(core.KindData, core.CodeNotFound, "remote: %s", apiMessage(resp)).
			WithDetails("status", status), false
	case status == http.StatusRequestTimeout:
		return core.NewError(core.KindTemporary, core.CodeRequestTimeout, "remote: the n8n api timed out the request"), true
	case status == http.StatusTooManyRequests:
		pause := parseRetryAfter(resp.Header().Get("Retry-After"))
		c.gate.pause(pause)
		return core.NewError(core.KindTemporary, core.CodeRateLimited, "remote: rate limited by the n8n api").
			WithDetails("retryAfter", pause.String()), true
	case status >= 500:
		return core.NewError(core.KindUnavailable, core.CodeServerError,
			"remote: the n8n api answered %d: %s", status, apiMessage(resp)).
			WithDetails("status", status), true
	default:
		return core.NewError(core.KindData, core.CodeInvalidArgument,
			"remote: the n8n api rejected the request: %s", apiMessage(resp)).
			WithDetails("status", status), false
	}
}

// apiMessage pulls the human-readable message out of an n8n error body,
// falling back to a truncated raw body or the status line.
func apiMessage(resp *resty.Response) string {
	body := resp.Body()
	if len(body) > 0 {
		var envelope apiEnvelope
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
			return envelope.Message
		}
		text := strings.TrimSpace(string(body))
		if len(text) > 200 {
			text = text[:200] + "…"
		}
		if text != "" {
			return text
		}
	}
	return resp.Status()
}

// parseRetryAfter understands both delta-seconds and HTTP-date forms.
// Unparseable or missing values yield zero; the gate applies its default.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// rateGate is a shared cooldown honored by every attempt on the client.
type rateGate struct {
	mu        sync.Mutex
	notBefore time.Time
}

// wait blocks until the cooldown has drained or the context ends.
func (g *rateGate) wait(ctx context.Context) error {
	g.mu.Lock()
	d := time.Until(g.notBefore)
	g.mu.Unlock()
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return core.WrapError(core.KindCancelled, core.CodeCancelled, ctx.Err(), "remote: cancelled while rate limited")
	case <-timer.C:
		return nil
	}
}

// pause extends the cooldown cumulatively: each rate-limit answer pushes the
// gate past any pause already pending, so concurrent callers drain the
// server's backlog sequentially instead of stampeding it when it reopens.
func (g *rateGate) pause(d time.Duration) {
	if d <= 0 {
		d = defaultRatePause
	}
	g.mu.Lock()
	base := time.Now()
	if g.notBefore.After(base) {
		base = g.notBefore
	}
	g.notBefore = base.Add(d)
	g.mu.Unlock()
}

// pathEscape builds a path with each segment escaped.
func pathEscape(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, url.PathEscape(s))
	}
	return "/" + strings.Join(parts, "/")
}
