package remote

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/n8nkit/n8nkit/engine/core"
)

const (
	// DefaultWebhookTimeout bounds a webhook dispatch; workflows behind a
	// webhook can run long, so this is looser than the API timeout.
	DefaultWebhookTimeout = 60 * time.Second
)

var triggerMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true, "HEAD": true,
}

// TriggerOptions describes one webhook dispatch.
type TriggerOptions struct {
	// URL is the absolute webhook URL. It is screened by the SSRF guard
	// before any connection is made.
	URL string
	// Method defaults to POST.
	Method string
	// Body is an optional JSON payload.
	Body []byte
	// Headers are added to the request. Content-Type defaults to
	// application/json when a body is present.
	Headers map[string]string
	// Timeout defaults to DefaultWebhookTimeout and is capped at the
	// hard ceiling.
	Timeout time.Duration
}

// TriggerResult reports the webhook's answer. Any completed HTTP exchange is
// a result, not an error: webhook handlers speak in status codes and the
// caller decides what a 500 from the workflow means.
type TriggerResult struct {
	StatusCode int               `json:"statusCode"`
	Status     string            `json:"status"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       any               `json:"body,omitempty"`
	DurationMS int64             `json:"durationMs"`
}

// TriggerWebhook dispatches one request to a webhook URL. The destination is
// screened before dispatch and re-screened at connect time by the transport
// dialer. Dispatches are never retried: a webhook may fire a workflow, and
// firing it twice is worse than reporting a transport error.
func (c *Client) TriggerWebhook(ctx context.Context, opts TriggerOptions) (*TriggerResult, error) {
	if err := c.guard.CheckURL(ctx, opts.URL); err != nil {
		return nil, err
	}
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = "POST"
	}
	if !triggerMethods[method] {
		return nil, core.NewError(core.KindUsage, core.CodeInvalidArgument, "unsupported webhook method %q", opts.Method)
	}
	if len(opts.Body) > 0 && !json.Valid(opts.Body) {
		return nil, core.NewError(core.KindUsage, core.CodeInvalidArgument, "webhook body must be valid JSON")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	if timeout > hardTimeoutCeiling {
		timeout = hardTimeoutCeiling
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := c.hook.R().SetContext(ctx)
	for k, v := range opts.Headers {
		req.SetHeader(k, v)
	}
	if len(opts.Body) > 0 {
		if req.Header.Get("Content-Type") == "" {
			req.SetHeader("Content-Type", "application/json")
		}
		req.SetBody(opts.Body)
	}

	resp, err := req.Execute(method, strings.TrimSpace(opts.URL))
	if err != nil {
		if coded, ok := core.AsError(err); ok {
			// Guard refusals from the dialer keep their own code.
			return nil, coded
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, core.WrapError(core.KindTemporary, core.CodeRequestTimeout, err,
				"webhook did not answer within %s", timeout)
		}
		if errors.Is(err, context.Canceled) {
			return nil, core.WrapError(core.KindCancelled, core.CodeCancelled, err, "webhook dispatch cancelled")
		}
		return nil, core.WrapError(core.KindUnavailable, core.CodeHostUnreachable, err, "webhook dispatch failed")
	}

	result := &TriggerResult{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Headers:    map[string]string{},
		DurationMS: resp.Time().Milliseconds(),
	}
	for k, vs := range resp.Header() {
		result.Headers[k] = strings.Join(vs, ", ")
	}
	if body := resp.Body(); len(body) > 0 {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err == nil {
			result.Body = decoded
		} else {
			result.Body = string(body)
		}
	}
	return result, nil
}
