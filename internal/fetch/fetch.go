// Package fetch implements the throttled, retrying tile fetcher: a per-host
// rate limiter, retry with exponential backoff, and a typed error taxonomy.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Kind classifies why a fetch failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindConnectFailed
	KindBadStatus
	KindBodyTooLarge
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectFailed:
		return "connect-failed"
	case KindBadStatus:
		return "bad-status"
	case KindBodyTooLarge:
		return "body-too-large"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is a typed fetch failure, carrying enough detail for the
// orchestrator to decide whether to retry.
type Error struct {
	Kind       Kind
	StatusCode int
	URL        string
	Cause      error
}

func (e *Error) Error() string {
	if e.Kind == KindBadStatus {
		return fmt.Sprintf("fetching %s: HTTP %d", e.URL, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("fetching %s: %s: %v", e.URL, e.Kind, e.Cause)
	}
	return fmt.Sprintf("fetching %s: %s", e.URL, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the fetcher should retry this failure. A 404 is
// terminal: it is the signal the Generic dezoomer uses to find grid edges,
// so it must never be retried.
func (e *Error) Retryable() bool {
	if e.Kind == KindBadStatus && e.StatusCode == http.StatusNotFound {
		return false
	}
	return e.Kind != KindCanceled
}

// IsNotFound reports whether err is a terminal 404 fetch.Error.
func IsNotFound(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == KindBadStatus && fe.StatusCode == http.StatusNotFound
	}
	return false
}

// Config controls one Client's behavior. It mirrors the CLI's fetch flags.
type Config struct {
	Headers          map[string]string
	Timeout          time.Duration
	ConnectTimeout   time.Duration
	Retries          int
	RetryDelay       time.Duration
	MinInterval      time.Duration
	MaxIdlePerHost   int
	AcceptInvalidTLS bool
	UserAgent        string
}

// DefaultConfig matches the CLI's default flag values.
func DefaultConfig() Config {
	return Config{
		Timeout:        30 * time.Second,
		ConnectTimeout: 6 * time.Second,
		Retries:        1,
		RetryDelay:     2 * time.Second,
		MinInterval:    50 * time.Millisecond,
		MaxIdlePerHost: 32,
		UserAgent:      "dezoomify-rs/2.0.0 (+https://github.com/mlb/dezoomify-rs)",
	}
}

// Client performs throttled, retrying HTTP GETs. It owns no global state:
// the rate limiter is an explicit injected dependency.
type Client struct {
	http    *http.Client
	limiter *HostLimiter
	cfg     Config
}

// New builds a Client. limiter may be shared across many Clients that
// should be throttled together (e.g. the level's headers differ but the
// target host doesn't).
func New(cfg Config, limiter *HostLimiter) *Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: cfg.MaxIdlePerHost,
	}
	if cfg.AcceptInvalidTLS {
		transport.TLSClientConfig = insecureTLSConfig()
	}
	if cfg.ConnectTimeout > 0 {
		dialer := &netDialer{timeout: cfg.ConnectTimeout}
		transport.DialContext = dialer.DialContext
	}
	if limiter == nil {
		limiter = NewHostLimiter(cfg.MinInterval)
	}
	return &Client{
		http:    &http.Client{Transport: transport},
		limiter: limiter,
		cfg:     cfg,
	}
}

// Fetch downloads url, retrying per Config, honoring ctx cancellation, and
// injecting extraHeaders on top of the client's own default headers. Retries
// are capped at 1+Retries attempts, with delay retryDelay*2^(k-1) before
// attempt k, each attempt bounded by its own timeout, and a synthesized
// Referer/User-Agent when the caller has none.
func (c *Client) Fetch(ctx context.Context, target string, extraHeaders map[string]string) ([]byte, error) {
	return c.fetch(ctx, target, extraHeaders, c.cfg.Retries)
}

// FetchProbe downloads url the same way Fetch does, but never retries: a
// probe's 404 is the boundary signal the Generic dezoomer uses to find grid
// edges, and retrying it would just burn retryDelay*2^k seconds per edge for
// an answer that's already final. Non-404 failures still return one attempt,
// same as a Retries=0 client.
func (c *Client) FetchProbe(ctx context.Context, target string, extraHeaders map[string]string) ([]byte, error) {
	return c.fetch(ctx, target, extraHeaders, 0)
}

func (c *Client) fetch(ctx context.Context, target string, extraHeaders map[string]string, retries int) ([]byte, error) {
	attempts := 1 + max(0, retries)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(c.cfg.RetryDelay, attempt-1)
			select {
			case <-ctx.Done():
				return nil, &Error{Kind: KindCanceled, URL: target, Cause: ctx.Err()}
			case <-time.After(delay):
			}
		}
		data, err := c.fetchOnce(ctx, target, extraHeaders)
		if err == nil {
			return data, nil
		}
		lastErr = err
		var fe *Error
		if errors.As(err, &fe) && !fe.Retryable() {
			return nil, err
		}
		if errors.Is(err, context.Canceled) {
			return nil, &Error{Kind: KindCanceled, URL: target, Cause: err}
		}
	}
	return nil, lastErr
}

// backoffDelay returns the delay before attempt number k (k >= 1), which is
// retryDelay * 2^(k-1): first retry waits exactly retryDelay.
func backoffDelay(retryDelay time.Duration, k int) time.Duration {
	return retryDelay << uint(k-1)
}

func (c *Client) fetchOnce(ctx context.Context, target string, extraHeaders map[string]string) ([]byte, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, &Error{Kind: KindConnectFailed, URL: target, Cause: err}
	}

	if u.Scheme == "" || u.Scheme == "file" {
		return nil, &Error{Kind: KindConnectFailed, URL: target, Cause: fmt.Errorf("not an http(s) url")}
	}

	c.limiter.Wait(ctx, u.Host)

	reqCtx := ctx
	var cancel context.CancelFunc
	if c.cfg.Timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &Error{Kind: KindConnectFailed, URL: target, Cause: err}
	}
	c.applyHeaders(req, u, extraHeaders)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, &Error{Kind: KindTimeout, URL: target, Cause: err}
		}
		if errors.Is(err, context.Canceled) {
			return nil, &Error{Kind: KindCanceled, URL: target, Cause: err}
		}
		return nil, &Error{Kind: KindConnectFailed, URL: target, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindBadStatus, StatusCode: resp.StatusCode, URL: target}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindConnectFailed, URL: target, Cause: err}
	}
	return body, nil
}

// applyHeaders layers defaults < caller config headers < per-tile headers,
// synthesizing a Referer from the tile URL's origin if none was set.
func (c *Client) applyHeaders(req *http.Request, target *url.URL, extraHeaders map[string]string) {
	ua := c.cfg.UserAgent
	if ua == "" {
		ua = DefaultConfig().UserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Referer", target.Scheme+"://"+target.Host+"/")

	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
