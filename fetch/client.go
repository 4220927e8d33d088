// Package fetch implements the HTTP retrieval layer: a single client
// with retry and backoff, robots.txt compliance, redirect tracking and
// per-host rate limiting. Everything above it consumes the typed Error
// taxonomy rather than raw transport errors.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	metrics "github.com/armon/go-metrics"
	retry "github.com/avast/retry-go/v4"
	cleanhttp "github.com/hashicorp/go-cleanhttp"
	hclog "github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/policywatch/policywatch/sdk"
)

const (
	// DefaultUserAgent identifies the monitor to the sites it polls.
	DefaultUserAgent = "policywatch/1.0 (+https://github.com/policywatch/policywatch)"

	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	defaultRetryBase   = 1 * time.Second
	maxRedirects       = 5
)

// ClientConfig holds the tunables of the retrieval client. Zero values
// fall back to the package defaults.
type ClientConfig struct {
	Logger hclog.Logger

	// Timeout is the per-attempt deadline.
	Timeout time.Duration

	// MaxAttempts is the total number of attempts per fetch, including
	// the first.
	MaxAttempts int

	// RetryBase is the exponential backoff base; attempt n sleeps
	// RetryBase * 2^(n-1) before retrying.
	RetryBase time.Duration

	UserAgent string

	// RateLimitPerHost caps outbound requests per host and second.
	// Zero disables limiting.
	RateLimitPerHost float64

	// DisableRobots skips the robots.txt gate; used by tests.
	DisableRobots bool
}

// Response is the outcome of a successful GET.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// FinalURL is the URL that produced the body after redirects, and
	// Redirected flags whether it differs from the requested URL.
	FinalURL   string
	Redirected bool

	Attempts int
	Duration time.Duration
}

// Client retrieves documents over HTTP. It is safe for concurrent use.
type Client struct {
	log        hclog.Logger
	httpClient *http.Client
	robots     *robotsCache
	userAgent  string

	maxAttempts int
	retryBase   time.Duration

	limitersLock sync.Mutex
	limiters     map[string]*rate.Limiter
	hostLimit    rate.Limit
}

// NewClient creates a retrieval client from the passed config.
func NewClient(cfg ClientConfig) *Client {
	log := cfg.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	log = log.Named("fetch")

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = defaultRetryBase
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.Timeout
	httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}

	c := &Client{
		log:         log,
		httpClient:  httpClient,
		userAgent:   cfg.UserAgent,
		maxAttempts: cfg.MaxAttempts,
		retryBase:   cfg.RetryBase,
		limiters:    make(map[string]*rate.Limiter),
		hostLimit:   rate.Limit(cfg.RateLimitPerHost),
	}

	if !cfg.DisableRobots {
		c.robots = newRobotsCache(log, httpClient, cfg.UserAgent)
	}

	return c
}

// UserAgent returns the default outbound user agent of the client.
func (c *Client) UserAgent() string { return c.userAgent }

// Get retrieves rawURL, applying the robots gate, per-host rate limit
// and retry policy. Extra headers override the defaults; a User-Agent
// header overrides the configured one. The returned error, when
// non-nil, is always a *Error.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, newError(sdk.FetchErrNetwork, "invalid url %q", rawURL)
	}

	if err := c.waitHost(ctx, u.Host); err != nil {
		return nil, newError(sdk.FetchErrTimeout, "rate limit wait: %v", err)
	}

	if c.robots != nil && !c.robots.allowed(ctx, u) {
		metrics.IncrCounterWithLabels(
			[]string{"fetch", "robots_blocked"}, 1,
			[]metrics.Label{{Name: "host", Value: u.Host}})
		return nil, newError(sdk.FetchErrNetwork, "robots_blocked: %s disallowed for %q", u.Path, c.userAgent)
	}

	start := time.Now()
	attempts := 0

	var resp *Response
	err = retry.Do(
		func() error {
			attempts++
			r, doErr := c.do(ctx, rawURL, headers)
			if doErr != nil {
				return doErr
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxAttempts)),
		retry.Delay(c.retryBase),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
	)

	elapsed := time.Since(start)
	metrics.MeasureSinceWithLabels(
		[]string{"fetch", "duration"}, start,
		[]metrics.Label{{Name: "host", Value: u.Host}})

	if err != nil {
		c.log.Debug("fetch failed", "url", rawURL, "attempts", attempts, "error", err)
		var fErr *Error
		if !errors.As(err, &fErr) {
			fErr = newError(KindOf(err), "%v", err)
		}
		return nil, fErr
	}

	resp.Attempts = attempts
	resp.Duration = elapsed

	c.log.Debug("fetch succeeded", "url", rawURL, "status", resp.StatusCode,
		"attempts", attempts, "bytes", len(resp.Body), "redirected", resp.Redirected)
	return resp, nil
}

// do performs a single attempt.
func (c *Client) do(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, newError(sdk.FetchErrNetwork, "building request: %v", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newError(KindOf(err), "%v", err)
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusNotFound:
		return nil, &Error{
			Kind:       sdk.FetchErrNotFound,
			StatusCode: httpResp.StatusCode,
			Message:    fmt.Sprintf("resource not found: %s", rawURL),
		}
	case httpResp.StatusCode >= 400:
		return nil, &Error{
			Kind:       sdk.FetchErrNetwork,
			StatusCode: httpResp.StatusCode,
			Message:    fmt.Sprintf("unexpected status %d from %s", httpResp.StatusCode, rawURL),
		}
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, newError(KindOf(err), "reading response body: %v", err)
	}

	finalURL := rawURL
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		finalURL = httpResp.Request.URL.String()
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
		FinalURL:   finalURL,
		Redirected: finalURL != rawURL,
	}, nil
}

// waitHost blocks until the per-host limiter grants a slot.
func (c *Client) waitHost(ctx context.Context, host string) error {
	if c.hostLimit <= 0 {
		return nil
	}

	c.limitersLock.Lock()
	limiter, ok := c.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(c.hostLimit, 1)
		c.limiters[host] = limiter
	}
	c.limitersLock.Unlock()

	return limiter.Wait(ctx)
}
