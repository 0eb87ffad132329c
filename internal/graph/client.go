package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
	"github.com/custodia-labs/tenantsync/internal/core/ports/driven"
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	// BaseURL is the v1.0 endpoint root.
	BaseURL string
	// BetaURL is the beta endpoint root, used for premium-only reports.
	BetaURL string
	// MaxRetries bounds attempts per request.
	MaxRetries int
	// BaseDelay seeds the exponential backoff (base * 2^attempt).
	BaseDelay time.Duration
	// MaxDelay caps a single backoff delay.
	MaxDelay time.Duration
	// Timeout applies per HTTP request.
	Timeout time.Duration
	// MaxConcurrent bounds in-flight requests across entity families.
	MaxConcurrent int
	// RateLimit configures the shared token bucket.
	RateLimit RateLimitConfig
	// HTTPClient overrides the transport, used by tests.
	HTTPClient *http.Client
	// Logger receives retry and throttle events.
	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = "https://graph.microsoft.com/v1.0"
	}
	if o.BetaURL == "" {
		o.BetaURL = "https://graph.microsoft.com/beta"
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 4
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Query holds the OData parameters for a list request.
type Query struct {
	// Select lists the fields to request.
	Select []string
	// Filter is an OData filter expression.
	Filter string
	// Expand is an OData expand expression.
	Expand string
	// Top is the page size. Zero lets the server choose.
	Top int
	// Beta routes the request to the beta endpoint.
	Beta bool
}

// Client issues authenticated, throttle-aware requests against one
// tenant's Graph endpoints. Safe for concurrent use across families.
type Client struct {
	tenantID string
	baseURL  string
	betaURL  string
	tokens   driven.TokenProvider
	http     *http.Client
	limiter  *RateLimiter
	sem      chan struct{}
	log      *zap.Logger

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	// sleep is injectable for backoff tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client for one tenant.
func NewClient(tenantID string, tokens driven.TokenProvider, opts Options) *Client {
	opts = opts.withDefaults()

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		tenantID:   tenantID,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		betaURL:    strings.TrimRight(opts.BetaURL, "/"),
		tokens:     tokens,
		http:       httpClient,
		limiter:    NewRateLimiter(opts.RateLimit),
		sem:        make(chan struct{}, opts.MaxConcurrent),
		log:        opts.Logger.With(zap.String("tenant_id", tenantID)),
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		maxDelay:   opts.MaxDelay,
		sleep:      sleepCtx,
	}
}

// TenantID returns the tenant this client is bound to.
func (c *Client) TenantID() string {
	return c.tenantID
}

// List starts a paginated request. The returned Pager is a lazy, finite,
// non-restartable sequence: each Next call issues one HTTP request and
// the sequence ends when the response carries no continuation link.
func (c *Client) List(endpoint string, q Query) *Pager {
	return &Pager{
		client:   c,
		endpoint: endpoint,
		nextURL:  c.buildURL(endpoint, q),
	}
}

// ListAll drains a paginated request into a single slice.
func (c *Client) ListAll(ctx context.Context, endpoint string, q Query) ([]json.RawMessage, error) {
	pager := c.List(endpoint, q)

	var all []json.RawMessage
	for pager.More() {
		page, err := pager.Next(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
	}
	return all, nil
}

// Get fetches a single object.
func (c *Client) Get(ctx context.Context, endpoint string, q Query) (json.RawMessage, error) {
	body, err := c.fetch(ctx, endpoint, c.buildURL(endpoint, q))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// Pager iterates the pages of one list request.
type Pager struct {
	client   *Client
	endpoint string
	nextURL  string
	done     bool
	pages    int
}

// More reports whether another page may be available.
func (p *Pager) More() bool {
	return !p.done
}

// Pages returns the number of pages fetched so far.
func (p *Pager) Pages() int {
	return p.pages
}

// Next fetches the next page of records. The continuation link embedded
// in the response determines whether further pages follow.
func (p *Pager) Next(ctx context.Context) ([]json.RawMessage, error) {
	if p.done {
		return nil, nil
	}

	body, err := p.client.fetch(ctx, p.endpoint, p.nextURL)
	if err != nil {
		p.done = true
		return nil, err
	}

	var page struct {
		Value    []json.RawMessage `json:"value"`
		NextLink string            `json:"@odata.nextLink"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		p.done = true
		return nil, fmt.Errorf("decode page of %s: %w", p.endpoint, err)
	}

	p.pages++
	// Continuation URLs already carry the query parameters.
	p.nextURL = page.NextLink
	if p.nextURL == "" {
		p.done = true
	}

	return page.Value, nil
}

// buildURL assembles the first-page URL for an endpoint and query.
func (c *Client) buildURL(endpoint string, q Query) string {
	base := c.baseURL
	if q.Beta {
		base = c.betaURL
	}

	params := url.Values{}
	if len(q.Select) > 0 {
		params.Set("$select", strings.Join(q.Select, ","))
	}
	if q.Filter != "" {
		params.Set("$filter", q.Filter)
	}
	if q.Expand != "" {
		params.Set("$expand", q.Expand)
	}
	if q.Top > 0 {
		params.Set("$top", strconv.Itoa(q.Top))
	}

	u := base + endpoint
	if enc := params.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// pageResponse is the outcome of a single HTTP attempt.
type pageResponse struct {
	body       []byte
	status     int
	retryAfter int
}

// fetch performs one logical request with the retry policy: throttling
// and transient server failures are retried under exponential backoff
// with jitter, honouring an explicit Retry-After hint when present.
// Exhausting retries returns a *domain.APIError.
func (c *Client) fetch(ctx context.Context, endpoint, reqURL string) ([]byte, error) {
	var (
		lastStatus int
		lastErr    error
	)

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		// Sleep out any throttle window through the injectable clock, then
		// take a token from the shared bucket.
		if d := c.limiter.ThrottleDelay(); d > 0 {
			if err := c.sleep(ctx, d); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.WaitBucket(ctx); err != nil {
			return nil, err
		}

		resp, err := c.doOnce(ctx, reqURL)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()

		case err != nil:
			var fatal *fatalError
			if errors.As(err, &fatal) {
				return nil, fatal.err
			}
			// Transport failures, including per-request timeouts, are
			// transient and subject to the retry policy.
			lastErr = fmt.Errorf("%w: %w", domain.ErrTransient, err)
			lastStatus = 0
			c.log.Warn("request failed",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt+1),
				zap.Error(err))

		case resp.status == http.StatusOK:
			return resp.body, nil

		case IsThrottled(resp.status):
			lastErr = domain.ErrThrottled
			lastStatus = resp.status
			c.log.Warn("throttled by upstream",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt+1),
				zap.Int("retry_after_s", resp.retryAfter))
			if resp.retryAfter > 0 {
				// An explicit hint opens a shared window for every family on
				// this tenant, slept out at the top of the next attempt.
				// Without a hint the standard backoff below applies.
				c.limiter.RecordThrottle(resp.retryAfter)
				continue
			}

		case IsRetryable(resp.status):
			lastErr = fmt.Errorf("%w: status %d", domain.ErrTransient, resp.status)
			lastStatus = resp.status
			c.log.Warn("transient upstream failure",
				zap.String("endpoint", endpoint),
				zap.Int("status", resp.status),
				zap.Int("attempt", attempt+1))

		default:
			// Non-retryable statuses fail immediately with the mapped error.
			wrapped := WrapStatus(resp.status)
			if wrapped == nil {
				wrapped = fmt.Errorf("unexpected status %d", resp.status)
			}
			return nil, fmt.Errorf("request %s: %w", endpoint, wrapped)
		}

		if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
			return nil, err
		}
	}

	return nil, &domain.APIError{
		Status:   lastStatus,
		Endpoint: endpoint,
		Attempts: c.maxRetries,
		Err:      lastErr,
	}
}

// doOnce performs a single HTTP request.
func (c *Client) doOnce(ctx context.Context, reqURL string) (*pageResponse, error) {
	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		// Token acquisition failures are fatal for the tenant; they are
		// not retried here.
		return nil, &fatalError{err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, &fatalError{err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &pageResponse{
		body:       body,
		status:     resp.StatusCode,
		retryAfter: retryAfterSeconds(resp.Header.Get("Retry-After")),
	}, nil
}

// fatalError marks failures that must not be retried.
type fatalError struct{ err error }

func (f *fatalError) Error() string { return f.err.Error() }
func (f *fatalError) Unwrap() error { return f.err }

// retryAfterSeconds parses an integer Retry-After header value.
func retryAfterSeconds(headerValue string) int {
	n, err := strconv.Atoi(strings.TrimSpace(headerValue))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// backoff computes base * 2^attempt capped at maxDelay, plus jitter of up
// to one base delay to spread retries across families.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.baseDelay << uint(attempt)
	if d > c.maxDelay || d <= 0 {
		d = c.maxDelay
	}
	return d + rand.N(c.baseDelay)
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
