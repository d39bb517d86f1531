// Package external holds the vendor clients the ledger talks to. Outbound
// HTTP goes through BaseClient so breaker state, retries and error codes are
// the same for every vendor.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"matchpass/internal/types"
)

// RetryPolicy bounds how often and how long BaseClient retries a request.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, MinWait: 500 * time.Millisecond, MaxWait: 10 * time.Second}
}

// errRetryableStatus marks a 429 or 5xx so the breaker counts it as a failure.
var errRetryableStatus = errors.New("retryable upstream status")

type BaseClient struct {
	hc         *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	policy     RetryPolicy
	userAgent  string
	idemHeader string
	waitFn     func(context.Context, time.Duration) error
}

type BaseClientOption func(*BaseClient)

// WithWaitFunc replaces the sleep between attempts.
func WithWaitFunc(fn func(context.Context, time.Duration) error) BaseClientOption {
	return func(c *BaseClient) { c.waitFn = fn }
}

// WithBreaker shares one breaker between clients of the same vendor.
func WithBreaker(cb *gobreaker.CircuitBreaker[*http.Response]) BaseClientOption {
	return func(c *BaseClient) { c.breaker = cb }
}

// WithIdempotencyHeader stamps POSTs that lack the named header with a fresh
// key. The key is reused across retries of the same call so the vendor sees
// one logical request.
func WithIdempotencyHeader(name string) BaseClientOption {
	return func(c *BaseClient) { c.idemHeader = name }
}

// NewBreaker opens after six consecutive failures and half-opens 30s later.
func NewBreaker(name string) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures > 5 },
	})
}

func NewBaseClient(httpClient *http.Client, breakerName string, policy RetryPolicy, userAgent string, opts ...BaseClientOption) *BaseClient {
	c := &BaseClient{
		hc:        httpClient,
		breaker:   NewBreaker(breakerName),
		policy:    policy,
		userAgent: userAgent,
		waitFn:    sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do sends req, retrying 429 and 5xx answers and transport errors. Any other
// response is returned untouched and the caller closes its body. Failures
// come back as upstream_* AppErrors.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	body, err := c.prepare(req)
	if err != nil {
		return nil, err
	}

	ctx := req.Context()
	attempts := c.policy.MaxRetries + 1
	var (
		last    *http.Response
		lastErr error
	)
	for attempt := range attempts {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) { return c.send(req) })
		if err == nil {
			return resp, nil
		}
		if last != nil {
			last.Body.Close()
		}
		last, lastErr = resp, err

		if breakerRejected(err) || attempt == attempts-1 {
			break
		}
		if werr := c.waitFn(ctx, c.computeBackoff(attempt, resp)); werr != nil {
			lastErr = werr
			break
		}
	}

	if last != nil {
		last.Body.Close()
	}
	return nil, c.mapError(last, lastErr)
}

// prepare sets the shared headers and buffers the body for replay.
func (c *BaseClient) prepare(req *http.Request) ([]byte, error) {
	if id := types.GetRequestID(req.Context()); id != "" {
		req.Header.Set("X-Request-Id", id)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.idemHeader != "" && req.Method == http.MethodPost && req.Header.Get(c.idemHeader) == "" {
		req.Header.Set(c.idemHeader, uuid.NewString())
	}
	if req.Body == nil {
		return nil, nil
	}
	defer req.Body.Close()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to buffer outbound request body", err)
	}
	return body, nil
}

func (c *BaseClient) send(req *http.Request) (*http.Response, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return resp, fmt.Errorf("%w: %d", errRetryableStatus, resp.StatusCode)
	}
	return resp, nil
}

func breakerRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// computeBackoff prefers the vendor's Retry-After (seconds or HTTP date),
// capped at MaxWait. Otherwise it draws a jittered wait from
// [MinWait, MinWait*2^attempt], also capped at MaxWait.
func (c *BaseClient) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if d, ok := retryAfter(resp); ok {
		return min(max(d, c.policy.MinWait), c.policy.MaxWait)
	}

	ceiling := c.policy.MaxWait
	if shifted := c.policy.MinWait << min(attempt, 30); shifted > 0 && shifted < ceiling {
		ceiling = shifted
	}
	if ceiling <= c.policy.MinWait {
		return c.policy.MinWait
	}
	return c.policy.MinWait + rand.N(ceiling-c.policy.MinWait)
}

func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		return time.Until(at), true
	}
	return 0, false
}

// mapError always yields a Transient AppError; the caller decides whether to
// surface or requeue.
func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	switch {
	case breakerRejected(err):
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "upstream circuit is open", err)
	case resp != nil && resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "upstream rate limit exceeded", err)
	case resp != nil && resp.StatusCode >= 500:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("upstream returned %d after %d attempts", resp.StatusCode, c.policy.MaxRetries+1), err)
	default:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "upstream request failed", err)
	}
}
