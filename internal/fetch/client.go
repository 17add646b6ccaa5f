// Package fetch provides the rate-limited, retrying HTTP client and
// content-addressed response cache that every network-touching component
// (C3, C4, C6) routes through, grounded on the teacher's pkg/http.Client
// builder but generalized to the spec's retry/backoff/rate-limit policy.
package fetch

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/flanksource/commons/logger"
	"golang.org/x/oauth2"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
	"github.com/pthomasgarcia/packwatch/internal/config"
)

// Client wraps http.Client with rate limiting, retry-with-backoff, and a
// fixed User-Agent, matching the policy in spec.md §4.3.
type Client struct {
	http      *http.Client
	settings  config.NetworkSettings
	limiters  map[string]*hostLimiter
}

// New builds a Client from the given NetworkSettings. If settings.GithubToken
// is non-empty, every request is additionally authenticated via an
// oauth2 static-token transport, raising the GitHub API rate limit for C4.
func New(settings config.NetworkSettings) *Client {
	base := &http.Transport{
		DialContext: (&net.Dialer{Timeout: settings.ConnectTimeout()}).DialContext,
	}

	var transport http.RoundTripper = base
	if settings.GithubToken != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: settings.GithubToken})
		transport = &oauth2.Transport{Source: src, Base: base}
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   settings.TotalTimeout(),
		},
		settings: settings,
		limiters: make(map[string]*hostLimiter),
	}
}

// hostLimiter is a minimal token-bucket limiter, one per host, so a burst
// of requests to one slow host never starves requests to others.
type hostLimiter struct {
	interval time.Duration
	last     time.Time
}

func (c *Client) limiterFor(host string) *hostLimiter {
	l, ok := c.limiters[host]
	if !ok {
		rps := c.settings.RateLimitPerHost
		if rps <= 0 {
			rps = 2.0
		}
		l = &hostLimiter{interval: time.Duration(float64(time.Second) / rps)}
		c.limiters[host] = l
	}
	return l
}

func (l *hostLimiter) wait() {
	now := time.Now()
	if elapsed := now.Sub(l.last); elapsed < l.interval {
		time.Sleep(l.interval - elapsed)
	}
	l.last = time.Now()
}

// Get performs a GET request against rawURL, retrying retriable failures
// with exponential backoff and jitter, up to settings.MaxRetries attempts.
// 5xx responses, transport errors, 408, and 429 are retriable; any other
// 4xx is not (spec.md §4.3).
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, rawURL)
}

// Head performs a HEAD request, following redirects, without downloading
// the body; ContentLength uses it to read an asset's advertised size.
func (c *Client) Head(ctx context.Context, rawURL string) (*http.Response, error) {
	return c.do(ctx, http.MethodHead, rawURL)
}

func (c *Client) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Network, err, "build request")
	}
	req.Header.Set("User-Agent", c.userAgent())

	host := req.URL.Hostname()
	maxAttempts := c.settings.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.backoffFor(attempt)
			logger.Debugf("fetch: retrying %s %s (attempt %d) after %s", method, rawURL, attempt+1, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, apperrors.Wrap(apperrors.Network, ctx.Err(), "request cancelled during backoff")
			}
		}

		c.limiterFor(host).wait()

		resp, err := c.http.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			logger.Warnf("fetch: transport error for %s: %v", rawURL, err)
			continue
		}

		if isRetriableStatus(resp.StatusCode) && attempt < maxAttempts-1 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("retriable status %d", resp.StatusCode)
			continue
		}

		if resp.StatusCode >= 400 {
			defer resp.Body.Close()
			return resp, apperrors.New(apperrors.Network,
				fmt.Sprintf("%s %s: status %d", method, rawURL, resp.StatusCode))
		}

		return resp, nil
	}

	return nil, apperrors.Wrap(apperrors.Network, lastErr,
		fmt.Sprintf("%s %s: exhausted retries", method, rawURL))
}

func isRetriableStatus(code int) bool {
	if code >= 500 {
		return true
	}
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

// backoffFor returns the exponential-with-jitter delay for a given retry
// attempt (1-indexed), capped at settings.BackoffMax.
func (c *Client) backoffFor(attempt int) time.Duration {
	base := c.settings.BackoffBase()
	max := c.settings.BackoffMax()
	exp := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if exp > max {
		exp = max
	}
	jitter := time.Duration(rand.Int63n(int64(exp)/4 + 1))
	return exp + jitter
}

func (c *Client) userAgent() string {
	if c.settings.UserAgent != "" {
		return c.settings.UserAgent
	}
	return "packwatch/1.0"
}

// ContentLength issues a HEAD request and returns the advertised
// Content-Length, or -1 if the server didn't provide one.
func (c *Client) ContentLength(ctx context.Context, rawURL string) (int64, error) {
	resp, err := c.Head(ctx, rawURL)
	if err != nil {
		return -1, err
	}
	defer resp.Body.Close()

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return n, nil
		}
	}
	return -1, nil
}
