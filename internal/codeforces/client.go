package codeforces

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/codeforces-potd-bot/internal/obslog"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://codeforces.com/api"

// Client issues read-only calls against the Codeforces API.
// Only rate-limit responses are retried; any other failure is terminal.
type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	maxAttempts    int
	limitPause     time.Duration
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithHTTPClient(hc *fasthttp.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimitPause overrides the 1s pause between rate-limited attempts.
func WithRateLimitPause(d time.Duration) Option {
	return func(c *Client) { c.limitPause = d }
}

func NewClient(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 15 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 8},
		defaultTimeout: 15 * time.Second,
		maxAttempts:    5,
		limitPause:     time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LookupUsers resolves handles via user.info. Handles are matched case-insensitively by the judge;
// the returned Handle carries the canonical spelling.
func (c *Client) LookupUsers(ctx context.Context, handles ...string) ([]User, error) {
	if len(handles) == 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("handles", strings.Join(handles, ";"))
	var users []User
	if err := c.call(ctx, "user.info", params, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// LookupUser is LookupUsers for a single handle.
func (c *Client) LookupUser(ctx context.Context, handle string) (*User, error) {
	users, err := c.LookupUsers(ctx, strings.TrimSpace(handle))
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: empty user.info result", ErrUnavailable)
	}
	return &users[0], nil
}

func (c *Client) ListContests(ctx context.Context) ([]Contest, error) {
	var contests []Contest
	if err := c.call(ctx, "contest.list", nil, &contests); err != nil {
		return nil, err
	}
	return contests, nil
}

func (c *Client) ListProblems(ctx context.Context) ([]Problem, error) {
	var set problemSet
	if err := c.call(ctx, "problemset.problems", nil, &set); err != nil {
		return nil, err
	}
	return set.Problems, nil
}

// ListUserSubmissions returns the newest submissions of handle, at most limit when limit > 0.
// Submissions on unrated problems are dropped.
func (c *Client) ListUserSubmissions(ctx context.Context, handle string, limit int) ([]Submission, error) {
	params := url.Values{}
	params.Set("handle", strings.TrimSpace(handle))
	if limit > 0 {
		params.Set("from", "1")
		params.Set("count", strconv.Itoa(limit))
	}
	var subs []Submission
	if err := c.call(ctx, "user.status", params, &subs); err != nil {
		return nil, err
	}
	out := subs[:0]
	for _, s := range subs {
		if !s.Problem.Rated() {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	uri := c.baseURL + "/" + method
	if len(params) > 0 {
		uri += "?" + params.Encode()
	}

	attempts := c.maxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var last *envelope
	for attempt := 1; attempt <= attempts; attempt++ {
		env, err := c.fetch(ctx, uri)
		if err != nil {
			obslog.L().Warn("codeforces_unavailable", zap.String("method", method), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		if !env.rateLimited() {
			if env.Status != statusOK {
				return &RejectedError{Comment: env.Comment}
			}
			if out != nil {
				if err := json.Unmarshal(env.Result, out); err != nil {
					return fmt.Errorf("%w: decode %s result: %v", ErrUnavailable, method, err)
				}
			}
			return nil
		}

		last = env
		obslog.L().Debug("codeforces_rate_limited", zap.String("method", method), zap.Int("attempt", attempt))
		if attempt < attempts {
			if err := sleepWithContext(ctx, c.limitPause); err != nil {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}
	}
	return &RejectedError{Comment: last.Comment, RateLimited: true}
}

func (c *Client) fetch(ctx context.Context, uri string) (*envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(uri)
	req.Header.Set("Accept", "application/json")

	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() == fasthttp.StatusServiceUnavailable {
		return &envelope{Status: statusFailed, Comment: limitComment}, nil
	}

	// The judge answers 400 with a FAILED envelope for bad input, so the body is parsed regardless of status.
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrUnavailable, resp.StatusCode(), truncate(string(resp.Body()), 256))
	}
	if env.Status != statusOK && env.Status != statusFailed {
		return nil, fmt.Errorf("%w: unexpected envelope status %q", ErrUnavailable, env.Status)
	}
	return &env, nil
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
